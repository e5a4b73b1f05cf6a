package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/Manu-world/flight-tracking-service/flight"
	"github.com/Manu-world/flight-tracking-service/pkg/retry"
)

// PositionSource is the upstream dependency of a PositionPoller.
type PositionSource interface {
	Fetch(ctx context.Context, target flight.Target) ([]flight.PositionSnapshot, error)
}

// InfoSource is the upstream dependency of an InfoPoller.
type InfoSource interface {
	Fetch(ctx context.Context, flightID string) (*flight.InfoSnapshot, error)
}

// AirportSource resolves static airport details for snapshot enrichment.
type AirportSource interface {
	FetchAirport(ctx context.Context, code string) (*flight.AirportDetails, error)
}

// PositionPoller issues one position fetch per coordinator tick, retried per
// the data-fetch policy. It has no timer of its own: the coordinator's clock
// decides when a poll is due.
type PositionPoller struct {
	source   PositionSource
	retryCfg retry.Config
	logger   *slog.Logger
	metrics  *Metrics
}

// NewPositionPoller creates a poller over the given source. A zero retry
// config selects the data-fetch defaults.
func NewPositionPoller(source PositionSource, retryCfg *retry.Config, logger *slog.Logger, metrics *Metrics) *PositionPoller {
	cfg := retry.DataFetch()
	if retryCfg != nil {
		cfg = *retryCfg
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PositionPoller{source: source, retryCfg: cfg, logger: logger, metrics: metrics}
}

// Poll fetches the current positions for the target. An empty slice with a
// nil error means no aircraft matched; the coordinator treats that as "no
// update this tick".
func (p *PositionPoller) Poll(ctx context.Context, target flight.Target) ([]flight.PositionSnapshot, error) {
	start := time.Now()
	snapshots, err := retry.DoWithResult(ctx, p.retryCfg, func() ([]flight.PositionSnapshot, error) {
		return p.source.Fetch(ctx, target)
	})
	p.metrics.PollObserved("position", pollOutcome(err, len(snapshots) == 0), time.Since(start))
	if err != nil {
		p.logger.Warn("position poll failed",
			"component", "stream", "target", target.Key(), "error", err)
		return nil, err
	}
	return snapshots, nil
}

// InfoPoller issues one flight-info fetch per coordinator tick, retried per
// the data-fetch policy. A non-nil airport source enriches each fresh
// snapshot with departure and arrival airport details.
type InfoPoller struct {
	source   InfoSource
	airports AirportSource
	retryCfg retry.Config
	logger   *slog.Logger
	metrics  *Metrics
}

// NewInfoPoller creates a poller over the given source. A nil airports source
// disables enrichment.
func NewInfoPoller(source InfoSource, airports AirportSource, retryCfg *retry.Config, logger *slog.Logger, metrics *Metrics) *InfoPoller {
	cfg := retry.DataFetch()
	if retryCfg != nil {
		cfg = *retryCfg
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InfoPoller{source: source, airports: airports, retryCfg: cfg, logger: logger, metrics: metrics}
}

// Poll fetches the metadata snapshot for one flight. A nil snapshot with a
// nil error means the flight was not found upstream; the coordinator keeps
// its cached snapshot in that case.
func (p *InfoPoller) Poll(ctx context.Context, flightID string) (*flight.EnrichedInfoSnapshot, error) {
	start := time.Now()
	snapshot, err := retry.DoWithResult(ctx, p.retryCfg, func() (*flight.InfoSnapshot, error) {
		return p.source.Fetch(ctx, flightID)
	})
	p.metrics.PollObserved("info", pollOutcome(err, snapshot == nil), time.Since(start))
	if err != nil {
		p.logger.Warn("flight info poll failed",
			"component", "stream", "flight_id", flightID, "error", err)
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}
	return p.enrich(ctx, snapshot), nil
}

// enrich attaches airport details to a fresh snapshot. Lookup failures leave
// the corresponding details nil; enrichment never fails the poll.
func (p *InfoPoller) enrich(ctx context.Context, base *flight.InfoSnapshot) *flight.EnrichedInfoSnapshot {
	enriched := &flight.EnrichedInfoSnapshot{InfoSnapshot: *base}
	if p.airports == nil {
		return enriched
	}
	enriched.DepartureAirportDetails = p.lookupAirport(ctx, base.DepartureAirport)
	enriched.ArrivalAirportDetails = p.lookupAirport(ctx, base.ArrivalAirport)
	return enriched
}

func (p *InfoPoller) lookupAirport(ctx context.Context, code string) *flight.AirportDetails {
	if code == "" {
		return nil
	}
	details, err := p.airports.FetchAirport(ctx, code)
	if err != nil {
		p.logger.Warn("airport details lookup failed",
			"component", "stream", "airport", code, "error", err)
		return nil
	}
	return details
}

func pollOutcome(err error, empty bool) string {
	switch {
	case err != nil:
		return "failure"
	case empty:
		return "empty"
	default:
		return "success"
	}
}
