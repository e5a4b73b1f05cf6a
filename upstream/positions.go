package upstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Manu-world/flight-tracking-service/errors"
	"github.com/Manu-world/flight-tracking-service/flight"
)

// PositionsClient fetches live aircraft positions from the fast-changing
// feed. One call per poll tick; no state is shared between calls.
type PositionsClient struct {
	client  client
	baseURL string
	apiKey  string
	version string
}

// PositionsConfig configures a PositionsClient.
type PositionsConfig struct {
	BaseURL    string
	APIKey     string
	APIVersion string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *slog.Logger
}

// NewPositionsClient creates a position feed client.
func NewPositionsClient(cfg PositionsConfig) *PositionsClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1"
	}
	var doer httpDoer
	if cfg.HTTPClient != nil {
		doer = cfg.HTTPClient
	}
	return &PositionsClient{
		client:  newClient("positions", doer, cfg.Limiter, cfg.Logger),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		version: cfg.APIVersion,
	}
}

// positionRecord mirrors one element of the feed's data array. Pointer
// fields distinguish absent from zero so required-field checks are exact.
type positionRecord struct {
	FR24ID       *string  `json:"fr24_id"`
	Flight       string   `json:"flight"`
	Callsign     *string  `json:"callsign"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Alt          *int     `json:"alt"`
	GSpeed       *int     `json:"gspeed"`
	Track        *int     `json:"track"`
	Timestamp    *string  `json:"timestamp"`
	AircraftType string   `json:"type"`
	Registration string   `json:"reg"`
}

func (r positionRecord) complete() bool {
	return r.FR24ID != nil && r.Callsign != nil && r.Lat != nil && r.Lon != nil &&
		r.Alt != nil && r.GSpeed != nil && r.Track != nil && r.Timestamp != nil
}

// Fetch returns the current position snapshots for the target. An empty
// result is not an error: the coordinator treats it as "no update this
// tick". Records missing required fields are dropped with a log and do not
// fail the batch.
func (p *PositionsClient) Fetch(ctx context.Context, target flight.Target) ([]flight.PositionSnapshot, error) {
	query := url.Values{}
	if target.Bounds != "" {
		query.Set("bounds", target.Bounds)
	}
	if len(target.Flights) > 0 {
		query.Set("flights", strings.Join(target.Flights, ","))
	}
	if len(target.Categories) > 0 {
		query.Set("categories", strings.Join(target.Categories, ","))
	}
	if len(target.DataSources) > 0 {
		query.Set("data_sources", strings.Join(target.DataSources, ","))
	}
	if target.Limit > 0 {
		query.Set("limit", strconv.Itoa(target.Limit))
	}

	body, err := p.client.get(ctx, buildURL(p.baseURL, "/live/flight-positions/full", query), p.header())
	if err != nil {
		return nil, err
	}

	records, err := decodeEnvelope("positions", body)
	if err != nil {
		return nil, err
	}

	snapshots := make([]flight.PositionSnapshot, 0, len(records))
	for _, raw := range records {
		var rec positionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			p.client.logger.Warn("dropping undecodable position record",
				"component", "positions", "error", err)
			continue
		}
		if !rec.complete() {
			p.client.logger.Warn("dropping position record with missing fields",
				"component", "positions", "fr24_id", stringOr(rec.FR24ID, "?"))
			continue
		}
		ts, err := time.Parse(time.RFC3339, *rec.Timestamp)
		if err != nil {
			p.client.logger.Warn("dropping position record with bad timestamp",
				"component", "positions", "fr24_id", *rec.FR24ID, "timestamp", *rec.Timestamp)
			continue
		}
		snapshots = append(snapshots, flight.PositionSnapshot{
			FR24ID:       *rec.FR24ID,
			FlightNumber: rec.Flight,
			Callsign:     *rec.Callsign,
			Lat:          *rec.Lat,
			Lon:          *rec.Lon,
			Altitude:     *rec.Alt,
			GroundSpeed:  *rec.GSpeed,
			Track:        *rec.Track,
			Timestamp:    ts,
			AircraftType: rec.AircraftType,
			Registration: rec.Registration,
		})
	}
	return snapshots, nil
}

// FetchAirport returns static details for one IATA/ICAO airport code, used to
// enrich flight-info snapshots.
func (p *PositionsClient) FetchAirport(ctx context.Context, code string) (*flight.AirportDetails, error) {
	body, err := p.client.get(ctx,
		buildURL(p.baseURL, "/static/airports/"+url.PathEscape(code)+"/full", nil), p.header())
	if err != nil {
		return nil, err
	}

	var details flight.AirportDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, errors.WrapMalformed(err, "positions", "FetchAirport", "decode airport details")
	}
	return &details, nil
}

func (p *PositionsClient) header() http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)
	header.Set("Accept-Version", p.version)
	return header
}

func stringOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
