// Package stream contains the per-subscription coordinator: pollers over the
// two upstream feeds, the merger state machine that interleaves their results
// into one ordered frame sequence, and the registry of live subscriptions.
package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Manu-world/flight-tracking-service/errors"
	"github.com/Manu-world/flight-tracking-service/flight"
)

// State is the merger lifecycle phase, exposed for observability and tests.
type State int32

const (
	StateInitializing State = iota
	StateStreaming
	StateRetryingBackoff
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateRetryingBackoff:
		return "retrying-backoff"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Sink receives the merger's output. Emit and EmitError are called from the
// coordinator goroutine only, strictly in production order. A non-nil return
// terminates the subscription.
type Sink interface {
	Emit(flight.CombinedFrame) error
	EmitError(flight.ErrorFrame) error
}

// Reference intervals for the two feeds and the coordinator loop.
const (
	DefaultPositionInterval = 30 * time.Second
	DefaultInfoInterval     = 120 * time.Second
	DefaultMinQuantum       = 1 * time.Second
	DefaultErrorPause       = 5 * time.Second
)

// MergerConfig configures one coordinator instance. All dependencies are
// injected; the merger holds no global state.
type MergerConfig struct {
	// Target selects the aircraft for the position feed.
	Target flight.Target
	// FlightID enables the info feed when non-empty.
	FlightID string

	Positions *PositionPoller
	Info      *InfoPoller

	PositionInterval time.Duration
	InfoInterval     time.Duration
	// MinQuantum floors the inter-tick sleep to bound busy-waking.
	MinQuantum time.Duration
	// ErrorPause is the fixed backoff after a failed tick.
	ErrorPause time.Duration

	Clock   Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// Merger is the per-subscription coordinator. It owns one PositionPoller and
// one InfoPoller, drives them on independent intervals off a single injected
// clock, and emits one CombinedFrame per tick on which at least one feed was
// due. Failed polls surface as error frames; the stream stays open through
// them.
type Merger struct {
	target   flight.Target
	flightID string

	positions *PositionPoller
	info      *InfoPoller

	positionInterval time.Duration
	infoInterval     time.Duration
	minQuantum       time.Duration
	errorPause       time.Duration

	clock   Clock
	logger  *slog.Logger
	metrics *Metrics

	state atomic.Int32

	lastPositionFetch time.Time
	lastInfoFetch     time.Time
	cachedPositions   []flight.PositionSnapshot
	cachedInfo        *flight.EnrichedInfoSnapshot
}

// NewMerger creates a coordinator. Zero durations select the reference
// intervals; a nil clock selects the system clock.
func NewMerger(cfg MergerConfig) *Merger {
	if cfg.PositionInterval <= 0 {
		cfg.PositionInterval = DefaultPositionInterval
	}
	if cfg.InfoInterval <= 0 {
		cfg.InfoInterval = DefaultInfoInterval
	}
	if cfg.MinQuantum <= 0 {
		cfg.MinQuantum = DefaultMinQuantum
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = DefaultErrorPause
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Merger{
		target:           cfg.Target,
		flightID:         cfg.FlightID,
		positions:        cfg.Positions,
		info:             cfg.Info,
		positionInterval: cfg.PositionInterval,
		infoInterval:     cfg.InfoInterval,
		minQuantum:       cfg.MinQuantum,
		errorPause:       cfg.ErrorPause,
		clock:            cfg.Clock,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
	}
}

// State returns the merger's current lifecycle phase.
func (m *Merger) State() State {
	return State(m.state.Load())
}

func (m *Merger) setState(s State) {
	m.state.Store(int32(s))
}

// Run drives the coordinator loop until the context is cancelled, the sink
// rejects a frame, or the target is reported gone upstream. Cancellation is
// a normal teardown and returns nil; no frame is emitted after it is
// observed.
func (m *Merger) Run(ctx context.Context, sink Sink) error {
	m.setState(StateInitializing)
	defer m.setState(StateTerminated)

	m.logger.Debug("coordinator starting",
		"component", "stream", "target", m.target.Key(),
		"position_interval", m.positionInterval, "info_interval", m.infoInterval)

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := m.tick(ctx, sink)
		switch {
		case err == nil:
			m.setState(StateStreaming)
			if !m.pause(ctx, m.nextSleep()) {
				return nil
			}

		case ctx.Err() != nil:
			return nil

		case stderrors.Is(err, errors.ErrStreamClosed):
			return err

		case stderrors.Is(err, errors.ErrTargetNotFound):
			// Unrecoverable upstream signal: tell the subscriber, then stop.
			m.pushError(sink, err)
			return err

		default:
			m.setState(StateRetryingBackoff)
			m.logger.Warn("coordinator iteration failed",
				"component", "stream", "target", m.target.Key(), "error", err)
			if !m.pushError(sink, err) {
				return errors.ErrStreamClosed
			}
			// Fixed pause, then resume. Due-times were already advanced by
			// the failed tick, so the failing feed is not busy-polled.
			if !m.pause(ctx, m.errorPause) {
				return nil
			}
			m.setState(StateStreaming)
		}
	}
}

// tick runs one coordinator iteration: poll whichever feeds are due, refresh
// the caches, and emit one frame iff at least one feed was due. Last-fetch
// times advance regardless of poll outcome, and every due feed is polled
// before any failure surfaces, so one bad feed cannot defer the other behind
// the error pause.
func (m *Merger) tick(ctx context.Context, sink Sink) error {
	now := m.clock.Now()
	dueInfo := m.info != nil && m.flightID != "" &&
		now.Sub(m.lastInfoFetch) >= m.infoInterval
	duePosition := m.positions != nil &&
		now.Sub(m.lastPositionFetch) >= m.positionInterval

	var infoFresh, positionFresh bool
	var infoErr, positionErr error

	if dueInfo {
		m.lastInfoFetch = now
		snapshot, err := m.info.Poll(ctx, m.flightID)
		switch {
		case err != nil:
			infoErr = err
		case snapshot != nil:
			// Once populated, the info cache never regresses to nil: a
			// not-found poll keeps the previous snapshot.
			m.cachedInfo = snapshot
			infoFresh = true
		}
	}

	if duePosition {
		m.lastPositionFetch = now
		snapshots, err := m.positions.Poll(ctx, m.target)
		switch {
		case err != nil:
			positionErr = err
		case len(snapshots) > 0:
			m.cachedPositions = snapshots
			positionFresh = true
		}
	}

	// The position error wins when both feeds failed: it carries the
	// terminal target-gone signal.
	if positionErr != nil {
		return positionErr
	}
	if infoErr != nil {
		return infoErr
	}

	if !dueInfo && !duePosition {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	frame := flight.CombinedFrame{
		FlightInfo: m.cachedInfo,
		Timestamp:  m.clock.Now(),
		UpdateType: flight.UpdateType{Position: positionFresh, FlightInfo: infoFresh},
	}
	if len(m.cachedPositions) > 0 {
		frame.Live = &m.cachedPositions[0]
	}
	// Multi-target streams carry every matching aircraft, not just the first.
	if m.flightID == "" {
		frame.Flights = m.cachedPositions
	}
	if err := sink.Emit(frame); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStreamClosed, err)
	}
	m.metrics.FrameEmitted("combined")
	return nil
}

// nextSleep returns the time until the earliest feed comes due, floored at
// the minimum quantum.
func (m *Merger) nextSleep() time.Duration {
	now := m.clock.Now()
	sleep := time.Duration(-1)

	consider := func(d time.Duration) {
		if sleep < 0 || d < sleep {
			sleep = d
		}
	}
	if m.positions != nil {
		consider(m.lastPositionFetch.Add(m.positionInterval).Sub(now))
	}
	if m.info != nil && m.flightID != "" {
		consider(m.lastInfoFetch.Add(m.infoInterval).Sub(now))
	}

	if sleep < m.minQuantum {
		sleep = m.minQuantum
	}
	return sleep
}

// pause sleeps on the injected clock, returning false if the context was
// cancelled first.
func (m *Merger) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(d):
		return true
	}
}

// pushError sends an error frame, reporting whether the sink accepted it.
func (m *Merger) pushError(sink Sink, cause error) bool {
	frame := flight.ErrorFrame{
		Timestamp: m.clock.Now(),
		Error:     cause.Error(),
	}
	if err := sink.EmitError(frame); err != nil {
		m.logger.Debug("subscriber gone during error push",
			"component", "stream", "target", m.target.Key(), "error", err)
		return false
	}
	m.metrics.FrameEmitted("error")
	return true
}
