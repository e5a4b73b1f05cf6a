package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Manu-world/flight-tracking-service/flight"
	"github.com/Manu-world/flight-tracking-service/stream"
)

// sseSink writes merger output as server-sent events. It is driven by a
// single coordinator goroutine, so no locking is needed.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseSink{w: w, flusher: flusher}, true
}

func (s *sseSink) send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Emit(f flight.CombinedFrame) error   { return s.send(f) }
func (s *sseSink) EmitError(f flight.ErrorFrame) error { return s.send(f) }

func sseHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// handleLiveStream streams position frames for a bounds/flight-list target.
// Only the position feed is polled; every matching aircraft rides in the
// frame's flights list and flight_info stays null.
func (s *Server) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	target := targetFromQuery(r)

	sink, ok := newSSESink(w)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError,
			map[string]string{"error": "streaming unsupported"})
		return
	}
	sseHeaders(w)
	w.WriteHeader(http.StatusOK)
	sink.flusher.Flush()

	s.runStream(r, sink, stream.MergerConfig{Target: target})
}

// handleCombinedStream streams merged position and metadata frames for one
// flight.
func (s *Server) handleCombinedStream(w http.ResponseWriter, r *http.Request) {
	flightID := r.PathValue("flight_id")
	if flightID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "flight id required"})
		return
	}

	sink, ok := newSSESink(w)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError,
			map[string]string{"error": "streaming unsupported"})
		return
	}
	sseHeaders(w)
	w.WriteHeader(http.StatusOK)
	sink.flusher.Flush()

	s.recordSearch(identityFrom(r.Context()).ID, flightID)
	s.runStream(r, sink, stream.MergerConfig{
		Target:   flight.Single(flightID),
		FlightID: flightID,
	})
}

// runStream registers a subscription and drives a coordinator over the sink
// until the client disconnects or the stream fails terminally.
func (s *Server) runStream(r *http.Request, sink stream.Sink, cfg stream.MergerConfig) {
	sub, ctx := s.registry.Open(r.Context(), cfg.Target.Key())
	defer s.registry.Close(sub)

	cfg.Positions = s.positions
	cfg.Info = s.info
	cfg.PositionInterval = s.cfg.PositionInterval
	cfg.InfoInterval = s.cfg.InfoInterval
	cfg.ErrorPause = s.cfg.ErrorPause
	cfg.Clock = s.clock
	cfg.Logger = s.logger
	cfg.Metrics = s.metrics

	if err := stream.NewMerger(cfg).Run(ctx, sink); err != nil {
		s.logger.Info("stream ended",
			"component", "gateway", "target", cfg.Target.Key(), "reason", err)
	}
}
