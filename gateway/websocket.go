package gateway

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Manu-world/flight-tracking-service/auth"
	"github.com/Manu-world/flight-tracking-service/errors"
	"github.com/Manu-world/flight-tracking-service/flight"
	"github.com/Manu-world/flight-tracking-service/stream"
)

const socketWriteWait = 10 * time.Second

// wsSink writes merger output as websocket JSON frames: {flight_info,
// timestamp} for data, {timestamp, error} for failures.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) writeJSON(payload any) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(payload)
}

func (s *wsSink) Emit(f flight.CombinedFrame) error {
	inner, err := json.Marshal(struct {
		Info       *flight.EnrichedInfoSnapshot `json:"info"`
		Live       *flight.PositionSnapshot     `json:"live"`
		UpdateType flight.UpdateType            `json:"update_type"`
	}{f.FlightInfo, f.Live, f.UpdateType})
	if err != nil {
		return err
	}
	return s.writeJSON(flight.InfoFrame{FlightInfo: inner, Timestamp: f.Timestamp})
}

func (s *wsSink) EmitError(f flight.ErrorFrame) error {
	return s.writeJSON(f)
}

// handleFlightSocket streams one flight over a websocket. The credential is
// a `token` query parameter checked before any data flows; every failure on
// the authentication path closes with 1008, internal errors with 1011,
// everything else normally.
func (s *Server) handleFlightSocket(w http.ResponseWriter, r *http.Request) {
	flightID := r.PathValue("flight_id")
	token, tokenErr := auth.TokenFromQuery(r.URL.Query())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "component", "gateway", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	if tokenErr != nil {
		s.closeSocket(conn, websocket.ClosePolicyViolation, "authentication required")
		return
	}
	identity, err := s.gate.Verify(r.Context(), token)
	if err != nil {
		reason := "authentication unavailable"
		if errors.ClassifyKind(err) == errors.KindAuthInvalid {
			reason = "invalid credentials"
		}
		s.closeSocket(conn, websocket.ClosePolicyViolation, reason)
		return
	}

	s.recordSearch(identity.ID, flightID)

	sub, ctx := s.registry.Open(r.Context(), flightID)
	defer s.registry.Close(sub)

	// Reader pump: the client sends nothing meaningful, but reads surface
	// disconnects and close frames promptly.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.registry.Close(sub)
				return
			}
		}
	}()

	merger := stream.NewMerger(stream.MergerConfig{
		Target:           flight.Single(flightID),
		FlightID:         flightID,
		Positions:        s.positions,
		Info:             s.info,
		PositionInterval: s.cfg.PositionInterval,
		InfoInterval:     s.cfg.InfoInterval,
		ErrorPause:       s.cfg.ErrorPause,
		Clock:            s.clock,
		Logger:           s.logger,
		Metrics:          s.metrics,
	})

	err = merger.Run(ctx, &wsSink{conn: conn})
	switch {
	case err == nil, stderrors.Is(err, errors.ErrTargetNotFound):
		// The merger already pushed an error frame for a vanished target.
		s.closeSocket(conn, websocket.CloseNormalClosure, "")
	case stderrors.Is(err, errors.ErrStreamClosed):
		// Client already gone; nothing left to send.
	default:
		s.closeSocket(conn, websocket.CloseInternalServerErr, "internal error")
	}
}

func (s *Server) closeSocket(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(socketWriteWait)
	if err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		s.logger.Debug("websocket close failed", "component", "gateway", "error", err)
	}
}
