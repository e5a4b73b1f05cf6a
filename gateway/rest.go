package gateway

import (
	"net/http"

	"github.com/Manu-world/flight-tracking-service/flight"
	"github.com/Manu-world/flight-tracking-service/history"
)

// handleLiveSnapshot answers a one-shot position query for the target in the
// query parameters.
func (s *Server) handleLiveSnapshot(w http.ResponseWriter, r *http.Request) {
	target := targetFromQuery(r)

	snapshots, err := s.positions.Poll(r.Context(), target)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if snapshots == nil {
		snapshots = []flight.PositionSnapshot{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"data": snapshots})
}

// handleHistory returns the authenticated user's search history, most recent
// first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"data": []history.Entry{}})
		return
	}

	entries, err := s.store.List(r.Context(), identityFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
