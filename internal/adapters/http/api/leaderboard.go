package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleGetLeaderboard handles GET /api/events/{eventID}/leaderboard?limit=N.
// The view is derived fresh from aggregates on every call.
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		if n > s.engine.MaxLeaderboardLimit() {
			writeError(w, http.StatusBadRequest, "limit_exceeded", ErrBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.engine.Leaderboard(r.Context(), eventID, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":  eventID,
		"entries":   entries,
		"simulated": s.engine.Simulated(),
	})
}
