package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleStream handles GET /api/events/{eventID}/stream, serving
// leaderboard deltas over Server-Sent Events. Delivery is best-effort
// at-most-once: a delta dropped for a slow consumer is not replayed, and
// clients re-sync by fetching the leaderboard. Disconnection unsubscribes
// via the request context.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", nil)
		return
	}

	eventID := chi.URLParam(r, "eventID")
	sub := s.engine.Subscribe(r.Context(), eventID)
	if sub == nil {
		writeError(w, http.StatusServiceUnavailable, "shutting_down", nil)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Tell the client the stream is live before the first delta arrives.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case delta, open := <-sub.C:
			if !open {
				return
			}
			payload, err := json.Marshal(delta)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: delta\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
