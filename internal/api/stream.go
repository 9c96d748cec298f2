package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codetape/codetape/internal/metrics"
)

// StreamPlayback handles GET /api/playback/{id}/stream: an SSE stream of
// the scheduler's emissions. Each due event arrives as a
// "playback.event" message; the stream ends with a single
// "playback.complete" message. Disconnecting does not cancel the
// playback: the scheduler keeps emitting into its buffer and blocks once
// it fills, so clients that abandon a stream should DELETE the playback.
func (h *Handler) StreamPlayback(m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sch, err := h.svc.Playback(r.Context(), id)
		if err != nil {
			writeError(w, "stream playback", err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case em, open := <-sch.C():
				if !open {
					return
				}
				name := "playback.event"
				if em.Complete {
					name = "playback.complete"
				}
				payload, err := json.Marshal(em)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
				flusher.Flush()
				if m != nil && !em.Complete {
					m.EmittedEvents.Inc()
				}
				if em.Complete {
					return
				}
			}
		}
	}
}
