package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codetape/codetape/internal/metrics"
	"github.com/codetape/codetape/internal/replayservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// liveHandler, if non-nil, is mounted at GET /live inside the auth group
// and streams recording activity as it is captured.
func NewRouter(svc *replayservice.Service, authEnabled bool, token string, liveHandler http.Handler, m *metrics.Metrics) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Session lifecycle.
	r.Get("/session", h.GetSession)
	r.Post("/session", h.StartSession)
	r.Delete("/session", h.StopSession)
	r.Delete("/sessions/{id}", h.PurgeSession)

	// Timeline queries.
	r.Get("/events", h.GetEvents)
	r.Get("/files", h.GetFiles)
	r.Get("/content", h.GetContent)

	// Bookmarks.
	r.Get("/bookmarks", h.GetBookmarks)
	r.Post("/bookmarks", h.AddBookmark)

	// Terminal command capture.
	r.Post("/terminal", h.RecordTerminal)

	// Playback control.
	r.Post("/playback", h.StartPlayback)
	r.Get("/playback/{id}", h.GetPlayback)
	r.Post("/playback/{id}/pause", h.PausePlayback)
	r.Post("/playback/{id}/resume", h.ResumePlayback)
	r.Post("/playback/{id}/seek", h.SeekPlayback)
	r.Delete("/playback/{id}", h.StopPlayback)
	r.Get("/playback/{id}/stream", h.StreamPlayback(m))

	// Live recording activity (protected by same auth middleware).
	if liveHandler != nil {
		r.Get("/live", liveHandler.ServeHTTP)
	}

	return r
}
