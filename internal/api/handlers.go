package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/models"
	"github.com/codetape/codetape/internal/replayservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *replayservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *replayservice.Service) *Handler {
	return &Handler{svc: svc}
}

// writeError maps core sentinel errors onto HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrSessionOpen):
		writeJSON(w, http.StatusConflict, errorBody("session already open"))
	case errors.Is(err, apperr.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, errorBody("session closed"))
	case errors.Is(err, apperr.ErrNoAnchorCheckpoint):
		writeJSON(w, http.StatusConflict, errorBody("no anchor checkpoint"))
	case errors.Is(err, apperr.ErrStorageFull):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("storage full"))
	case errors.Is(err, apperr.ErrContentTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("content too large"))
	case errors.Is(err, apperr.ErrReconstructionFailed):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("reconstruction failed"))
	case errors.Is(err, apperr.ErrInvalidSeekTarget):
		writeJSON(w, http.StatusBadRequest, errorBody("seek target outside session bounds"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// GetSession handles GET /api/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context())
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// StartSession handles POST /api/session.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	sess, err := h.svc.StartSession(r.Context(), req.Root)
	if err != nil {
		writeError(w, "start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// StopSession handles DELETE /api/session.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.StopSession(r.Context())
	if err != nil {
		writeError(w, "stop session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// PurgeSession handles DELETE /api/sessions/{id}.
func (h *Handler) PurgeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.PurgeSession(r.Context(), id); err != nil {
		writeError(w, "purge session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetEvents handles GET /api/events.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, _ := strconv.ParseInt(q.Get("from"), 10, 64)
	to, _ := strconv.ParseInt(q.Get("to"), 10, 64)
	kind := q.Get("kind")

	events, err := h.svc.GetEvents(r.Context(), from, to, kind)
	if err != nil {
		writeError(w, "get events", err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, EventListResponse{Events: events, Total: len(events)})
}

// GetFiles handles GET /api/files.
func (h *Handler) GetFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.GetFiles(r.Context())
	if err != nil {
		writeError(w, "get files", err)
		return
	}
	if files == nil {
		files = []models.FileSummary{}
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: files})
}

// GetContent handles GET /api/content?path=...&ts=...
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	ts, err := strconv.ParseInt(q.Get("ts"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("ts is required"))
		return
	}

	content, err := h.svc.GetContentAt(r.Context(), path, ts)
	if err != nil {
		writeError(w, "get content", err)
		return
	}
	writeJSON(w, http.StatusOK, ContentResponse{Path: path, Timestamp: ts, Content: string(content)})
}

// StartPlayback handles POST /api/playback.
func (h *Handler) StartPlayback(w http.ResponseWriter, r *http.Request) {
	var req StartPlaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	id, sch, err := h.svc.StartPlayback(r.Context(), req.From, req.Speed)
	if err != nil {
		writeError(w, "start playback", err)
		return
	}
	state, cursor := sch.State()
	writeJSON(w, http.StatusCreated, PlaybackResponse{ID: id, State: string(state), Cursor: cursor})
}

// GetPlayback handles GET /api/playback/{id}.
func (h *Handler) GetPlayback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sch, err := h.svc.Playback(r.Context(), id)
	if err != nil {
		writeError(w, "get playback", err)
		return
	}
	state, cursor := sch.State()
	writeJSON(w, http.StatusOK, PlaybackResponse{ID: id, State: string(state), Cursor: cursor})
}

// PausePlayback handles POST /api/playback/{id}/pause.
func (h *Handler) PausePlayback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.PausePlayback(r.Context(), id); err != nil {
		writeError(w, "pause playback", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumePlayback handles POST /api/playback/{id}/resume.
func (h *Handler) ResumePlayback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.ResumePlayback(r.Context(), id); err != nil {
		writeError(w, "resume playback", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SeekPlayback handles POST /api/playback/{id}/seek.
func (h *Handler) SeekPlayback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	window, err := h.svc.SeekPlayback(r.Context(), id, req.Timestamp)
	if err != nil {
		writeError(w, "seek playback", err)
		return
	}
	if window == nil {
		window = []models.Event{}
	}
	writeJSON(w, http.StatusOK, SeekResponse{Cursor: req.Timestamp, Window: window})
}

// StopPlayback handles DELETE /api/playback/{id}.
func (h *Handler) StopPlayback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.StopPlayback(r.Context(), id); err != nil {
		writeError(w, "stop playback", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBookmarks handles GET /api/bookmarks.
func (h *Handler) GetBookmarks(w http.ResponseWriter, r *http.Request) {
	bms, err := h.svc.GetBookmarks(r.Context())
	if err != nil {
		writeError(w, "get bookmarks", err)
		return
	}
	if bms == nil {
		bms = []models.Bookmark{}
	}
	writeJSON(w, http.StatusOK, BookmarkListResponse{Bookmarks: bms})
}

// AddBookmark handles POST /api/bookmarks.
func (h *Handler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	var req AddBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	seq, err := h.svc.AddBookmark(r.Context(), req.Title, req.Kind)
	if err != nil {
		writeError(w, "add bookmark", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"seq": seq})
}

// RecordTerminal handles POST /api/terminal.
func (h *Handler) RecordTerminal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req TerminalCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.TerminalID == "" || req.Command == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("terminal_id and command are required"))
		return
	}
	if err := h.svc.OnTerminalCommand(r.Context(), req.TerminalID, req.Command, req.Output, req.Timestamp); err != nil {
		writeError(w, "record terminal", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
