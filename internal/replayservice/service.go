// Package replayservice coordinates the timeline store, reconstruction
// engine, playback manager, and recorder behind one query/control
// surface shared by the HTTP API and the MCP server.
package replayservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/metrics"
	"github.com/codetape/codetape/internal/models"
	"github.com/codetape/codetape/internal/playback"
	"github.com/codetape/codetape/internal/reconstruct"
	"github.com/codetape/codetape/internal/recorder"
	"github.com/codetape/codetape/internal/timeline"
)

// Service is the application-facing facade over the timeline core.
type Service struct {
	store     *timeline.Store
	engine    *reconstruct.Engine
	playbacks *playback.Manager
	rec       *recorder.Recorder
	m         *metrics.Metrics // optional
}

// New creates a Service. m may be nil.
func New(store *timeline.Store, engine *reconstruct.Engine, playbacks *playback.Manager, rec *recorder.Recorder, m *metrics.Metrics) *Service {
	return &Service{store: store, engine: engine, playbacks: playbacks, rec: rec, m: m}
}

// StartSession begins recording at root.
func (s *Service) StartSession(_ context.Context, root string) (*models.Session, error) {
	return s.store.BeginSession(root)
}

// StopSession ends the open recording session.
func (s *Service) StopSession(_ context.Context) (*models.Session, error) {
	return s.store.EndSession()
}

// GetSession returns the current (or most recently ended) session.
func (s *Service) GetSession(_ context.Context) (*models.Session, error) {
	return s.store.CurrentSession()
}

// PurgeSession deletes a closed session and everything it owns.
func (s *Service) PurgeSession(_ context.Context, id string) error {
	return s.store.PurgeSession(id)
}

// GetEvents returns events in [fromTs, toTs] ordered by (timestamp,
// sequence), optionally filtered by kind. kind == "" means all kinds.
func (s *Service) GetEvents(_ context.Context, fromTs, toTs int64, kind string) ([]models.Event, error) {
	if kind == "" {
		return s.store.EventsBetween(fromTs, toTs)
	}
	k := models.EventKind(kind)
	if !k.Valid() {
		return nil, fmt.Errorf("replayservice: unknown event kind %q", kind)
	}
	return s.store.EventsBetween(fromTs, toTs, k)
}

// GetFiles returns tracked paths with change counts.
func (s *Service) GetFiles(_ context.Context) ([]models.FileSummary, error) {
	return s.store.Files()
}

// GetBookmarks returns the session's bookmarks in sequence order.
func (s *Service) GetBookmarks(_ context.Context) ([]models.Bookmark, error) {
	return s.store.Bookmarks()
}

// AddBookmark flags the current instant through the recorder.
func (s *Service) AddBookmark(_ context.Context, title, kind string) (int64, error) {
	return s.rec.AddBookmark(title, kind, 0)
}

// GetContentAt reconstructs path's content at ts. ErrNotFound means the
// path had no captured state yet; ErrReconstructionFailed means the diff
// chain could not be replayed.
func (s *Service) GetContentAt(_ context.Context, path string, ts int64) ([]byte, error) {
	start := time.Now()
	content, err := s.engine.ContentAt(path, ts)
	if s.m != nil {
		s.m.ReconstructionDuration.Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			s.m.ReconstructionCounter.WithLabelValues("ok").Inc()
		case errors.Is(err, apperr.ErrNotFound):
			s.m.ReconstructionCounter.WithLabelValues("none").Inc()
		default:
			s.m.ReconstructionCounter.WithLabelValues("failed").Inc()
		}
	}
	return content, err
}

// StartPlayback begins a new playback session from fromTs at speed and
// returns its id plus the scheduler whose stream carries the emissions.
func (s *Service) StartPlayback(_ context.Context, fromTs int64, speed float64) (string, *playback.Scheduler, error) {
	if speed == 0 {
		speed = 1.0
	}
	return s.playbacks.Start(fromTs, speed)
}

// Playback returns the scheduler for id.
func (s *Service) Playback(_ context.Context, id string) (*playback.Scheduler, error) {
	return s.playbacks.Get(id)
}

// PausePlayback halts the playback clock for id.
func (s *Service) PausePlayback(_ context.Context, id string) error {
	sch, err := s.playbacks.Get(id)
	if err != nil {
		return err
	}
	return sch.Pause()
}

// ResumePlayback continues playback from the paused cursor.
func (s *Service) ResumePlayback(_ context.Context, id string) error {
	sch, err := s.playbacks.Get(id)
	if err != nil {
		return err
	}
	return sch.Resume()
}

// SeekPlayback moves the cursor and returns the surrounding context
// window.
func (s *Service) SeekPlayback(_ context.Context, id string, ts int64) ([]models.Event, error) {
	sch, err := s.playbacks.Get(id)
	if err != nil {
		return nil, err
	}
	return sch.Seek(ts)
}

// StopPlayback cancels playback id and releases its resources.
func (s *Service) StopPlayback(_ context.Context, id string) error {
	return s.playbacks.Stop(id)
}

// OnTerminalCommand records a terminal command through the recorder.
func (s *Service) OnTerminalCommand(_ context.Context, terminalID, command, output string, ts int64) error {
	return s.rec.OnTerminalCommand(terminalID, command, output, ts)
}

// EventCount returns the number of events in the session.
func (s *Service) EventCount(_ context.Context) (int, error) {
	return s.store.EventCount()
}
