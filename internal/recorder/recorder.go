// Package recorder is the write-path boundary: it turns workspace
// changes and terminal commands into events, checkpoints, and diffs.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/metrics"
	"github.com/codetape/codetape/internal/models"
	"github.com/codetape/codetape/internal/patch"
	"github.com/codetape/codetape/internal/sse"
	"github.com/codetape/codetape/internal/timeline"
)

// Change is one detected workspace change. Content is nil when the file
// no longer exists or could not be read.
type Change struct {
	Path      string
	Content   []byte
	Exists    bool
	Timestamp int64
}

// Detector yields workspace changes into ch until ctx is cancelled. The
// recorder never depends on the detection mechanism; fsnotify, polling,
// or an editor plugin all fit behind this interface.
type Detector interface {
	Watch(ctx context.Context, ch chan<- Change) error
}

// Policy is the checkpoint-interval tuning knob: a full checkpoint is
// taken every Every changes per path, or whenever Interval has elapsed
// since the path's last checkpoint, whichever comes first. Changes in
// between are stored as diffs.
type Policy struct {
	Every    int
	Interval time.Duration
}

func (p *Policy) withDefaults() {
	if p.Every <= 0 {
		p.Every = 20
	}
	if p.Interval <= 0 {
		p.Interval = 5 * time.Minute
	}
}

// Recorder is the single writer for a session. It owns the per-path
// capture state (last seen content, change counts) and decides
// checkpoint vs diff per the policy.
type Recorder struct {
	store      timeline.Writer
	logger     *slog.Logger
	broker     *sse.Broker      // optional
	m          *metrics.Metrics // optional
	policy     Policy
	maxContent int

	mu          sync.Mutex
	known       map[string]struct{}
	lastContent map[string][]byte
	sinceCkpt   map[string]int
	lastCkptAt  map[string]int64
}

// New creates a Recorder writing to store. broker and m may be nil.
func New(store timeline.Writer, policy Policy, maxContent int, logger *slog.Logger, broker *sse.Broker, m *metrics.Metrics) *Recorder {
	policy.withDefaults()
	if maxContent <= 0 {
		maxContent = 100_000
	}
	return &Recorder{
		store:       store,
		logger:      logger,
		broker:      broker,
		m:           m,
		policy:      policy,
		maxContent:  maxContent,
		known:       make(map[string]struct{}),
		lastContent: make(map[string][]byte),
		sinceCkpt:   make(map[string]int),
		lastCkptAt:  make(map[string]int64),
	}
}

// Consume drains changes from ch until ctx is cancelled.
func (r *Recorder) Consume(ctx context.Context, ch <-chan Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.OnFileChanged(c.Path, c.Content, c.Exists, c.Timestamp); err != nil {
				if errors.Is(err, apperr.ErrSessionClosed) {
					continue
				}
				r.logger.Warn("recorder: change dropped",
					slog.String("path", c.Path), slog.String("error", err.Error()))
			}
		}
	}
}

// OnFileChanged records one file change: always an event, plus a
// checkpoint or diff when content is available and within the size cap.
// Oversized content degrades to an event-only capture, explicitly
// logged, never silently truncated.
func (r *Recorder) OnFileChanged(path string, content []byte, exists bool, ts int64) error {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, known := r.known[path]
	kind := models.KindEdit
	switch {
	case !exists:
		kind = models.KindDelete
	case !known:
		kind = models.KindCreate
	}

	captured := false
	if exists && content != nil {
		if len(content) > r.maxContent {
			r.logger.Warn("recorder: capture skipped, content too large",
				slog.String("path", path), slog.Int("size", len(content)))
		} else if err := r.captureLocked(path, content, ts); err != nil {
			r.logger.Warn("recorder: capture failed",
				slog.String("path", path), slog.String("error", err.Error()))
		} else {
			captured = true
		}
	}

	payload, _ := json.Marshal(models.EditPayload{Path: path, Size: len(content), Captured: captured})
	seq, err := r.store.AppendEvent(models.Event{
		Timestamp: ts,
		Kind:      kind,
		Source:    path,
		Payload:   payload,
	})
	if err != nil {
		r.count("event", err)
		return err
	}
	r.count("event", nil)

	switch kind {
	case models.KindDelete:
		delete(r.known, path)
		delete(r.lastContent, path)
		delete(r.sinceCkpt, path)
		delete(r.lastCkptAt, path)
	default:
		r.known[path] = struct{}{}
		// lastContent must track what the store actually holds; a failed
		// capture must not become the anchor of the next diff.
		if captured {
			r.lastContent[path] = append([]byte(nil), content...)
		}
	}

	if r.broker != nil {
		r.broker.PublishAppend(string(kind), path, seq)
	}
	return nil
}

// captureLocked stores content as a full checkpoint or an incremental
// diff per the checkpoint policy.
func (r *Recorder) captureLocked(path string, content []byte, ts int64) error {
	base, known := r.lastContent[path]
	wantCheckpoint := !known ||
		r.sinceCkpt[path]+1 >= r.policy.Every ||
		ts-r.lastCkptAt[path] >= r.policy.Interval.Milliseconds()

	if wantCheckpoint {
		_, err := r.store.PutCheckpoint(path, ts, content)
		if err != nil {
			r.count("checkpoint", err)
			return err
		}
		r.count("checkpoint", nil)
		r.sinceCkpt[path] = 0
		r.lastCkptAt[path] = ts
		return nil
	}

	payload, err := patch.Make(base, content)
	if err != nil {
		return err
	}
	if _, err := r.store.PutDiff(path, ts, payload, patch.StatsOf(base, content)); err != nil {
		if errors.Is(err, apperr.ErrNoAnchorCheckpoint) {
			// The path has changes recorded but no checkpoint in this
			// session; fall back to a full capture.
			if _, cerr := r.store.PutCheckpoint(path, ts, content); cerr != nil {
				r.count("checkpoint", cerr)
				return cerr
			}
			r.count("checkpoint", nil)
			r.sinceCkpt[path] = 0
			r.lastCkptAt[path] = ts
			return nil
		}
		r.count("diff", err)
		return err
	}
	r.count("diff", nil)
	r.sinceCkpt[path]++
	return nil
}

// OnTerminalCommand records a terminal command and its output.
func (r *Recorder) OnTerminalCommand(terminalID, command, output string, ts int64) error {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	payload, _ := json.Marshal(models.TerminalPayload{TerminalID: terminalID, Command: command, Output: output})
	seq, err := r.store.AppendEvent(models.Event{
		Timestamp: ts,
		Kind:      models.KindTerminal,
		Source:    terminalID,
		Payload:   payload,
	})
	r.count("event", err)
	if err != nil {
		return err
	}
	if r.broker != nil {
		r.broker.PublishAppend(string(models.KindTerminal), terminalID, seq)
	}
	return nil
}

// AddBookmark flags the current instant. kind is "manual" or the name of
// the automatic rule that raised it.
func (r *Recorder) AddBookmark(title, kind string, ts int64) (int64, error) {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	if kind == "" {
		kind = "manual"
	}
	seq, err := r.store.PutBookmark(ts, title, kind)
	r.count("bookmark", err)
	if err != nil {
		return 0, err
	}
	payload, _ := json.Marshal(models.BookmarkPayload{Title: title, Kind: kind})
	if _, err := r.store.AppendEvent(models.Event{
		Timestamp: ts,
		Kind:      models.KindBookmark,
		Source:    title,
		Payload:   payload,
	}); err != nil {
		return seq, err
	}
	if r.broker != nil {
		r.broker.PublishAppend(string(models.KindBookmark), title, seq)
	}
	return seq, nil
}

func (r *Recorder) count(record string, err error) {
	if r.m == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrStorageFull),
		errors.Is(err, apperr.ErrContentTooLarge),
		errors.Is(err, apperr.ErrSessionClosed),
		errors.Is(err, apperr.ErrNoAnchorCheckpoint):
		status = "rejected"
	default:
		status = "error"
	}
	r.m.AppendCounter.WithLabelValues(record, status).Inc()
	r.m.StoreBytes.Set(float64(r.store.BytesUsed()))
}
