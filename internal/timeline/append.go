package timeline

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/fingerprint"
	"github.com/codetape/codetape/internal/models"
	"github.com/codetape/codetape/internal/patch"
)

// AppendEvent appends ev to the session log and returns the assigned
// sequence number. A zero timestamp is filled with the current wall
// clock. A rejected append never consumes a sequence number.
func (s *Store) AppendEvent(ev models.Event) (int64, error) {
	if !ev.Kind.Valid() {
		return 0, fmt.Errorf("timeline: append event: unknown kind %q", ev.Kind)
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admitLocked(int64(len(ev.Payload)) + int64(len(ev.Source))); err != nil {
		return 0, fmt.Errorf("timeline: append event: %w", err)
	}

	ev.Seq = s.nextSeq
	if s.opts.Durability == DurabilityBuffered {
		s.pending.events = append(s.pending.events, ev)
	} else if err := insertEvent(s.conn, s.sess.ID, ev); err != nil {
		return 0, err
	}
	s.advanceLocked(int64(len(ev.Payload)) + int64(len(ev.Source)))
	return ev.Seq, nil
}

// PutCheckpoint captures full content for path at ts and returns the
// assigned sequence number. Content above the configured cap is rejected
// with ErrContentTooLarge; the caller decides whether to degrade to an
// event-only capture.
func (s *Store) PutCheckpoint(path string, ts int64, content []byte) (int64, error) {
	if len(content) > s.opts.MaxContentBytes {
		return 0, fmt.Errorf("timeline: put checkpoint %s (%d bytes): %w", path, len(content), apperr.ErrContentTooLarge)
	}
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admitLocked(int64(len(content))); err != nil {
		return 0, fmt.Errorf("timeline: put checkpoint: %w", err)
	}
	last, err := s.lastCheckpointTsLocked(path)
	if err != nil {
		return 0, err
	}
	if ts < last {
		return 0, fmt.Errorf("timeline: put checkpoint %s: timestamp %d regresses behind %d", path, ts, last)
	}

	cp := models.Checkpoint{
		Seq:         s.nextSeq,
		Timestamp:   ts,
		Path:        path,
		Content:     append([]byte(nil), content...),
		Fingerprint: fingerprint.Hex(content),
		Size:        len(content),
	}
	if s.opts.Durability == DurabilityBuffered {
		s.pending.checkpoints = append(s.pending.checkpoints, cp)
	} else if err := insertCheckpoint(s.conn, s.sess.ID, cp); err != nil {
		return 0, err
	}
	s.advanceLocked(int64(cp.Size))
	return cp.Seq, nil
}

// PutDiff appends an incremental patch for path anchored to the path's
// most recent checkpoint. Fails with ErrNoAnchorCheckpoint when the path
// has no checkpoint in this session. st is the caller-computed change
// bookkeeping; the patch payload itself stays opaque.
func (s *Store) PutDiff(path string, ts int64, payload []byte, st patch.Stats) (int64, error) {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admitLocked(int64(len(payload))); err != nil {
		return 0, fmt.Errorf("timeline: put diff: %w", err)
	}
	anchored, err := s.hasCheckpointLocked(path)
	if err != nil {
		return 0, err
	}
	if !anchored {
		return 0, fmt.Errorf("timeline: put diff %s: %w", path, apperr.ErrNoAnchorCheckpoint)
	}

	d := models.Diff{
		Seq:          s.nextSeq,
		Timestamp:    ts,
		Path:         path,
		Patch:        append([]byte(nil), payload...),
		CharsAdded:   st.CharsAdded,
		CharsRemoved: st.CharsRemoved,
		LinesAdded:   st.LinesAdded,
		LinesRemoved: st.LinesRemoved,
	}
	if s.opts.Durability == DurabilityBuffered {
		s.pending.diffs = append(s.pending.diffs, d)
	} else if err := insertDiff(s.conn, s.sess.ID, d); err != nil {
		return 0, err
	}
	s.advanceLocked(int64(len(d.Patch)))
	return d.Seq, nil
}

// PutBookmark records a flagged instant. kind is "manual" or the name of
// the automatic rule that raised it.
func (s *Store) PutBookmark(ts int64, title, kind string) (int64, error) {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admitLocked(int64(len(title))); err != nil {
		return 0, fmt.Errorf("timeline: put bookmark: %w", err)
	}

	bm := models.Bookmark{Seq: s.nextSeq, Timestamp: ts, Title: title, Kind: kind}
	if s.opts.Durability == DurabilityBuffered {
		s.pending.bookmarks = append(s.pending.bookmarks, bm)
	} else if err := insertBookmark(s.conn, s.sess.ID, bm); err != nil {
		return 0, err
	}
	s.advanceLocked(int64(len(title)))
	return bm.Seq, nil
}

// admitLocked validates that an append of extra bytes may proceed.
func (s *Store) admitLocked(extra int64) error {
	if s.sess == nil || !s.sess.Open() {
		return apperr.ErrSessionClosed
	}
	if s.opts.MaxSessionBytes > 0 && s.bytesUsed+extra > s.opts.MaxSessionBytes {
		return apperr.ErrStorageFull
	}
	return nil
}

// advanceLocked commits an accepted append to the in-memory counters.
func (s *Store) advanceLocked(extra int64) {
	s.nextSeq++
	s.bytesUsed += extra
}

// BytesUsed reports the accounted byte usage of the open session.
func (s *Store) BytesUsed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesUsed
}

// lastCheckpointTsLocked returns the timestamp of path's most recent
// checkpoint (committed or pending), or 0 when none exists.
func (s *Store) lastCheckpointTsLocked(path string) (int64, error) {
	var ts int64
	err := s.conn.QueryRow(`SELECT ts FROM checkpoints WHERE session_id = ? AND path = ? ORDER BY seq DESC LIMIT 1`,
		s.sess.ID, path).Scan(&ts)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("timeline: last checkpoint ts: %w", err)
	}
	for _, cp := range s.pending.checkpoints {
		if cp.Path == path && cp.Timestamp > ts {
			ts = cp.Timestamp
		}
	}
	return ts, nil
}

// hasCheckpointLocked reports whether path has any checkpoint (committed
// or pending) in the open session.
func (s *Store) hasCheckpointLocked(path string) (bool, error) {
	var one int
	err := s.conn.QueryRow(`SELECT 1 FROM checkpoints WHERE session_id = ? AND path = ? LIMIT 1`, s.sess.ID, path).Scan(&one)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("timeline: anchor lookup: %w", err)
	}
	for _, cp := range s.pending.checkpoints {
		if cp.Path == path {
			return true, nil
		}
	}
	return false, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertEvent(e execer, sid string, ev models.Event) error {
	_, err := e.Exec(`INSERT INTO events (session_id, seq, ts, kind, source, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		sid, ev.Seq, ev.Timestamp, string(ev.Kind), ev.Source, ev.Payload)
	if err != nil {
		return fmt.Errorf("timeline: insert event: %w", err)
	}
	return nil
}

func insertCheckpoint(e execer, sid string, cp models.Checkpoint) error {
	_, err := e.Exec(`INSERT INTO checkpoints (session_id, seq, ts, path, content, fingerprint, size) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sid, cp.Seq, cp.Timestamp, cp.Path, cp.Content, cp.Fingerprint, cp.Size)
	if err != nil {
		return fmt.Errorf("timeline: insert checkpoint: %w", err)
	}
	return nil
}

func insertDiff(e execer, sid string, d models.Diff) error {
	_, err := e.Exec(`INSERT INTO diffs (session_id, seq, ts, path, patch, chars_added, chars_removed, lines_added, lines_removed) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sid, d.Seq, d.Timestamp, d.Path, d.Patch, d.CharsAdded, d.CharsRemoved, d.LinesAdded, d.LinesRemoved)
	if err != nil {
		return fmt.Errorf("timeline: insert diff: %w", err)
	}
	return nil
}

func insertBookmark(e execer, sid string, bm models.Bookmark) error {
	_, err := e.Exec(`INSERT INTO bookmarks (session_id, seq, ts, title, kind) VALUES (?, ?, ?, ?, ?)`,
		sid, bm.Seq, bm.Timestamp, bm.Title, bm.Kind)
	if err != nil {
		return fmt.Errorf("timeline: insert bookmark: %w", err)
	}
	return nil
}
