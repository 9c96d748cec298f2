package timeline

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/models"
)

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// snapshot copies the pending set and session id under the write
// lock. Readers merge this snapshot with committed rows, deduplicating
// by sequence number: a concurrent flush may commit a record while it is
// still in the snapshot, never the reverse, so the merged view only
// grows.
func (s *Store) snapshot() (string, pendingSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return "", pendingSet{}, apperr.ErrNotFound
	}
	p := pendingSet{
		events:      append([]models.Event(nil), s.pending.events...),
		checkpoints: append([]models.Checkpoint(nil), s.pending.checkpoints...),
		diffs:       append([]models.Diff(nil), s.pending.diffs...),
		bookmarks:   append([]models.Bookmark(nil), s.pending.bookmarks...),
	}
	return s.sess.ID, p, nil
}

// EventsBetween returns every event with fromTs <= ts <= toTs, ordered
// by (timestamp, sequence). toTs <= 0 means no upper bound. An optional
// kind filter keeps only the listed kinds.
func (s *Store) EventsBetween(fromTs, toTs int64, kinds ...models.EventKind) ([]models.Event, error) {
	sid, pending, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	query := `SELECT seq, ts, kind, source, payload FROM events WHERE session_id = ? AND ts >= ?`
	args := []any{sid, fromTs}
	if toTs > 0 {
		query += ` AND ts <= ?`
		args = append(args, toTs)
	}
	query += ` ORDER BY ts, seq`

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("timeline: events between: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	seen := make(map[int64]struct{})
	for rows.Next() {
		var ev models.Event
		var kind string
		if err := rows.Scan(&ev.Seq, &ev.Timestamp, &kind, &ev.Source, &ev.Payload); err != nil {
			return nil, err
		}
		ev.Kind = models.EventKind(kind)
		out = append(out, ev)
		seen[ev.Seq] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ev := range pending.events {
		if _, dup := seen[ev.Seq]; dup {
			continue
		}
		if ev.Timestamp < fromTs || (toTs > 0 && ev.Timestamp > toTs) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Seq < out[j].Seq
	})

	if len(kinds) > 0 {
		keep := make(map[models.EventKind]struct{}, len(kinds))
		for _, k := range kinds {
			keep[k] = struct{}{}
		}
		filtered := out[:0]
		for _, ev := range out {
			if _, ok := keep[ev.Kind]; ok {
				filtered = append(filtered, ev)
			}
		}
		out = filtered
	}
	return out, nil
}

// EventCount returns the number of events in the session.
func (s *Store) EventCount() (int, error) {
	sid, pending, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM events WHERE session_id = ?`, sid).Scan(&n); err != nil {
		return 0, fmt.Errorf("timeline: event count: %w", err)
	}
	// Pending events all have sequence numbers past the committed tail,
	// so the sum cannot double-count even if a flush lands in between.
	var maxSeq int64
	_ = s.conn.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id = ?`, sid).Scan(&maxSeq)
	for _, ev := range pending.events {
		if ev.Seq > maxSeq {
			n++
		}
	}
	return n, nil
}

// LatestCheckpointBefore returns the latest checkpoint for path whose
// timestamp is <= ts, or ErrNotFound when the path had no captured state
// yet. The (session, path, seq) index keeps the lookup sublinear.
func (s *Store) LatestCheckpointBefore(path string, ts int64) (*models.Checkpoint, error) {
	sid, pending, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	var best *models.Checkpoint
	row := s.conn.QueryRow(`
		SELECT seq, ts, path, content, fingerprint, size FROM checkpoints
		WHERE session_id = ? AND path = ? AND ts <= ?
		ORDER BY seq DESC LIMIT 1`, sid, path, ts)
	cp := models.Checkpoint{}
	switch err := row.Scan(&cp.Seq, &cp.Timestamp, &cp.Path, &cp.Content, &cp.Fingerprint, &cp.Size); {
	case err == nil:
		best = &cp
	case isNoRows(err):
	default:
		return nil, fmt.Errorf("timeline: latest checkpoint: %w", err)
	}

	for i := range pending.checkpoints {
		p := &pending.checkpoints[i]
		if p.Path != path || p.Timestamp > ts {
			continue
		}
		if best == nil || p.Seq > best.Seq {
			best = p
		}
	}
	if best == nil {
		return nil, apperr.ErrNotFound
	}
	return best, nil
}

// DiffsBetween returns path's diffs with fromSeq < seq <= toSeq in
// sequence order. toSeq <= 0 means no upper bound.
func (s *Store) DiffsBetween(path string, fromSeq, toSeq int64) ([]models.Diff, error) {
	sid, pending, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	query := `SELECT seq, ts, path, patch, chars_added, chars_removed, lines_added, lines_removed
		FROM diffs WHERE session_id = ? AND path = ? AND seq > ?`
	args := []any{sid, path, fromSeq}
	if toSeq > 0 {
		query += ` AND seq <= ?`
		args = append(args, toSeq)
	}
	query += ` ORDER BY seq`

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("timeline: diffs between: %w", err)
	}
	defer rows.Close()

	var out []models.Diff
	seen := make(map[int64]struct{})
	for rows.Next() {
		var d models.Diff
		if err := rows.Scan(&d.Seq, &d.Timestamp, &d.Path, &d.Patch, &d.CharsAdded, &d.CharsRemoved, &d.LinesAdded, &d.LinesRemoved); err != nil {
			return nil, err
		}
		out = append(out, d)
		seen[d.Seq] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, d := range pending.diffs {
		if _, dup := seen[d.Seq]; dup {
			continue
		}
		if d.Path != path || d.Seq <= fromSeq || (toSeq > 0 && d.Seq > toSeq) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Bookmarks returns the session's bookmarks in sequence order.
func (s *Store) Bookmarks() ([]models.Bookmark, error) {
	sid, pending, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(`SELECT seq, ts, title, kind FROM bookmarks WHERE session_id = ? ORDER BY seq`, sid)
	if err != nil {
		return nil, fmt.Errorf("timeline: bookmarks: %w", err)
	}
	defer rows.Close()

	var out []models.Bookmark
	seen := make(map[int64]struct{})
	for rows.Next() {
		var bm models.Bookmark
		if err := rows.Scan(&bm.Seq, &bm.Timestamp, &bm.Title, &bm.Kind); err != nil {
			return nil, err
		}
		out = append(out, bm)
		seen[bm.Seq] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, bm := range pending.bookmarks {
		if _, dup := seen[bm.Seq]; !dup {
			out = append(out, bm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Files returns the set of tracked paths with their change counts,
// sorted by path.
func (s *Store) Files() ([]models.FileSummary, error) {
	fileKinds := []models.EventKind{models.KindEdit, models.KindCreate, models.KindDelete, models.KindRename}
	events, err := s.EventsBetween(0, 0, fileKinds...)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, ev := range events {
		counts[ev.Source]++
	}
	out := make([]models.FileSummary, 0, len(counts))
	for path, n := range counts {
		out = append(out, models.FileSummary{Path: path, Changes: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
