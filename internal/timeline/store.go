// Package timeline provides the SQLite-backed append-only session store:
// the event log, the checkpoint/diff store, and bookmarks.
package timeline

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codetape/codetape/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	root       TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	ts         INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	source     TEXT NOT NULL,
	payload    BLOB,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_events_ts ON events(session_id, ts, seq);

CREATE TABLE IF NOT EXISTS checkpoints (
	session_id  TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	ts          INTEGER NOT NULL,
	path        TEXT NOT NULL,
	content     BLOB NOT NULL,
	fingerprint TEXT NOT NULL,
	size        INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_path ON checkpoints(session_id, path, seq);

CREATE TABLE IF NOT EXISTS diffs (
	session_id    TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	ts            INTEGER NOT NULL,
	path          TEXT NOT NULL,
	patch         BLOB NOT NULL,
	chars_added   INTEGER NOT NULL DEFAULT 0,
	chars_removed INTEGER NOT NULL DEFAULT 0,
	lines_added   INTEGER NOT NULL DEFAULT 0,
	lines_removed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_diffs_path ON diffs(session_id, path, seq);

CREATE TABLE IF NOT EXISTS bookmarks (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	ts         INTEGER NOT NULL,
	title      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// DurabilityMode controls when an append is durable.
type DurabilityMode string

const (
	// DurabilitySync commits every append before returning. Slowest,
	// nothing acknowledged is ever lost.
	DurabilitySync DurabilityMode = "sync"
	// DurabilityBuffered acknowledges after an in-memory enqueue and
	// commits batches on a flush interval. Callers trade the tail of the
	// log on crash for append throughput; acknowledged entries remain
	// visible to readers of this store instance either way.
	DurabilityBuffered DurabilityMode = "buffered"
)

// Options tune a Store instance.
type Options struct {
	Durability      DurabilityMode
	FlushInterval   time.Duration // buffered mode only
	MaxContentBytes int           // per-checkpoint content cap
	MaxSessionBytes int64         // per-session byte ceiling, 0 = unlimited
}

func (o *Options) withDefaults() {
	if o.Durability == "" {
		o.Durability = DurabilitySync
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.MaxContentBytes <= 0 {
		o.MaxContentBytes = 100_000
	}
}

// pendingSet holds acknowledged-but-uncommitted records in buffered mode.
// Records stay here until the transaction that persists them commits, so
// a reader merging committed rows with this set never sees the visible
// sequence retreat.
type pendingSet struct {
	events      []models.Event
	checkpoints []models.Checkpoint
	diffs       []models.Diff
	bookmarks   []models.Bookmark
}

func (p *pendingSet) empty() bool {
	return len(p.events) == 0 && len(p.checkpoints) == 0 && len(p.diffs) == 0 && len(p.bookmarks) == 0
}

// Store is the durable session timeline. A single mutex serializes the
// write path (sequence assignment + persist/enqueue); readers take the
// same lock only long enough to snapshot the pending set.
type Store struct {
	conn *sql.DB
	opts Options

	mu        sync.Mutex
	sess      *models.Session
	nextSeq   int64
	bytesUsed int64
	pending   pendingSet

	stopFlusher chan struct{}
	flusherDone chan struct{}
}

// Open opens (or creates) the SQLite timeline database, applies the
// schema, and recovers the open session left by a previous process, if
// any.
func Open(dsn string, opts Options) (*Store, error) {
	opts.withDefaults()

	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("timeline: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("timeline: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("timeline: apply schema: %w", err)
	}

	s := &Store{conn: conn, opts: opts}
	if err := s.recover(); err != nil {
		conn.Close()
		return nil, err
	}

	if opts.Durability == DurabilityBuffered {
		s.stopFlusher = make(chan struct{})
		s.flusherDone = make(chan struct{})
		go s.flushLoop()
	}
	return s, nil
}

// recover reloads the open session (if one exists) along with its next
// sequence number and byte usage.
func (s *Store) recover() error {
	row := s.conn.QueryRow(`SELECT id, root, started_at FROM sessions WHERE ended_at = 0 ORDER BY started_at DESC LIMIT 1`)
	sess := &models.Session{}
	if err := row.Scan(&sess.ID, &sess.Root, &sess.StartedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("timeline: recover session: %w", err)
	}
	s.sess = sess

	var maxSeq int64
	err := s.conn.QueryRow(`
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM events      WHERE session_id = ?1
			UNION ALL
			SELECT seq FROM checkpoints WHERE session_id = ?1
			UNION ALL
			SELECT seq FROM diffs       WHERE session_id = ?1
			UNION ALL
			SELECT seq FROM bookmarks   WHERE session_id = ?1
		)`, sess.ID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("timeline: recover seq: %w", err)
	}
	s.nextSeq = maxSeq + 1

	err = s.conn.QueryRow(`
		SELECT COALESCE((SELECT SUM(LENGTH(COALESCE(payload, ''))) FROM events WHERE session_id = ?1), 0)
		     + COALESCE((SELECT SUM(size) FROM checkpoints WHERE session_id = ?1), 0)
		     + COALESCE((SELECT SUM(LENGTH(patch)) FROM diffs WHERE session_id = ?1), 0)`,
		sess.ID).Scan(&s.bytesUsed)
	if err != nil {
		return fmt.Errorf("timeline: recover usage: %w", err)
	}
	return nil
}

// flushLoop periodically commits the pending set in buffered mode.
func (s *Store) flushLoop() {
	defer close(s.flusherDone)
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopFlusher:
			_ = s.Flush()
			return
		case <-ticker.C:
			_ = s.Flush()
		}
	}
}

// Flush commits any pending records. The write lock is held across the
// transaction so readers never observe a record leaving the pending set
// before it is committed.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if s.pending.empty() {
		return nil
	}
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("timeline: begin flush tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	sid := s.sess.ID
	for _, ev := range s.pending.events {
		if err := insertEvent(tx, sid, ev); err != nil {
			return err
		}
	}
	for _, cp := range s.pending.checkpoints {
		if err := insertCheckpoint(tx, sid, cp); err != nil {
			return err
		}
	}
	for _, d := range s.pending.diffs {
		if err := insertDiff(tx, sid, d); err != nil {
			return err
		}
	}
	for _, bm := range s.pending.bookmarks {
		if err := insertBookmark(tx, sid, bm); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("timeline: commit flush: %w", err)
	}
	s.pending = pendingSet{}
	return nil
}

// Close flushes pending records, stops the flusher, and closes the
// database.
func (s *Store) Close() error {
	if s.stopFlusher != nil {
		close(s.stopFlusher)
		<-s.flusherDone
	} else if err := s.Flush(); err != nil {
		return err
	}
	return s.conn.Close()
}
