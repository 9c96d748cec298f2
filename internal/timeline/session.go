package timeline

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/models"
)

// BeginSession opens a new recording session rooted at root. Exactly one
// session may be open at a time per store instance.
func (s *Store) BeginSession(root string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess != nil && s.sess.Open() {
		return nil, apperr.ErrSessionOpen
	}

	sess := &models.Session{
		ID:        uuid.NewString(),
		Root:      root,
		StartedAt: time.Now().UnixMilli(),
	}
	// Session rows are metadata, committed immediately in every
	// durability mode.
	_, err := s.conn.Exec(`INSERT INTO sessions (id, root, started_at, ended_at) VALUES (?, ?, ?, 0)`,
		sess.ID, sess.Root, sess.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("timeline: begin session: %w", err)
	}

	s.sess = sess
	s.nextSeq = 1
	s.bytesUsed = 0
	cp := *sess
	return &cp, nil
}

// EndSession closes the open session. Pending records are flushed first
// so the end timestamp never precedes an acknowledged append on disk.
func (s *Store) EndSession() (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess == nil || !s.sess.Open() {
		return nil, apperr.ErrSessionClosed
	}
	if err := s.flushLocked(); err != nil {
		return nil, err
	}

	ended := time.Now().UnixMilli()
	if ended < s.sess.StartedAt {
		ended = s.sess.StartedAt
	}
	_, err := s.conn.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, ended, s.sess.ID)
	if err != nil {
		return nil, fmt.Errorf("timeline: end session: %w", err)
	}
	s.sess.EndedAt = ended
	cp := *s.sess
	return &cp, nil
}

// CurrentSession returns the session this store instance is bound to:
// the open one, or the most recently ended one after EndSession.
// Returns ErrNotFound when the store has never held a session.
func (s *Store) CurrentSession() (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, apperr.ErrNotFound
	}
	cp := *s.sess
	return &cp, nil
}

// SessionByID loads a session row by id.
func (s *Store) SessionByID(id string) (*models.Session, error) {
	sess := &models.Session{}
	err := s.conn.QueryRow(`SELECT id, root, started_at, ended_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Root, &sess.StartedAt, &sess.EndedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("timeline: load session: %w", err)
	}
	return sess, nil
}

// PurgeSession deletes a session and every record it owns. The open
// session cannot be purged.
func (s *Store) PurgeSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess != nil && s.sess.Open() && s.sess.ID == id {
		return apperr.ErrSessionOpen
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("timeline: begin purge tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"events", "checkpoints", "diffs", "bookmarks"} {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, table), id); err != nil {
			return fmt.Errorf("timeline: purge %s: %w", table, err)
		}
	}
	res, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("timeline: purge session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("timeline: commit purge: %w", err)
	}
	if s.sess != nil && s.sess.ID == id {
		s.sess = nil
	}
	return nil
}
