// Package reconstruct computes a path's content at an arbitrary past
// timestamp from checkpoints and forward-applied diffs.
package reconstruct

import (
	"errors"
	"fmt"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/models"
	"github.com/codetape/codetape/internal/patch"
	"github.com/codetape/codetape/internal/timeline"
)

// Engine answers "what was this file's content at time T". It holds no
// state of its own; repeated calls against the same store state return
// identical content.
type Engine struct {
	store   timeline.Reader
	applier patch.Applier
}

// New creates an Engine over store. A nil applier selects the default
// patch codec.
func New(store timeline.Reader, applier patch.Applier) *Engine {
	if applier == nil {
		applier = patch.Codec{}
	}
	return &Engine{store: store, applier: applier}
}

// ContentAt returns path's content as of ts. The latest checkpoint with
// timestamp <= ts supplies the base; every diff past that checkpoint
// with timestamp <= ts is applied in sequence order. Returns ErrNotFound
// when the path had no captured state yet, and ErrReconstructionFailed
// when a diff cannot be applied; a wrong result is never returned in
// its place.
func (e *Engine) ContentAt(path string, ts int64) ([]byte, error) {
	cp, err := e.store.LatestCheckpointBefore(path, ts)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("reconstruct: %s@%d: %w", path, ts, err)
	}

	diffs, err := e.store.DiffsBetween(path, cp.Seq, 0)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: %s@%d: %w", path, ts, err)
	}

	content := cp.Content
	for _, d := range diffs {
		// Diffs are sequence-ordered and checkpoint timestamps are
		// monotonic per path, so the first diff past the target ends the
		// chain.
		if d.Timestamp > ts {
			break
		}
		next, err := e.applier.Apply(content, d.Patch)
		if err != nil {
			return nil, fmt.Errorf("reconstruct: %s@%d: apply diff seq=%d: %v: %w",
				path, ts, d.Seq, err, apperr.ErrReconstructionFailed)
		}
		content = next
	}
	return content, nil
}

// ChangesAt summarizes path's diff chain up to ts without applying it:
// the anchor checkpoint plus per-diff bookkeeping.
func (e *Engine) ChangesAt(path string, ts int64) (*models.Checkpoint, []models.Diff, error) {
	cp, err := e.store.LatestCheckpointBefore(path, ts)
	if err != nil {
		return nil, nil, err
	}
	diffs, err := e.store.DiffsBetween(path, cp.Seq, 0)
	if err != nil {
		return nil, nil, err
	}
	upTo := diffs[:0]
	for _, d := range diffs {
		if d.Timestamp > ts {
			break
		}
		upTo = append(upTo, d)
	}
	return cp, upTo, nil
}
