package playback

import (
	"sync"

	"github.com/google/uuid"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/metrics"
	"github.com/codetape/codetape/internal/timeline"
)

// Manager owns the set of live playback schedulers. Schedulers are
// independent of each other; each holds only its own cursor and speed
// and reads the store concurrently with the recorder.
type Manager struct {
	store timeline.Reader
	opts  Options
	m     *metrics.Metrics // optional

	mu   sync.Mutex
	live map[string]*Scheduler
}

// NewManager creates a Manager over store. m may be nil.
func NewManager(store timeline.Reader, opts Options, m *metrics.Metrics) *Manager {
	return &Manager{
		store: store,
		opts:  opts,
		m:     m,
		live:  make(map[string]*Scheduler),
	}
}

// Start creates a scheduler for the store's current session and begins
// playing from fromTs at speed. It returns the playback id used for
// later control calls.
func (mgr *Manager) Start(fromTs int64, speed float64) (string, *Scheduler, error) {
	sess, err := mgr.store.CurrentSession()
	if err != nil {
		return "", nil, err
	}

	sch := New(mgr.store, *sess, mgr.opts)
	if err := sch.Play(fromTs, speed); err != nil {
		sch.Cancel()
		return "", nil, err
	}

	id := uuid.NewString()
	mgr.mu.Lock()
	mgr.live[id] = sch
	mgr.mu.Unlock()
	if mgr.m != nil {
		mgr.m.ActivePlaybacks.Inc()
	}
	return id, sch, nil
}

// Get returns the scheduler for id, or ErrNotFound.
func (mgr *Manager) Get(id string) (*Scheduler, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	sch, ok := mgr.live[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return sch, nil
}

// Stop cancels and removes the scheduler for id.
func (mgr *Manager) Stop(id string) error {
	mgr.mu.Lock()
	sch, ok := mgr.live[id]
	delete(mgr.live, id)
	mgr.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}
	sch.Cancel()
	if mgr.m != nil {
		mgr.m.ActivePlaybacks.Dec()
	}
	return nil
}

// StopAll cancels every live scheduler. Used on shutdown.
func (mgr *Manager) StopAll() {
	mgr.mu.Lock()
	live := mgr.live
	mgr.live = make(map[string]*Scheduler)
	mgr.mu.Unlock()
	for _, sch := range live {
		sch.Cancel()
		if mgr.m != nil {
			mgr.m.ActivePlaybacks.Dec()
		}
	}
}

// Count returns the number of live playback schedulers.
func (mgr *Manager) Count() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.live)
}
