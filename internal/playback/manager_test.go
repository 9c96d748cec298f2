package playback

import (
	"errors"
	"testing"
	"time"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/models"
	"github.com/codetape/codetape/internal/testutil"
	"github.com/codetape/codetape/internal/timeline"
)

func TestManagerLifecycle(t *testing.T) {
	store := testutil.OpenSession(t, timeline.Options{})
	if _, err := store.AppendEvent(models.Event{Kind: models.KindEdit, Source: "a.go"}); err != nil {
		t.Fatal(err)
	}

	mgr := NewManager(store, Options{Quantum: 5 * time.Millisecond}, nil)
	defer mgr.StopAll()

	id, sch, err := mgr.Start(0, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id == "" || sch == nil {
		t.Fatal("empty playback handle")
	}
	if mgr.Count() != 1 {
		t.Errorf("Count = %d, want 1", mgr.Count())
	}

	got, err := mgr.Get(id)
	if err != nil || got != sch {
		t.Errorf("Get = %v, %v", got, err)
	}
	if _, err := mgr.Get("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}

	if err := mgr.Stop(id); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if mgr.Count() != 0 {
		t.Errorf("Count after stop = %d", mgr.Count())
	}
	if err := mgr.Stop(id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("double Stop = %v, want ErrNotFound", err)
	}
}

func TestManagerConcurrentPlaybacks(t *testing.T) {
	store := testutil.OpenSession(t, timeline.Options{})
	// An event far in the future keeps the open session's playbacks from
	// completing under the test.
	future := time.Now().Add(time.Hour).UnixMilli()
	if _, err := store.AppendEvent(models.Event{Timestamp: future, Kind: models.KindEdit, Source: "a.go"}); err != nil {
		t.Fatal(err)
	}

	mgr := NewManager(store, Options{Quantum: 5 * time.Millisecond}, nil)
	defer mgr.StopAll()

	idA, schA, err := mgr.Start(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	idB, schB, err := mgr.Start(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if idA == idB {
		t.Error("playback ids collide")
	}

	// Pausing one leaves the other playing.
	if err := schA.Pause(); err != nil {
		t.Fatal(err)
	}
	if st, _ := schA.State(); st != StatePaused {
		t.Errorf("A state = %s", st)
	}
	if st, _ := schB.State(); st != StatePlaying {
		t.Errorf("B state = %s", st)
	}
}
