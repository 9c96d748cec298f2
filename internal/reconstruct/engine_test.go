package reconstruct

import (
	"errors"
	"testing"

	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/patch"
	"github.com/codetape/codetape/internal/testutil"
	"github.com/codetape/codetape/internal/timeline"
)

// putDiff records the transition from into to on path at ts.
func putDiff(t *testing.T, s *timeline.Store, path string, ts int64, from, to string) {
	t.Helper()
	payload, err := patch.Make([]byte(from), []byte(to))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutDiff(path, ts, payload, patch.StatsOf([]byte(from), []byte(to))); err != nil {
		t.Fatalf("PutDiff %s@%d: %v", path, ts, err)
	}
}

func TestContentAtWalksCheckpointAndDiffs(t *testing.T) {
	s := testutil.OpenSession(t, timeline.Options{})
	if _, err := s.PutCheckpoint("a.txt", 1000, []byte("x")); err != nil {
		t.Fatal(err)
	}
	putDiff(t, s, "a.txt", 1500, "x", "xy")
	putDiff(t, s, "a.txt", 2000, "xy", "xyz")

	e := New(s, nil)
	for _, tc := range []struct {
		ts   int64
		want string
	}{
		{1000, "x"},
		{1200, "x"},
		{1500, "xy"},
		{1700, "xy"},
		{2000, "xyz"},
		{2500, "xyz"},
	} {
		got, err := e.ContentAt("a.txt", tc.ts)
		if err != nil {
			t.Fatalf("ContentAt(%d): %v", tc.ts, err)
		}
		if string(got) != tc.want {
			t.Errorf("ContentAt(%d) = %q, want %q", tc.ts, got, tc.want)
		}
	}
}

func TestContentAtIsIdempotent(t *testing.T) {
	s := testutil.OpenSession(t, timeline.Options{})
	if _, err := s.PutCheckpoint("f.go", 1000, []byte("base")); err != nil {
		t.Fatal(err)
	}
	putDiff(t, s, "f.go", 1500, "base", "base+more")

	e := New(s, nil)
	first, err := e.ContentAt("f.go", 1700)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.ContentAt("f.go", 1700)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("repeated reconstruction differs: %q vs %q", first, second)
	}
}

func TestContentAtUsesLaterCheckpoint(t *testing.T) {
	s := testutil.OpenSession(t, timeline.Options{})
	if _, err := s.PutCheckpoint("a.txt", 1000, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	putDiff(t, s, "a.txt", 1500, "v1", "v1a")
	if _, err := s.PutCheckpoint("a.txt", 2000, []byte("fresh")); err != nil {
		t.Fatal(err)
	}
	putDiff(t, s, "a.txt", 2500, "fresh", "fresh!")

	e := New(s, nil)
	got, err := e.ContentAt("a.txt", 3000)
	if err != nil {
		t.Fatal(err)
	}
	// The 2000 checkpoint anchors; the 1500 diff is behind it in
	// sequence order and must not apply.
	if string(got) != "fresh!" {
		t.Errorf("ContentAt(3000) = %q, want %q", got, "fresh!")
	}
}

func TestContentAtBeforeFirstCapture(t *testing.T) {
	s := testutil.OpenSession(t, timeline.Options{})
	if _, err := s.PutCheckpoint("a.txt", 1000, []byte("x")); err != nil {
		t.Fatal(err)
	}
	e := New(s, nil)

	if _, err := e.ContentAt("a.txt", 500); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("before capture = %v, want ErrNotFound", err)
	}
	if _, err := e.ContentAt("never-seen.txt", 5000); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown path = %v, want ErrNotFound", err)
	}
}

func TestContentAtFailsOnBrokenChain(t *testing.T) {
	s := testutil.OpenSession(t, timeline.Options{})
	if _, err := s.PutCheckpoint("a.txt", 1000, []byte("x")); err != nil {
		t.Fatal(err)
	}
	// A diff whose anchor does not match the checkpoint content.
	payload, _ := patch.Make([]byte("not the base"), []byte("whatever"))
	if _, err := s.PutDiff("a.txt", 1500, payload, patch.Stats{}); err != nil {
		t.Fatal(err)
	}

	e := New(s, nil)
	if _, err := e.ContentAt("a.txt", 2000); !errors.Is(err, apperr.ErrReconstructionFailed) {
		t.Errorf("broken chain = %v, want ErrReconstructionFailed", err)
	}
	// Before the broken diff the chain is still reconstructable.
	got, err := e.ContentAt("a.txt", 1200)
	if err != nil || string(got) != "x" {
		t.Errorf("ContentAt(1200) = %q, %v", got, err)
	}
}

func TestChangesAt(t *testing.T) {
	s := testutil.OpenSession(t, timeline.Options{})
	if _, err := s.PutCheckpoint("a.txt", 1000, []byte("x")); err != nil {
		t.Fatal(err)
	}
	putDiff(t, s, "a.txt", 1500, "x", "xy")
	putDiff(t, s, "a.txt", 2000, "xy", "xyz")

	e := New(s, nil)
	cp, diffs, err := e.ChangesAt("a.txt", 1700)
	if err != nil {
		t.Fatalf("ChangesAt: %v", err)
	}
	if string(cp.Content) != "x" {
		t.Errorf("anchor content = %q", cp.Content)
	}
	if len(diffs) != 1 || diffs[0].CharsAdded != 1 {
		t.Errorf("diffs = %+v, want one diff adding 1 char", diffs)
	}
}
