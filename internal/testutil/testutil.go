// Package testutil provides shared test helpers for setting up timeline stores.
package testutil

import (
	"os"
	"testing"

	"github.com/codetape/codetape/internal/timeline"
)

// TestStore creates a temporary SQLite timeline store that is
// automatically cleaned up.
func TestStore(t *testing.T, opts timeline.Options) *timeline.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "codetape-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := timeline.Open(dbFile.Name(), opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// OpenSession creates a store with a session already begun, rooted at a
// temp dir.
func OpenSession(t *testing.T, opts timeline.Options) *timeline.Store {
	t.Helper()
	store := TestStore(t, opts)
	if _, err := store.BeginSession(t.TempDir()); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	return store
}
