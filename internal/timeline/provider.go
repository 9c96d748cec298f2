package timeline

import (
	"github.com/codetape/codetape/internal/models"
	"github.com/codetape/codetape/internal/patch"
)

// Writer is the single-writer append surface of the timeline store.
// Exactly one recorder appends to a given session; the store serializes
// these calls so sequence assignment stays atomic and gap-free.
type Writer interface {
	BeginSession(root string) (*models.Session, error)
	EndSession() (*models.Session, error)
	AppendEvent(ev models.Event) (int64, error)
	PutCheckpoint(path string, ts int64, content []byte) (int64, error)
	PutDiff(path string, ts int64, payload []byte, st patch.Stats) (int64, error)
	PutBookmark(ts int64, title, kind string) (int64, error)
	BytesUsed() int64
}

// Reader is the concurrent read surface. Any number of readers may run
// alongside the writer; each call observes a snapshot that only ever
// grows between calls.
type Reader interface {
	CurrentSession() (*models.Session, error)
	EventsBetween(fromTs, toTs int64, kinds ...models.EventKind) ([]models.Event, error)
	EventCount() (int, error)
	LatestCheckpointBefore(path string, ts int64) (*models.Checkpoint, error)
	DiffsBetween(path string, fromSeq, toSeq int64) ([]models.Diff, error)
	Bookmarks() ([]models.Bookmark, error)
	Files() ([]models.FileSummary, error)
}

// Verify *Store satisfies both surfaces at compile time.
var (
	_ Writer = (*Store)(nil)
	_ Reader = (*Store)(nil)
)
