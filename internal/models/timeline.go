// Package models defines the domain types for Codetape.
package models

// EventKind classifies a recorded occurrence.
type EventKind string

const (
	KindEdit     EventKind = "edit"
	KindCreate   EventKind = "create"
	KindDelete   EventKind = "delete"
	KindRename   EventKind = "rename"
	KindTerminal EventKind = "terminal"
	KindBookmark EventKind = "bookmark"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindEdit, KindCreate, KindDelete, KindRename, KindTerminal, KindBookmark:
		return true
	}
	return false
}

// Session identifies one bounded recording of a workspace over time.
// EndedAt is zero while the session is open; once set the session is immutable.
type Session struct {
	ID        string `json:"id"`
	Root      string `json:"root"`
	StartedAt int64  `json:"started_at"` // unix milliseconds
	EndedAt   int64  `json:"ended_at,omitempty"`
}

// Open reports whether the session is still recording.
func (s *Session) Open() bool { return s.EndedAt == 0 }

// Event is an immutable, sequenced fact about something that happened
// during a session. Timestamp is wall-clock milliseconds and is not
// authoritative for ordering; Seq is assigned by the store on append and
// breaks all timestamp ties.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp int64     `json:"ts"`
	Kind      EventKind `json:"kind"`
	Source    string    `json:"source"`            // file path or terminal id
	Payload   []byte    `json:"payload,omitempty"` // kind-specific JSON
}

// EditPayload is the payload for file change events. Detectors that
// cannot pair the halves of a rename report it as delete plus create;
// KindRename stays in the vocabulary for collaborators that can.
type EditPayload struct {
	Path string `json:"path"`
	Size int    `json:"size,omitempty"`
	// Captured marks whether file content was stored alongside the event.
	// False means the capture was skipped (oversized or unreadable) and
	// content fidelity for this instant is explicitly degraded.
	Captured bool `json:"captured"`
}

// TerminalPayload is the payload for terminal events.
type TerminalPayload struct {
	TerminalID string `json:"terminal_id"`
	Command    string `json:"command"`
	Output     string `json:"output,omitempty"`
}

// BookmarkPayload is the payload for bookmark events.
type BookmarkPayload struct {
	Title string `json:"title"`
	Kind  string `json:"kind"` // "manual" or an automatic rule name
}

// Checkpoint is the full captured content of one path at one moment.
type Checkpoint struct {
	Seq         int64  `json:"seq"`
	Timestamp   int64  `json:"ts"`
	Path        string `json:"path"`
	Content     []byte `json:"-"`
	Fingerprint string `json:"fingerprint"`
	Size        int    `json:"size"`
}

// Diff is an incremental patch anchored to the checkpoint immediately
// preceding it in sequence order for the same path. The patch payload is
// opaque to the store; only the patch codec interprets it.
type Diff struct {
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"ts"`
	Path      string `json:"path"`
	Patch     []byte `json:"-"`
	// Bookkeeping for fast inspection without replay.
	CharsAdded   int `json:"chars_added"`
	CharsRemoved int `json:"chars_removed"`
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
}

// Bookmark flags an instant of interest. Pure annotation; it never
// affects reconstruction.
type Bookmark struct {
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"ts"`
	Title     string `json:"title"`
	Kind      string `json:"kind"`
}

// FileSummary is a tracked path with its change count, returned by list
// operations.
type FileSummary struct {
	Path    string `json:"path"`
	Changes int    `json:"changes"`
}
