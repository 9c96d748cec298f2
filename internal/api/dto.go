package api

import (
	"github.com/codetape/codetape/internal/models"
)

// StartSessionRequest is the request body for starting a recording.
type StartSessionRequest struct {
	Root string `json:"root,omitempty"`
}

// EventListResponse wraps an ordered event range.
type EventListResponse struct {
	Events []models.Event `json:"events"`
	Total  int            `json:"total"`
}

// FileListResponse wraps the tracked-file listing.
type FileListResponse struct {
	Files []models.FileSummary `json:"files"`
}

// ContentResponse carries reconstructed file content.
type ContentResponse struct {
	Path      string `json:"path"`
	Timestamp int64  `json:"ts"`
	Content   string `json:"content"`
}

// StartPlaybackRequest is the request body for starting playback.
type StartPlaybackRequest struct {
	From  int64   `json:"from"`
	Speed float64 `json:"speed,omitempty"`
}

// PlaybackResponse describes a playback session.
type PlaybackResponse struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Cursor int64  `json:"cursor"`
}

// SeekRequest is the request body for a playback seek.
type SeekRequest struct {
	Timestamp int64 `json:"ts"`
}

// SeekResponse carries the context window around the new cursor.
type SeekResponse struct {
	Cursor int64          `json:"cursor"`
	Window []models.Event `json:"window"`
}

// AddBookmarkRequest is the request body for flagging an instant.
type AddBookmarkRequest struct {
	Title string `json:"title"`
	Kind  string `json:"kind,omitempty"`
}

// BookmarkListResponse wraps the bookmark listing.
type BookmarkListResponse struct {
	Bookmarks []models.Bookmark `json:"bookmarks"`
}

// TerminalCommandRequest is the request body for recording a terminal
// command.
type TerminalCommandRequest struct {
	TerminalID string `json:"terminal_id"`
	Command    string `json:"command"`
	Output     string `json:"output,omitempty"`
	Timestamp  int64  `json:"ts,omitempty"`
}
