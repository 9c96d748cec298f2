package apperr

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrSessionOpen          = errors.New("session already open")
	ErrSessionClosed        = errors.New("session closed")
	ErrStorageFull          = errors.New("storage full")
	ErrContentTooLarge      = errors.New("content too large")
	ErrNoAnchorCheckpoint   = errors.New("no anchor checkpoint")
	ErrReconstructionFailed = errors.New("reconstruction failed")
	ErrInvalidSeekTarget    = errors.New("invalid seek target")
)
