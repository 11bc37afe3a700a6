package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	// ErrQueueStorage is returned when the offline queue file cannot be read or written.
	ErrQueueStorage = errors.New("offline queue storage error")
	// ErrCaptureLog is returned when the capture audit log cannot be read or written.
	ErrCaptureLog = errors.New("capture log error")
	// ErrImageStore is returned when a capture or its sidecar cannot be written.
	ErrImageStore = errors.New("image store error")
	// ErrInvalidLimit is returned for a non-positive listing limit.
	ErrInvalidLimit = errors.New("invalid limit")
)
