package bridge

import "errors"

// Sentinel errors for the dispatch paths. HTTP handlers map these to status
// codes (see pkg/api/errors.go).
var (
	// ErrPeerAbsent means no editor is connected at dispatch time.
	ErrPeerAbsent = errors.New("no editor connected")

	// ErrTimeout means the deadline passed before a response or terminal
	// event arrived.
	ErrTimeout = errors.New("deadline exceeded")

	// ErrCancelled means the caller went away or the daemon is shutting
	// down; it is also the outcome of losing the peer outside a reload.
	ErrCancelled = errors.New("request cancelled")
)
