package realtime

import "errors"

var (
	// ErrTimeout indicates no acknowledgment arrived within the window.
	ErrTimeout = errors.New("request timed out")
	// ErrClosed indicates the manager was explicitly disconnected.
	ErrClosed = errors.New("connection closed")
	// ErrQueueFull indicates the outbound queue rejected a frame.
	ErrQueueFull = errors.New("outbound queue full")
)
