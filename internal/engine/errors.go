package engine

import "errors"

var (
	// ErrStopped is returned by commands issued after Stop.
	ErrStopped = errors.New("engine: stopped")

	// ErrNotStarted is returned by commands issued before Start.
	ErrNotStarted = errors.New("engine: not started")
)
