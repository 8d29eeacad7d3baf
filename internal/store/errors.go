package store

import "errors"

var (
	// ErrNotFound is the caller-visible miss for entity lookups.
	ErrNotFound = errors.New("store: not found")

	// ErrIndexOutOfRange rejects an ordinal outside [0, len] on insert or
	// outside [0, len) on remove/move.
	ErrIndexOutOfRange = errors.New("store: index out of range")

	// ErrCapacityExceeded rejects an insert that would push a guild past
	// its configured ceiling.
	ErrCapacityExceeded = errors.New("store: capacity exceeded")
)
