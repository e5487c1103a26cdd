package sync

import "errors"

var (
	// ErrFetch wraps a failed read of the active window from the store.
	// Typically transient; a later refresh may succeed.
	ErrFetch = errors.New("fetching events failed")

	// ErrPersist wraps a failed write to the store, which is the
	// durability boundary of every mutation.
	ErrPersist = errors.New("persisting event failed")
)
