package contentstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when an object does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is a read-only abstraction over the remote content layout that
// manifests and chunks are fetched from.
//
// Implementations must be safe for concurrent use and are responsible for
// their own transport-level retries; callers treat a returned error as final
// for the attempt.
type Store interface {
	// Get returns the full contents of the named object.
	// Returns ErrNotFound if the object does not exist.
	Get(ctx context.Context, name string) ([]byte, error)

	// Exists reports whether the named object is present, without fetching
	// its contents.
	Exists(ctx context.Context, name string) (bool, error)
}
