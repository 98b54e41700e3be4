// Package manifest defines the collection manifest and resolves it from the
// content store.
//
// The manifest is the small root document of a collection: identity and
// ownership, dimensionality, counters, and the addresses of every chunk. It
// travels sealed (see sealbox); the Resolver turns a collection name into a
// validated, ownership-checked Manifest without touching any chunk.
package manifest

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no manifest exists under the requested
	// name.
	ErrNotFound = errors.New("manifest: not found")

	// ErrOwnerMismatch is returned when the manifest's owner does not match
	// the caller's identity. The message deliberately carries neither value.
	ErrOwnerMismatch = errors.New("manifest: owner verification failed")

	// ErrDeleted is returned when the manifest is tombstoned. The collection
	// resolves, but there is nothing to load.
	ErrDeleted = errors.New("manifest: collection is marked deleted")
)

// DownloadError wraps a transport failure while fetching the manifest,
// distinct from the manifest simply not existing.
type DownloadError struct {
	cause error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("manifest: download failed: %v", e.cause)
}

func (e *DownloadError) Unwrap() error { return e.cause }

// ParseError wraps a decode failure of the decrypted manifest document.
type ParseError struct {
	cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest: parse failed: %v", e.cause)
}

func (e *ParseError) Unwrap() error { return e.cause }

// InvalidError reports a structurally well-formed manifest that violates an
// internal invariant.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("manifest: invalid: %s", e.Reason)
}

// ChunkRef addresses one chunk object of a collection.
type ChunkRef struct {
	// ChunkID is the zero-based position of the chunk. Chunk IDs are
	// contiguous across the manifest.
	ChunkID int `json:"chunkId"`

	// CID is the content identifier the chunk object is stored under.
	CID string `json:"cid"`

	// VectorCount is the number of entries the chunk holds.
	VectorCount int `json:"vectorCount"`

	// SizeBytes is the stored (sealed) size of the chunk object.
	SizeBytes int64 `json:"sizeBytes"`

	// UpdatedAt is the time the chunk object was last rewritten.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Manifest is the decrypted root document of a collection.
type Manifest struct {
	Name             string     `json:"name"`
	Owner            string     `json:"owner"`
	Description      string     `json:"description,omitempty"`
	Dimensions       int        `json:"dimensions"`
	VectorCount      int        `json:"vectorCount"`
	ChunkCount       int        `json:"chunkCount"`
	StorageSizeBytes int64      `json:"storageSizeBytes"`
	Created          time.Time  `json:"created"`
	Updated          time.Time  `json:"updated"`
	LastAccessed     *time.Time `json:"lastAccessed,omitempty"`
	Chunks           []ChunkRef `json:"chunks"`
	FolderPaths      []string   `json:"folderPaths,omitempty"`
	Deleted          bool       `json:"deleted,omitempty"`
}

// Validate checks the manifest's internal invariants: positive
// dimensionality, chunk count agreement, contiguous chunk IDs, and vector
// count reconciliation. It does not touch the network.
func (m *Manifest) Validate() error {
	if m.Dimensions <= 0 {
		return &InvalidError{Reason: fmt.Sprintf("dimensions must be positive, got %d", m.Dimensions)}
	}

	if m.VectorCount < 0 {
		return &InvalidError{Reason: fmt.Sprintf("negative vector count %d", m.VectorCount)}
	}

	if m.ChunkCount != len(m.Chunks) {
		return &InvalidError{Reason: fmt.Sprintf("chunk count %d does not match %d chunk entries", m.ChunkCount, len(m.Chunks))}
	}

	total := 0
	for i, c := range m.Chunks {
		if c.ChunkID != i {
			return &InvalidError{Reason: fmt.Sprintf("chunk IDs not contiguous: entry %d has id %d", i, c.ChunkID)}
		}

		if c.CID == "" {
			return &InvalidError{Reason: fmt.Sprintf("chunk %d has empty content identifier", i)}
		}

		if c.VectorCount < 0 {
			return &InvalidError{Reason: fmt.Sprintf("chunk %d has negative vector count %d", i, c.VectorCount)}
		}

		total += c.VectorCount
	}

	if total != m.VectorCount {
		return &InvalidError{Reason: fmt.Sprintf("per-chunk vector counts sum to %d, manifest declares %d", total, m.VectorCount)}
	}

	return nil
}

// VerifyOwner checks the manifest's owner against the caller's identity,
// case-insensitively. This must pass before any chunk is fetched.
func (m *Manifest) VerifyOwner(expected string) error {
	if !strings.EqualFold(m.Owner, expected) {
		return ErrOwnerMismatch
	}

	return nil
}
