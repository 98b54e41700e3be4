// Package contentstore provides read-only access to the remote object layout
// that encrypted manifests and chunks live in.
//
// Store is the interface for fetching objects by name. Implementations must
// be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: In-memory store for tests and fixtures
//   - PortalStore: HTTP content portal with retries and transparent
//     response decompression
//   - s3.Store: Amazon S3 and S3-compatible endpoints
//   - minio.Store: MinIO via the native client
//
// # Custom Implementations
//
// Implement the Store interface to support custom backends:
//
//	type Store interface {
//	    Get(ctx, name) ([]byte, error)   // Full object fetch
//	    Exists(ctx, name) (bool, error)  // Presence probe
//	}
//
// Exists lets the resolver distinguish an absent manifest from a transport
// failure, so implementations should map their backend's not-found condition
// to ErrNotFound rather than a generic error.
package contentstore
