package manifest

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillon/vecport/codec"
	"github.com/quillon/vecport/contentstore"
	"github.com/quillon/vecport/sealbox"
)

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// Codec decodes the decrypted manifest document. Defaults to
	// codec.Default.
	Codec codec.Codec
}

// Resolver fetches, opens, and validates manifests.
type Resolver struct {
	store contentstore.Store
	codec codec.Codec
}

// NewResolver creates a Resolver reading from the given store.
func NewResolver(store contentstore.Store, optFns ...func(o *ResolverOptions)) *Resolver {
	opts := ResolverOptions{
		Codec: codec.Default,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	return &Resolver{
		store: store,
		codec: opts.Codec,
	}
}

// Resolve turns a collection name into a validated manifest.
//
// The sequence is fixed: existence probe, download, authenticated decrypt,
// parse, invariant validation, owner verification, tombstone check. Owner
// verification failing here guarantees no chunk request was ever issued for
// a foreign collection.
func (r *Resolver) Resolve(ctx context.Context, name string, key []byte, expectedOwner string) (*Manifest, error) {
	exists, err := r.store.Exists(ctx, name)
	if err != nil {
		return nil, &DownloadError{cause: err}
	}

	if !exists {
		return nil, ErrNotFound
	}

	sealed, err := r.store.Get(ctx, name)
	if err != nil {
		// The object can vanish between the probe and the fetch.
		if errors.Is(err, contentstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &DownloadError{cause: err}
	}

	text, err := sealbox.Open(sealed, key)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	m, err := Parse([]byte(text), r.codec)
	if err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := m.VerifyOwner(expectedOwner); err != nil {
		return nil, err
	}

	if m.Deleted {
		return nil, ErrDeleted
	}

	return m, nil
}

// Parse decodes a manifest document with the given codec.
func Parse(data []byte, c codec.Codec) (*Manifest, error) {
	if c == nil {
		c = codec.Default
	}

	var m Manifest
	if err := c.Unmarshal(data, &m); err != nil {
		return nil, &ParseError{cause: err}
	}

	return &m, nil
}
