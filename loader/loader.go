// Package loader fetches, decrypts and decodes chunk payloads with bounded
// concurrency.
//
// Chunks download in parallel but assemble into manifest order, so the
// record stream a load produces is deterministic regardless of arrival
// order. The first chunk failure cancels the remaining fetches.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/quillon/vecport/codec"
	"github.com/quillon/vecport/contentstore"
	"github.com/quillon/vecport/manifest"
	"github.com/quillon/vecport/model"
	"github.com/quillon/vecport/sealbox"
)

// ChunkError reports which chunk failed and why.
type ChunkError struct {
	ChunkID int
	Cause   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("loader: chunk %d: %v", e.ChunkID, e.Cause)
}

func (e *ChunkError) Unwrap() error {
	return e.Cause
}

// DownloadError wraps a content store failure for a chunk payload.
type DownloadError struct {
	Cause error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("loader: chunk download failed: %v", e.Cause)
}

func (e *DownloadError) Unwrap() error {
	return e.Cause
}

// ParseError wraps a payload that decrypted cleanly but failed to decode.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("loader: chunk parse failed: %v", e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// CountError reports a disagreement between declared and delivered vector
// counts.
type CountError struct {
	Expected int
	Actual   int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("loader: vector count mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ChunkProgress describes one completed chunk together with the cumulative
// totals of the load so far.
type ChunkProgress struct {
	ChunkID       int
	VectorCount   int
	SizeBytes     int64
	Elapsed       time.Duration
	ChunksLoaded  int
	VectorsLoaded int
	TotalChunks   int
}

// Options represents the options for configuring a Loader.
type Options struct {
	// Parallelism bounds concurrent chunk fetches.
	Parallelism int

	// Codec decodes chunk payloads.
	Codec codec.Codec

	// RateLimiter paces downloads by declared sealed bytes when set,
	// shared across loads.
	RateLimiter *rate.Limiter

	// OnChunk is invoked as chunks complete. Invocations are serialized
	// and cumulative counts are monotonic, so keep the callback fast.
	OnChunk func(p ChunkProgress)
}

var DefaultOptions = Options{
	Parallelism: 8,
	Codec:       codec.Default,
}

// Loader downloads and opens the chunks of one collection at a time.
type Loader struct {
	store contentstore.Store
	opts  Options
}

// New creates a Loader over the given content store.
func New(store contentstore.Store, optFns ...func(o *Options)) *Loader {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	return &Loader{
		store: store,
		opts:  opts,
	}
}

// Load fetches every chunk the manifest references, decrypts each with key
// and returns the records in manifest order. Vectors are validated against
// the manifest's dimensionality as chunks arrive.
func (l *Loader) Load(ctx context.Context, m *manifest.Manifest, key []byte) ([]model.Record, error) {
	results := make([][]model.Record, len(m.Chunks))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Parallelism)

	var (
		mu            sync.Mutex
		chunksLoaded  int
		vectorsLoaded int
	)

	for i := range m.Chunks {
		ref := m.Chunks[i]

		g.Go(func() error {
			unitStart := time.Now()

			records, err := l.loadChunk(groupCtx, ref, key, m.Dimensions)
			if err != nil {
				return &ChunkError{ChunkID: ref.ChunkID, Cause: err}
			}

			results[ref.ChunkID] = records

			if l.opts.OnChunk != nil {
				mu.Lock()
				chunksLoaded++
				vectorsLoaded += len(records)

				l.opts.OnChunk(ChunkProgress{
					ChunkID:       ref.ChunkID,
					VectorCount:   len(records),
					SizeBytes:     ref.SizeBytes,
					Elapsed:       time.Since(unitStart),
					ChunksLoaded:  chunksLoaded,
					VectorsLoaded: vectorsLoaded,
					TotalChunks:   len(m.Chunks),
				})
				mu.Unlock()
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, m.VectorCount)
	for _, chunkRecords := range results {
		records = append(records, chunkRecords...)
	}

	// Per-chunk counts are checked on arrival; this is the whole-collection
	// backstop.
	if len(records) != m.VectorCount {
		return nil, &CountError{Expected: m.VectorCount, Actual: len(records)}
	}

	return records, nil
}

func (l *Loader) loadChunk(ctx context.Context, ref manifest.ChunkRef, key []byte, dimensions int) ([]model.Record, error) {
	if l.opts.RateLimiter != nil {
		// Pace by the manifest's declared sealed size, capped at the burst
		// so an oversized chunk stalls instead of erroring.
		n := int(ref.SizeBytes)
		if b := l.opts.RateLimiter.Burst(); n > b {
			n = b
		}
		if n < 1 {
			n = 1
		}

		if err := l.opts.RateLimiter.WaitN(ctx, n); err != nil {
			return nil, err
		}
	}

	envelope, err := l.store.Get(ctx, ref.CID)
	if err != nil {
		return nil, &DownloadError{Cause: err}
	}

	payload, err := sealbox.OpenBytes(envelope, key)
	if err != nil {
		return nil, err
	}

	var chunk model.Chunk
	if err := l.opts.Codec.Unmarshal(payload, &chunk); err != nil {
		return nil, &ParseError{Cause: err}
	}

	if chunk.ChunkID != ref.ChunkID {
		return nil, &ParseError{Cause: fmt.Errorf("payload declares chunk %d", chunk.ChunkID)}
	}

	if len(chunk.Vectors) != ref.VectorCount {
		return nil, &CountError{Expected: ref.VectorCount, Actual: len(chunk.Vectors)}
	}

	if err := model.ValidateRecords(chunk.Vectors, dimensions); err != nil {
		return nil, err
	}

	return chunk.Vectors, nil
}
