// Package index turns a fully loaded collection into an immutable in-memory
// search index and hands it out as a reference-counted Handle.
//
// Vectors are L2-normalized on the way into the graph, so the squared
// Euclidean metric the graph searches with maps directly onto cosine
// similarity. Top-level scalar metadata fields are additionally indexed
// into roaring bitmaps for filtered queries.
package index

import (
	"errors"
	"fmt"

	"github.com/quillon/vecport/guard"
	"github.com/quillon/vecport/hnsw"
	"github.com/quillon/vecport/metric"
	"github.com/quillon/vecport/model"
)

// ErrNoRecords is returned when a build is attempted over zero records.
var ErrNoRecords = errors.New("index: no records to build from")

// ZeroVectorError reports a record whose embedding has zero magnitude and
// therefore no direction to compare against.
type ZeroVectorError struct {
	ID string
}

func (e *ZeroVectorError) Error() string {
	return fmt.Sprintf("index: record %q has a zero-magnitude vector", e.ID)
}

// BuildError reports a failure inside graph construction.
type BuildError struct {
	Cause error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("index: build failed: %v", e.Cause)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Options represents the options for building an index.
type Options struct {
	// M is the per-layer link budget of the graph.
	M int

	// EFConstruction is the candidate list width during graph construction.
	EFConstruction int

	// EFSearch is the default candidate list width for searches.
	EFSearch int

	// Heuristic selects the spread-preserving neighbour selection.
	Heuristic bool

	// OnRelease is invoked once, when the last reference to the built
	// handle is dropped. The orchestrator hands its memory reservation
	// over through this hook.
	OnRelease func()
}

var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	EFSearch:       64,
	Heuristic:      true,
}

// Build constructs the search index for a validated record set. Every vector
// must already have the given dimensionality; records with zero-magnitude
// vectors are rejected because they cannot be normalized.
//
// The returned handle starts with one reference, owned by the caller.
func Build(records []model.Record, dimensions int, optFns ...func(o *Options)) (h *Handle, err error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	// Graph construction indexes heavily into its own node table. Turn a
	// bug there into an error instead of taking the whole process down.
	defer func() {
		if r := recover(); r != nil {
			h = nil
			err = &BuildError{Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	graph := hnsw.New(dimensions, func(o *hnsw.Options) {
		o.M = opts.M
		o.EFConstruction = opts.EFConstruction
		o.Heuristic = opts.Heuristic
		o.Capacity = len(records)
	})

	entries := make([]entry, 0, len(records))
	filters := newInvertedIndex()

	for i := range records {
		rec := &records[i]

		normalized, ok := metric.NormalizeCopy(rec.Vector)
		if !ok {
			return nil, &ZeroVectorError{ID: rec.ID}
		}

		id, err := graph.Insert(normalized)
		if err != nil {
			return nil, &BuildError{Cause: err}
		}

		// Insertion order is dense, so graph IDs index straight back into
		// the entry table.
		entries = append(entries, entry{id: rec.ID, metadata: rec.Metadata})
		filters.add(id, rec.Metadata)
	}

	h = &Handle{
		graph:          graph,
		entries:        entries,
		filters:        filters,
		dimensions:     dimensions,
		efSearch:       opts.EFSearch,
		estimatedBytes: guard.EstimateBytes(len(records), dimensions),
		onRelease:      opts.OnRelease,
	}
	h.refs.Store(1)

	return h, nil
}
