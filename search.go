package vecport

import (
	"context"
	"fmt"
	"time"

	"github.com/quillon/vecport/index"
	"github.com/quillon/vecport/model"
)

// SearchRequest describes one k-nearest-neighbor query.
type SearchRequest struct {
	// Key is the collection key the index was cached under.
	Key string

	// Query is the query vector. Its length must equal the collection's
	// dimensionality.
	Query []float32

	// K is the maximum number of results. Approximate search may return
	// fewer, even when K does not exceed the collection size.
	K int

	// MinScore drops results scoring below it. The zero value keeps every
	// non-negatively scored match; set -1 to keep everything.
	MinScore float32

	// Filter restricts candidates to records whose metadata matches every
	// term. Terms are equality checks against top-level scalar fields.
	Filter index.Filter
}

// Search answers a k-nearest-neighbor query against the collection's cached
// index, best matches first, scored by cosine similarity in [-1, 1].
//
// A cache miss is reported through the load status machine rather than a
// generic not-found: ErrNotLoaded when no usable index exists (never loaded,
// expired or evicted), ErrStillLoading while a load is in flight, and
// ErrLoadFailed wrapping the terminal error of a failed attempt.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]model.SearchResult, error) {
	start := time.Now()

	if req.K < 1 {
		err := fmt.Errorf("%w: %d", ErrInvalidK, req.K)
		s.metrics.RecordSearch(req.K, time.Since(start), err)
		s.logger.LogSearch(ctx, req.Key, req.K, 0, err)

		return nil, err
	}

	handle, ok := s.cache.Get(req.Key)
	s.metrics.RecordCacheLookup(ok)

	if !ok {
		err := s.missError(req.Key)
		s.metrics.RecordSearch(req.K, time.Since(start), err)
		s.logger.LogSearch(ctx, req.Key, req.K, 0, err)

		return nil, err
	}
	defer handle.Release()

	results, err := handle.Search(req.Query, req.K, req.Filter)
	if err != nil {
		err = translateSearchError(err)
		s.metrics.RecordSearch(req.K, time.Since(start), err)
		s.logger.LogSearch(ctx, req.Key, req.K, 0, err)

		return nil, err
	}

	results = trimByScore(results, req.MinScore)

	s.metrics.RecordSearch(req.K, time.Since(start), nil)
	s.logger.LogSearch(ctx, req.Key, req.K, len(results), nil)

	return results, nil
}

// missError explains a cache miss through the collection's load status.
func (s *Service) missError(key string) error {
	st := s.statuses.get(key)

	switch st.State {
	case StateLoading:
		return ErrStillLoading
	case StateFailed:
		return fmt.Errorf("%w: %w", ErrLoadFailed, st.Err)
	default:
		return ErrNotLoaded
	}
}

// trimByScore cuts the descending-sorted result list at the threshold.
func trimByScore(results []model.SearchResult, minScore float32) []model.SearchResult {
	for i, r := range results {
		if r.Score < minScore {
			return results[:i]
		}
	}

	return results
}
