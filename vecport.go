package vecport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/quillon/vecport/cache"
	"github.com/quillon/vecport/codec"
	"github.com/quillon/vecport/contentstore"
	"github.com/quillon/vecport/guard"
	"github.com/quillon/vecport/index"
	"github.com/quillon/vecport/loader"
	"github.com/quillon/vecport/manifest"
)

// LoadRequest identifies the collection to load and the credentials to load
// it with. The session protocol supplies all three at load start.
type LoadRequest struct {
	// Key is the collection key: the name the manifest object is stored
	// under, and the cache and status key of the built index.
	Key string

	// Owner is the caller's principal identifier. The manifest's owner
	// must match it case-insensitively, or the load fails before any
	// chunk is fetched.
	Owner string

	// Secret is the 32-byte session key manifests and chunks are sealed
	// under. It is never logged.
	Secret []byte
}

// Service is the loading orchestrator and search front end: it wires
// manifest resolution, guarded admission, parallel chunk loading, index
// construction and the index cache together, and answers queries against
// cached indexes.
//
// All methods are safe for concurrent use.
type Service struct {
	store    contentstore.Store
	resolver *manifest.Resolver
	guard    *guard.Guard
	cache    *cache.IndexCache
	statuses *statusRegistry

	flight  singleflight.Group
	limiter *rate.Limiter

	cfg          Config
	codec        codec.Codec
	indexOptions []func(o *index.Options)

	metrics MetricsCollector
	logger  *Logger

	wg sync.WaitGroup
}

// New creates a Service reading from the given content store.
//
// A nil store connects to Config.PortalURL (set via WithConfig, typically
// from ConfigFromEnv); with neither a store nor a portal URL configured,
// New fails.
func New(store contentstore.Store, optFns ...Option) (*Service, error) {
	opts := applyOptions(optFns)
	cfg := opts.config.normalized()

	if store == nil {
		if cfg.PortalURL == "" {
			return nil, errors.New("vecport: a content store or portal URL is required")
		}

		ps, err := contentstore.NewPortalStore(cfg.PortalURL, func(o *contentstore.PortalOptions) {
			o.RequestTimeout = cfg.FileTimeout
		})
		if err != nil {
			return nil, err
		}

		store = ps
	}

	s := &Service{
		store: store,
		resolver: manifest.NewResolver(store, func(o *manifest.ResolverOptions) {
			o.Codec = opts.codec
		}),
		guard: guard.New(func(o *guard.Options) {
			o.RateLimit = cfg.RateLimit
			o.RateWindow = cfg.RateWindow
			o.MemoryLimitBytes = cfg.LoadMemoryBytes
			o.LoadTimeout = cfg.LoadTimeout
		}),
		cache: cache.New(func(o *cache.Options) {
			o.Capacity = cfg.CacheCapacity
			o.TTL = cfg.CacheTTL
			o.MemoryCeilingBytes = cfg.CacheMemoryBytes
		}),
		statuses:     newStatusRegistry(),
		cfg:          cfg,
		codec:        opts.codec,
		indexOptions: opts.indexOptions,
		metrics:      opts.metricsCollector,
		logger:       opts.logger,
	}

	if cfg.DownloadBytesPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.DownloadBytesPerSec), cfg.DownloadBytesPerSec)
	}

	return s, nil
}

// StartLoad begins loading the collection in the background and returns
// immediately. Progress is delivered to sink; the terminal outcome is also
// recorded in the status registry. Canceling ctx abandons the load:
// in-flight downloads are aborted and nothing further reaches the sink.
//
// Concurrent loads of the same key coalesce into one underlying operation.
// Intermediate progress streams to the attempt doing the work; every
// coalesced caller receives the shared terminal event and outcome.
func (s *Service) StartLoad(ctx context.Context, req LoadRequest, sink ProgressSink) error {
	attempt, err := s.beginLoad(ctx, req)
	if err != nil {
		return err
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		_ = s.runLoad(ctx, req, sink, attempt)
	}()

	return nil
}

// Load is the synchronous form of StartLoad: it returns the terminal error
// after the sink has seen the terminal event.
func (s *Service) Load(ctx context.Context, req LoadRequest, sink ProgressSink) error {
	attempt, err := s.beginLoad(ctx, req)
	if err != nil {
		return err
	}

	return s.runLoad(ctx, req, sink, attempt)
}

// Status returns the collection's load status. Unknown collections report
// StateNotLoaded.
func (s *Service) Status(key string) LoadStatus {
	return s.statuses.get(key)
}

// CacheStats returns the index cache's hit, miss and eviction counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Evict drops the collection's cached index and clears its status, so the
// next Search reports StateNotLoaded instead of a stale outcome. In-flight
// searches holding the index keep it alive until they release it.
func (s *Service) Evict(ctx context.Context, key string) bool {
	existed := s.cache.Remove(key)
	s.statuses.clear(key)
	s.logger.LogEviction(ctx, key, existed)

	return existed
}

// beginLoad validates the request and flips the collection to Loading under
// a fresh attempt ID.
func (s *Service) beginLoad(ctx context.Context, req LoadRequest) (string, error) {
	if req.Key == "" {
		return "", errors.New("vecport: collection key must not be empty")
	}

	attempt := uuid.NewString()
	s.statuses.set(req.Key, LoadStatus{State: StateLoading, Attempt: attempt})
	s.logger.LogLoadStart(ctx, req.Key, attempt)

	return attempt, nil
}

// runLoad funnels the attempt through the single-flight group. The leader
// runs the pipeline with its own sink attached; followers wait and then
// replay the shared terminal outcome to theirs.
func (s *Service) runLoad(ctx context.Context, req LoadRequest, sink ProgressSink, attempt string) error {
	leader := false

	ch := s.flight.DoChan(req.Key, func() (any, error) {
		leader = true

		stream := newProgressStream(ctx, sink)
		defer stream.close()

		return s.loadOnce(ctx, req, stream, attempt)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		// The leader keeps going for any remaining waiters; this caller
		// just stops listening.
		return ctx.Err()
	}

	if leader {
		return res.Err
	}

	st, _ := res.Val.(LoadStatus)

	// The follower's Loading record may have overwritten the leader's
	// terminal one; settle on the shared outcome.
	if st.State == StateLoaded || st.State == StateFailed {
		s.statuses.set(req.Key, st)
	}

	if ctx.Err() == nil && sink != nil {
		switch st.State {
		case StateLoaded:
			sink(LoadProgressEvent{
				Kind:        ProgressComplete,
				Attempt:     st.Attempt,
				VectorCount: st.VectorCount,
				Duration:    st.Duration,
			})
		case StateFailed:
			if code := errorCode(st.Err); code != "" {
				sink(LoadProgressEvent{
					Kind:    ProgressError,
					Attempt: st.Attempt,
					Code:    code,
					Message: st.Err.Error(),
				})
			}
		}
	}

	return res.Err
}

// loadOnce runs the pipeline once: admission, manifest resolution, memory
// reservation, chunk fan-out, index build, cache insert. Cancellation is
// observed at every stage boundary; on failure nothing is cached and the
// reservation is returned.
func (s *Service) loadOnce(ctx context.Context, req LoadRequest, stream *progressStream, attempt string) (LoadStatus, error) {
	start := time.Now()

	if err := s.guard.Allow(); err != nil {
		return s.failLoad(ctx, req.Key, attempt, start, stream, err)
	}

	lctx, cancel := s.guard.Deadline(ctx)
	defer cancel()

	m, err := s.resolver.Resolve(lctx, req.Key, req.Secret, req.Owner)
	if err != nil {
		return s.failLoad(ctx, req.Key, attempt, start, stream, err)
	}

	stream.emit(LoadProgressEvent{Kind: ProgressManifestDownloaded, Attempt: attempt})

	if m.VectorCount == 0 {
		return s.failLoad(ctx, req.Key, attempt, start, stream, newError(KindEmptyDatabase, nil))
	}

	reservation, err := s.guard.Reserve(m.VectorCount, m.Dimensions)
	if err != nil {
		return s.failLoad(ctx, req.Key, attempt, start, stream, err)
	}

	ld := loader.New(s.store, func(o *loader.Options) {
		o.Parallelism = s.cfg.MaxParallelChunks
		o.Codec = s.codec
		o.RateLimiter = s.limiter
		o.OnChunk = func(p loader.ChunkProgress) {
			s.metrics.RecordChunk(p.Elapsed, p.SizeBytes, nil)
			s.logger.LogChunk(ctx, req.Key, p)

			stream.emit(LoadProgressEvent{
				Kind:          ProgressChunkDownloaded,
				Attempt:       attempt,
				ChunkID:       p.ChunkID,
				ChunksLoaded:  p.ChunksLoaded,
				TotalChunks:   p.TotalChunks,
				VectorsLoaded: p.VectorsLoaded,
			})
		}
	})

	records, err := ld.Load(lctx, m, req.Secret)
	if err != nil {
		reservation.Release()
		return s.failLoad(ctx, req.Key, attempt, start, stream, err)
	}

	stream.emit(LoadProgressEvent{Kind: ProgressIndexBuilding, Attempt: attempt})

	if err := lctx.Err(); err != nil {
		reservation.Release()
		return s.failLoad(ctx, req.Key, attempt, start, stream, err)
	}

	// The handle owns the reservation from here: it is returned when the
	// last reference drops, which may be long after cache eviction.
	indexOpts := append([]func(o *index.Options){}, s.indexOptions...)
	indexOpts = append(indexOpts, func(o *index.Options) {
		o.OnRelease = reservation.Release
	})

	handle, err := index.Build(records, m.Dimensions, indexOpts...)
	if err != nil {
		reservation.Release()
		return s.failLoad(ctx, req.Key, attempt, start, stream, err)
	}

	s.cache.Put(req.Key, handle)

	duration := time.Since(start)
	st := LoadStatus{
		State:       StateLoaded,
		Attempt:     attempt,
		VectorCount: handle.Len(),
		Duration:    duration,
	}
	s.statuses.set(req.Key, st)

	stream.emit(LoadProgressEvent{
		Kind:        ProgressComplete,
		Attempt:     attempt,
		VectorCount: st.VectorCount,
		Duration:    duration,
	})

	s.metrics.RecordLoad(duration, st.VectorCount, nil)
	s.logger.LogLoadComplete(ctx, req.Key, attempt, st.VectorCount, duration, nil)

	return st, nil
}

// failLoad records the terminal failure, emits the error event when the
// failure is a taxonomy member, and hands the translated error back. Caller
// cancellation records a status but emits nothing.
func (s *Service) failLoad(ctx context.Context, key, attempt string, start time.Time, stream *progressStream, err error) (LoadStatus, error) {
	err = translateError(err)

	st := LoadStatus{State: StateFailed, Attempt: attempt, Err: err}
	s.statuses.set(key, st)

	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindChunkDownloadFailed {
			s.metrics.RecordChunk(0, 0, err)
		}

		stream.emit(LoadProgressEvent{
			Kind:    ProgressError,
			Attempt: attempt,
			Code:    e.Code(),
			Message: e.Error(),
		})
	}

	s.metrics.RecordLoad(time.Since(start), 0, err)
	s.logger.LogLoadComplete(ctx, key, attempt, 0, time.Since(start), err)

	return st, err
}
