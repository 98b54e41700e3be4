package vecport

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    loadCounter     prometheus.Counter
//	    searchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordLoad(duration time.Duration, vectors int, err error) {
//	    p.loadCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordLoad is called once per load attempt with its terminal
	// outcome. vectors is the number of records indexed, zero on failure.
	RecordLoad(duration time.Duration, vectors int, err error)

	// RecordChunk is called per completed chunk unit, and once with a
	// non-nil err when a load fails on a chunk.
	RecordChunk(duration time.Duration, bytes int64, err error)

	// RecordSearch is called after each search operation.
	// k is the number of neighbors requested, duration is the time taken,
	// err is nil if successful.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordCacheLookup is called for each index cache lookup.
	RecordCacheLookup(hit bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(time.Duration, int, error)    {}
func (NoopMetricsCollector) RecordChunk(time.Duration, int64, error) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordCacheLookup(bool)                  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LoadCount      atomic.Int64
	LoadErrors     atomic.Int64
	LoadTotalNanos atomic.Int64
	VectorsLoaded  atomic.Int64

	ChunkCount      atomic.Int64
	ChunkErrors     atomic.Int64
	ChunkBytes      atomic.Int64
	ChunkTotalNanos atomic.Int64

	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64

	CacheHits   atomic.Int64
	CacheMisses atomic.Int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(duration time.Duration, vectors int, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	b.VectorsLoaded.Add(int64(vectors))
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordChunk implements MetricsCollector.
func (b *BasicMetricsCollector) RecordChunk(duration time.Duration, bytes int64, err error) {
	b.ChunkCount.Add(1)
	b.ChunkBytes.Add(bytes)
	b.ChunkTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ChunkErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordCacheLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheLookup(hit bool) {
	if hit {
		b.CacheHits.Add(1)
	} else {
		b.CacheMisses.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		LoadAvgNanos:   b.getAvgLoadNanos(),
		VectorsLoaded:  b.VectorsLoaded.Load(),
		ChunkCount:     b.ChunkCount.Load(),
		ChunkErrors:    b.ChunkErrors.Load(),
		ChunkBytes:     b.ChunkBytes.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: b.getAvgSearchNanos(),
		CacheHits:      b.CacheHits.Load(),
		CacheMisses:    b.CacheMisses.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgLoadNanos() int64 {
	count := b.LoadCount.Load()
	if count == 0 {
		return 0
	}
	return b.LoadTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LoadCount      int64
	LoadErrors     int64
	LoadAvgNanos   int64
	VectorsLoaded  int64
	ChunkCount     int64
	ChunkErrors    int64
	ChunkBytes     int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	CacheHits      int64
	CacheMisses    int64
}
