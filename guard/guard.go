// Package guard enforces admission policies for load operations: a
// sliding-window rate limit, a memory pre-flight against an estimate derived
// from the manifest, and the overall load deadline.
//
// The three policies are independent and individually disabled by zero
// limits. All checks happen before the first chunk download, so a rejected
// load costs one manifest fetch at most.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrRateLimited is returned when the sliding window is full.
var ErrRateLimited = errors.New("guard: rate limit exceeded")

// MemoryLimitError reports a collection whose estimated in-memory footprint
// does not fit the configured ceiling alongside the loads already in flight.
type MemoryLimitError struct {
	RequiredBytes int64
	LimitBytes    int64
}

func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("guard: estimated footprint %d bytes exceeds memory limit %d bytes", e.RequiredBytes, e.LimitBytes)
}

// recordOverheadBytes approximates the per-entry cost beyond the raw float32
// data: identifier string, metadata document, and graph links.
const recordOverheadBytes = 320

// EstimateBytes predicts the in-memory footprint of a loaded collection from
// the manifest's counters, before any chunk is fetched.
func EstimateBytes(vectorCount, dimensions int) int64 {
	return int64(vectorCount)*int64(dimensions)*4 + int64(vectorCount)*recordOverheadBytes
}

// Options holds the guard's limits.
type Options struct {
	// RateLimit is the number of load operations admitted per window.
	// Zero disables rate limiting.
	RateLimit int

	// RateWindow is the width of the sliding window.
	RateWindow time.Duration

	// MemoryLimitBytes caps the summed estimated footprint of loads in
	// flight. Zero disables the memory pre-flight.
	MemoryLimitBytes int64

	// LoadTimeout bounds one whole load operation, resolution through index
	// build. Zero disables the deadline.
	LoadTimeout time.Duration
}

// DefaultOptions are sized for a service loading collections of a few
// hundred thousand vectors.
var DefaultOptions = Options{
	RateLimit:        10,
	RateWindow:       time.Minute,
	MemoryLimitBytes: 512 << 20,
	LoadTimeout:      5 * time.Minute,
}

// Guard applies the admission policies. Safe for concurrent use.
type Guard struct {
	opts Options

	mu     sync.Mutex
	stamps []time.Time
	now    func() time.Time

	memSem *semaphore.Weighted // nil if unlimited

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Guard.
func New(optFns ...func(o *Options)) *Guard {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}

	g := &Guard{
		opts:   opts,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	if opts.MemoryLimitBytes > 0 {
		g.memSem = semaphore.NewWeighted(opts.MemoryLimitBytes)
	}

	if opts.RateLimit > 0 {
		go g.cleanupLoop()
	}

	return g
}

// Allow admits one load operation, or rejects it with ErrRateLimited when
// the window is full. Rejected attempts do not consume window capacity.
func (g *Guard) Allow() error {
	if g.opts.RateLimit <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	if len(g.stamps) >= g.opts.RateLimit {
		return ErrRateLimited
	}

	g.stamps = append(g.stamps, now)
	return nil
}

// prune drops stamps older than the window. Caller holds g.mu.
func (g *Guard) prune(now time.Time) {
	cutoff := now.Add(-g.opts.RateWindow)

	kept := g.stamps[:0]
	for _, ts := range g.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	g.stamps = kept
}

// Reserve performs the memory pre-flight for a collection about to be
// loaded. On success the returned reservation holds the estimate against the
// ceiling until released; concurrent loads therefore share the limit.
func (g *Guard) Reserve(vectorCount, dimensions int) (*Reservation, error) {
	required := EstimateBytes(vectorCount, dimensions)

	if g.memSem == nil {
		return &Reservation{bytes: required}, nil
	}

	if required > g.opts.MemoryLimitBytes || !g.memSem.TryAcquire(required) {
		return nil, &MemoryLimitError{RequiredBytes: required, LimitBytes: g.opts.MemoryLimitBytes}
	}

	return &Reservation{g: g, bytes: required}, nil
}

// Deadline derives the context a load operation runs under. With no timeout
// configured it degrades to a plain cancelable context.
func (g *Guard) Deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.LoadTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, g.opts.LoadTimeout)
}

// Close stops the background window cleanup. Allow/Reserve remain usable.
func (g *Guard) Close() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
}

// cleanupLoop prunes the window while the guard is idle, so a burst of old
// stamps does not pin memory between loads.
func (g *Guard) cleanupLoop() {
	ticker := time.NewTicker(g.opts.RateWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.mu.Lock()
			g.prune(g.now())
			g.mu.Unlock()
		case <-g.stopCh:
			return
		}
	}
}

// Reservation is a held share of the memory ceiling. Release returns it;
// releasing more than once is a no-op.
type Reservation struct {
	g     *Guard
	bytes int64
	once  sync.Once
}

// Bytes returns the reserved estimate.
func (r *Reservation) Bytes() int64 {
	if r == nil {
		return 0
	}
	return r.bytes
}

// Release returns the reservation to the guard.
func (r *Reservation) Release() {
	if r == nil || r.g == nil || r.g.memSem == nil {
		return
	}

	r.once.Do(func() {
		r.g.memSem.Release(r.bytes)
	})
}
