package vecport

import (
	"sync"
	"time"
)

// LoadState is the phase of a collection's most recent load attempt.
type LoadState int

const (
	// StateNotLoaded means no load has been attempted for the collection.
	StateNotLoaded LoadState = iota

	// StateLoading means a load attempt is in flight.
	StateLoading

	// StateLoaded means the most recent load attempt completed and the
	// index was cached.
	StateLoaded

	// StateFailed means the most recent load attempt ended in an error.
	StateFailed
)

// String implements fmt.Stringer.
func (s LoadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "not_loaded"
	}
}

// LoadStatus records the outcome of a collection's most recent load attempt.
// Each new attempt overwrites the previous record; exactly one terminal
// state is reached per attempt.
type LoadStatus struct {
	// State is the current phase.
	State LoadState

	// Attempt is the correlation ID of the attempt that produced this
	// status; empty for StateNotLoaded.
	Attempt string

	// VectorCount is the number of records indexed. Set for StateLoaded.
	VectorCount int

	// Duration is the wall time of the load. Set for StateLoaded.
	Duration time.Duration

	// Err is the terminal error. Set for StateFailed.
	Err error
}

// statusRegistry tracks the per-collection load status. Safe for concurrent
// use.
type statusRegistry struct {
	mu sync.RWMutex
	m  map[string]LoadStatus
}

func newStatusRegistry() *statusRegistry {
	return &statusRegistry{
		m: make(map[string]LoadStatus),
	}
}

// get returns the recorded status; an unknown key reads as StateNotLoaded.
func (r *statusRegistry) get(key string) LoadStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.m[key]
}

// set overwrites the status for key.
func (r *statusRegistry) set(key string, s LoadStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.m[key] = s
}

// clear removes the status for key.
func (r *statusRegistry) clear(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.m, key)
}
