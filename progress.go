package vecport

import (
	"context"
	"sync"
	"time"
)

// ProgressKind tags a LoadProgressEvent variant.
type ProgressKind int

const (
	// ProgressManifestDownloaded follows a resolved, validated manifest.
	ProgressManifestDownloaded ProgressKind = iota

	// ProgressChunkDownloaded follows each completed chunk unit. Chunk IDs
	// may arrive out of numeric order; the cumulative counters are
	// monotonic.
	ProgressChunkDownloaded

	// ProgressIndexBuilding precedes graph construction.
	ProgressIndexBuilding

	// ProgressComplete is the success terminal, emitted at most once.
	ProgressComplete

	// ProgressError is the failure terminal, emitted at most once.
	ProgressError
)

// String implements fmt.Stringer.
func (k ProgressKind) String() string {
	switch k {
	case ProgressManifestDownloaded:
		return "manifest_downloaded"
	case ProgressChunkDownloaded:
		return "chunk_downloaded"
	case ProgressIndexBuilding:
		return "index_building"
	case ProgressComplete:
		return "complete"
	case ProgressError:
		return "error"
	default:
		return "unknown"
	}
}

// LoadProgressEvent is one event of a load attempt's progress stream.
// Only the fields of the tagged variant are set.
type LoadProgressEvent struct {
	// Kind selects the variant.
	Kind ProgressKind

	// Attempt is the load attempt's correlation ID, set on every event.
	Attempt string

	// ChunkID, ChunksLoaded, TotalChunks and VectorsLoaded belong to
	// ProgressChunkDownloaded.
	ChunkID       int
	ChunksLoaded  int
	TotalChunks   int
	VectorsLoaded int

	// VectorCount and Duration belong to ProgressComplete.
	VectorCount int
	Duration    time.Duration

	// Code and Message belong to ProgressError. The message is sanitized;
	// security failures carry neither identities nor key material.
	Code    string
	Message string
}

// ProgressSink consumes the event stream of one load attempt. Events are
// delivered from a single goroutine; Complete or Error is always last.
type ProgressSink func(ev LoadProgressEvent)

// progressBuffer bounds in-flight events between the pipeline and the sink.
// A full buffer applies backpressure to the chunk fan-out rather than
// dropping events.
const progressBuffer = 32

// progressStream decouples the pipeline from the sink: stages emit into a
// bounded channel drained by one forwarding goroutine. Once ctx is canceled
// the consumer is considered gone and nothing further reaches the sink.
type progressStream struct {
	ctx  context.Context
	ch   chan LoadProgressEvent
	done chan struct{}
	once sync.Once
}

func newProgressStream(ctx context.Context, sink ProgressSink) *progressStream {
	p := &progressStream{
		ctx:  ctx,
		ch:   make(chan LoadProgressEvent, progressBuffer),
		done: make(chan struct{}),
	}

	go p.forward(sink)

	return p
}

func (p *progressStream) forward(sink ProgressSink) {
	defer close(p.done)

	for ev := range p.ch {
		if p.ctx.Err() != nil {
			continue
		}

		if sink != nil {
			sink(ev)
		}
	}
}

// emit queues one event, dropping it when the consumer is gone.
func (p *progressStream) emit(ev LoadProgressEvent) {
	select {
	case p.ch <- ev:
	case <-p.ctx.Done():
	}
}

// close ends the stream and waits for the forwarder to finish delivering.
// Safe to call more than once.
func (p *progressStream) close() {
	p.once.Do(func() {
		close(p.ch)
	})

	<-p.done
}
