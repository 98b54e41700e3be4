package vecport

import (
	"log/slog"

	"github.com/quillon/vecport/codec"
	"github.com/quillon/vecport/index"
)

type options struct {
	config           Config
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	indexOptions     []func(o *index.Options)
}

// Option configures Service constructor behavior.
type Option func(*options)

// WithConfig applies a full configuration. Unnormalized values are clamped
// the same way ConfigFromEnv clamps environment input.
//
// Example:
//
//	svc, _ := vecport.New(store, vecport.WithConfig(vecport.ConfigFromEnv()))
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg.normalized()
	}
}

// WithCodec configures the codec used for decoding manifests and chunks.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithIndexOptions configures ANN graph construction, e.g. connectivity (M)
// and build/search candidate widths. Higher values trade load time for
// recall.
//
// Example:
//
//	svc, _ := vecport.New(store, vecport.WithIndexOptions(func(o *index.Options) {
//	    o.M = 32
//	    o.EFSearch = 128
//	}))
func WithIndexOptions(optFns ...func(o *index.Options)) Option {
	return func(o *options) {
		o.indexOptions = append(o.indexOptions, optFns...)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecport.BasicMetricsCollector{}
//	svc, _ := vecport.New(store, vecport.WithMetricsCollector(metrics))
//	// ... use svc ...
//	stats := metrics.GetStats()
//	fmt.Printf("Loads: %d, Avg latency: %dns\n", stats.LoadCount, stats.LoadAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecport.NewJSONLogger(slog.LevelInfo)
//	svc, _ := vecport.New(store, vecport.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		config:           DefaultConfig(),
		codec:            nil,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
