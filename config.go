package vecport

import (
	"os"
	"strconv"
	"time"
)

// Config is the environment-style configuration surface of the Service.
// Every field has a usable default; apply a Config with WithConfig.
type Config struct {
	// PortalURL is the base URL of the HTTP content portal. Used only when
	// New is called without a store.
	PortalURL string

	// MaxParallelChunks bounds concurrent chunk downloads per load.
	// Clamped to 1..64.
	MaxParallelChunks int

	// FileTimeout bounds each individual store request. Enforced by the
	// portal store, not the load pipeline.
	FileTimeout time.Duration

	// LoadTimeout bounds one whole load, manifest through index build.
	// Zero disables the deadline.
	LoadTimeout time.Duration

	// CacheCapacity is the maximum number of cached indexes. Zero disables
	// the count bound.
	CacheCapacity int

	// CacheTTL expires cached indexes idle for longer. Zero disables
	// expiry.
	CacheTTL time.Duration

	// CacheMemoryBytes caps the summed estimated footprint of cached
	// indexes. Zero disables the memory bound.
	CacheMemoryBytes int64

	// LoadMemoryBytes caps the summed estimated footprint of loads in
	// flight. Zero disables the pre-flight check.
	LoadMemoryBytes int64

	// RateLimit is the number of loads admitted per RateWindow. Zero
	// disables rate limiting.
	RateLimit int

	// RateWindow is the width of the rate limiting window.
	RateWindow time.Duration

	// DownloadBytesPerSec paces chunk downloads across concurrent loads.
	// Zero means unlimited.
	DownloadBytesPerSec int
}

// DefaultConfig returns the defaults every unset field falls back to.
func DefaultConfig() Config {
	return Config{
		MaxParallelChunks:   8,
		FileTimeout:         30 * time.Second,
		LoadTimeout:         5 * time.Minute,
		CacheCapacity:       32,
		CacheTTL:            30 * time.Minute,
		CacheMemoryBytes:    1 << 30,
		LoadMemoryBytes:     512 << 20,
		RateLimit:           10,
		RateWindow:          time.Minute,
		DownloadBytesPerSec: 0,
	}
}

// ConfigFromEnv builds a Config from VECPORT_* environment variables,
// falling back to DefaultConfig for anything unset or unparsable.
//
// Recognized variables: VECPORT_PORTAL_URL, VECPORT_MAX_PARALLEL_CHUNKS,
// VECPORT_FILE_TIMEOUT, VECPORT_LOAD_TIMEOUT, VECPORT_CACHE_CAPACITY,
// VECPORT_CACHE_TTL, VECPORT_CACHE_MEMORY_LIMIT, VECPORT_LOAD_MEMORY_LIMIT,
// VECPORT_RATE_LIMIT, VECPORT_RATE_WINDOW, VECPORT_DOWNLOAD_BYTES_PER_SEC.
// Durations use time.ParseDuration syntax; memory limits are plain byte
// counts.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.PortalURL = envString("VECPORT_PORTAL_URL", cfg.PortalURL)
	cfg.MaxParallelChunks = envInt("VECPORT_MAX_PARALLEL_CHUNKS", cfg.MaxParallelChunks)
	cfg.FileTimeout = envDuration("VECPORT_FILE_TIMEOUT", cfg.FileTimeout)
	cfg.LoadTimeout = envDuration("VECPORT_LOAD_TIMEOUT", cfg.LoadTimeout)
	cfg.CacheCapacity = envInt("VECPORT_CACHE_CAPACITY", cfg.CacheCapacity)
	cfg.CacheTTL = envDuration("VECPORT_CACHE_TTL", cfg.CacheTTL)
	cfg.CacheMemoryBytes = envInt64("VECPORT_CACHE_MEMORY_LIMIT", cfg.CacheMemoryBytes)
	cfg.LoadMemoryBytes = envInt64("VECPORT_LOAD_MEMORY_LIMIT", cfg.LoadMemoryBytes)
	cfg.RateLimit = envInt("VECPORT_RATE_LIMIT", cfg.RateLimit)
	cfg.RateWindow = envDuration("VECPORT_RATE_WINDOW", cfg.RateWindow)
	cfg.DownloadBytesPerSec = envInt("VECPORT_DOWNLOAD_BYTES_PER_SEC", cfg.DownloadBytesPerSec)

	return cfg.normalized()
}

// normalized clamps the configuration into its supported ranges. Negative
// limits collapse to zero, which disables the respective policy.
func (c Config) normalized() Config {
	if c.MaxParallelChunks < 1 {
		c.MaxParallelChunks = 1
	}
	if c.MaxParallelChunks > 64 {
		c.MaxParallelChunks = 64
	}

	if c.FileTimeout < 0 {
		c.FileTimeout = 0
	}
	if c.LoadTimeout < 0 {
		c.LoadTimeout = 0
	}

	if c.CacheCapacity < 0 {
		c.CacheCapacity = 0
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
	if c.CacheMemoryBytes < 0 {
		c.CacheMemoryBytes = 0
	}
	if c.LoadMemoryBytes < 0 {
		c.LoadMemoryBytes = 0
	}

	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}

	if c.DownloadBytesPerSec < 0 {
		c.DownloadBytesPerSec = 0
	}

	return c
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}

	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}

func envInt64(name string, fallback int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}

	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}

	return d
}
