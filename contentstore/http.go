package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// PortalOptions configures a PortalStore.
type PortalOptions struct {
	// HTTPClient is the client used for all requests. Defaults to a fresh
	// client; pass a shared one to reuse connection pools.
	HTTPClient *http.Client

	// MaxRetries is the number of additional attempts after a retryable
	// failure (connection errors, 5xx, 429).
	MaxRetries int

	// RetryBackoff is the delay before the first retry; it doubles per
	// attempt.
	RetryBackoff time.Duration

	// RequestTimeout bounds each individual attempt. The caller's context
	// still bounds the operation as a whole.
	RequestTimeout time.Duration
}

// DefaultPortalOptions are sized for chunk objects of a few megabytes.
var DefaultPortalOptions = PortalOptions{
	MaxRetries:     3,
	RetryBackoff:   250 * time.Millisecond,
	RequestTimeout: 30 * time.Second,
}

// StatusError reports a non-success HTTP response from the portal.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("contentstore: unexpected status %s", e.Status)
}

// retryable reports whether a fresh attempt could plausibly succeed.
func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// PortalStore fetches objects from an HTTP content portal.
//
// Object names are resolved relative to the base URL. Transient failures are
// retried with capped exponential backoff; responses compressed with zstd or
// gzip are decoded transparently.
type PortalStore struct {
	base   *url.URL
	client *http.Client
	opts   PortalOptions
}

var _ Store = (*PortalStore)(nil)

// NewPortalStore creates a store rooted at baseURL.
func NewPortalStore(baseURL string, optFns ...func(o *PortalOptions)) (*PortalStore, error) {
	opts := DefaultPortalOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("contentstore: invalid base URL: %w", err)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &PortalStore{
		base:   base,
		client: client,
		opts:   opts,
	}, nil
}

// Get fetches the named object.
func (s *PortalStore) Get(ctx context.Context, name string) ([]byte, error) {
	var body []byte

	err := s.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(name), nil)
		if err != nil {
			return err
		}
		// Setting the header manually disables the transport's automatic
		// gzip handling, so both encodings are decoded below.
		req.Header.Set("Accept-Encoding", "zstd, gzip")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		default:
			return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}

		body, err = decodeBody(resp)
		return err
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

// Exists probes the named object with a HEAD request.
func (s *PortalStore) Exists(ctx context.Context, name string) (bool, error) {
	var found bool

	err := s.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(name), nil)
		if err != nil {
			return err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusOK:
			found = true
			return nil
		case resp.StatusCode == http.StatusNotFound:
			found = false
			return nil
		default:
			return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
	})
	if err != nil {
		return false, err
	}

	return found, nil
}

func (s *PortalStore) objectURL(name string) string {
	return s.base.JoinPath(name).String()
}

// withRetry runs fn, retrying on connection errors and retryable statuses.
// ErrNotFound and client errors are final immediately.
func (s *PortalStore) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := s.opts.RetryBackoff

	var lastErr error

	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if s.opts.RequestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		}

		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrNotFound) {
			return err
		}

		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}

		// The caller is gone; a retry cannot help.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return lastErr
}

// decodeBody reads the response body, inflating declared content encodings.
func decodeBody(resp *http.Response) ([]byte, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec.IOReadCloser())

	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)

	default:
		return io.ReadAll(resp.Body)
	}
}
