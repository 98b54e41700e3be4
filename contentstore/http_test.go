package contentstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPortal(t *testing.T, handler http.Handler) *PortalStore {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := NewPortalStore(srv.URL, func(o *PortalOptions) {
		o.RetryBackoff = time.Millisecond
	})
	require.NoError(t, err)

	return store
}

func TestPortalStoreGet(t *testing.T) {
	ctx := context.Background()

	t.Run("Plain", func(t *testing.T) {
		store := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chunks/chunk-0", r.URL.Path)
			_, _ = w.Write([]byte("chunk bytes"))
		}))

		data, err := store.Get(ctx, "chunks/chunk-0")
		require.NoError(t, err)
		assert.Equal(t, []byte("chunk bytes"), data)
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newPortal(t, http.NotFoundHandler())

		_, err := store.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ZstdResponse", func(t *testing.T) {
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		compressed := enc.EncodeAll([]byte("large chunk body"), nil)
		require.NoError(t, enc.Close())

		store := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.Header.Get("Accept-Encoding"), "zstd")
			w.Header().Set("Content-Encoding", "zstd")
			_, _ = w.Write(compressed)
		}))

		data, err := store.Get(ctx, "obj")
		require.NoError(t, err)
		assert.Equal(t, []byte("large chunk body"), data)
	})

	t.Run("RetriesServerErrors", func(t *testing.T) {
		var calls atomic.Int32

		store := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte("eventually"))
		}))

		data, err := store.Get(ctx, "obj")
		require.NoError(t, err)
		assert.Equal(t, []byte("eventually"), data)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		var calls atomic.Int32

		store := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))

		_, err := store.Get(ctx, "obj")

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
		assert.Equal(t, int32(1+DefaultPortalOptions.MaxRetries), calls.Load())
	})

	t.Run("ClientErrorIsFinal", func(t *testing.T) {
		var calls atomic.Int32

		store := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))

		_, err := store.Get(ctx, "obj")

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("ContextCancellationStopsRetries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		store := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cancel()
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := store.Get(ctx, "obj")
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestPortalStoreExists(t *testing.T) {
	ctx := context.Background()

	store := newPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/present" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	ok, err := store.Exists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}
