package contentstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("GetAndExists", func(t *testing.T) {
		store := NewMemoryStore()
		store.Put("manifests/articles", []byte("payload"))

		ok, err := store.Exists(ctx, "manifests/articles")
		require.NoError(t, err)
		assert.True(t, ok)

		data, err := store.Get(ctx, "manifests/articles")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
	})

	t.Run("Missing", func(t *testing.T) {
		store := NewMemoryStore()

		ok, err := store.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Get(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		store := NewMemoryStore()
		store.Put("obj", []byte{1, 2, 3})

		data, err := store.Get(ctx, "obj")
		require.NoError(t, err)
		data[0] = 99

		again, err := store.Get(ctx, "obj")
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, again)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		store := NewMemoryStore()
		store.Put("obj", []byte("x"))

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Get(canceled, "obj")
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Delete", func(t *testing.T) {
		store := NewMemoryStore()
		store.Put("obj", []byte("x"))
		require.Equal(t, 1, store.Len())

		store.Delete("obj")
		assert.Equal(t, 0, store.Len())
	})
}
