package manifest

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/quillon/vecport/codec"
	"github.com/quillon/vecport/contentstore"
	"github.com/quillon/vecport/sealbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealManifest(t *testing.T, m *Manifest, key []byte) []byte {
	t.Helper()

	data, err := codec.Default.Marshal(m)
	require.NoError(t, err)

	sealed, err := sealbox.Seal(data, key)
	require.NoError(t, err)

	return sealed
}

func newTestKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, sealbox.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	return key
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	contentstore.Store
	existsErr error
	getErr    error
}

func (s *failingStore) Exists(ctx context.Context, name string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.Store.Exists(ctx, name)
}

func (s *failingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, name)
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	key := newTestKey(t)

	seed := func(t *testing.T, m *Manifest) *contentstore.MemoryStore {
		t.Helper()
		store := contentstore.NewMemoryStore()
		store.Put("manifests/articles", sealManifest(t, m, key))
		return store
	}

	t.Run("Resolves", func(t *testing.T) {
		r := NewResolver(seed(t, validManifest()))

		m, err := r.Resolve(ctx, "manifests/articles", key, "acme-research")
		require.NoError(t, err)
		assert.Equal(t, "articles", m.Name)
		assert.Len(t, m.Chunks, 2)
	})

	t.Run("NotFound", func(t *testing.T) {
		r := NewResolver(contentstore.NewMemoryStore())

		_, err := r.Resolve(ctx, "manifests/articles", key, "acme-research")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("TransportFailure", func(t *testing.T) {
		boom := errors.New("connection reset")
		r := NewResolver(&failingStore{Store: seed(t, validManifest()), existsErr: boom})

		_, err := r.Resolve(ctx, "manifests/articles", key, "acme-research")

		var de *DownloadError
		require.ErrorAs(t, err, &de)
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("WrongKey", func(t *testing.T) {
		r := NewResolver(seed(t, validManifest()))

		_, err := r.Resolve(ctx, "manifests/articles", newTestKey(t), "acme-research")
		require.ErrorIs(t, err, sealbox.ErrOpenFailed)
	})

	t.Run("OwnerMismatch", func(t *testing.T) {
		r := NewResolver(seed(t, validManifest()))

		_, err := r.Resolve(ctx, "manifests/articles", key, "intruder")
		require.ErrorIs(t, err, ErrOwnerMismatch)
	})

	t.Run("Tombstoned", func(t *testing.T) {
		m := validManifest()
		m.Deleted = true
		m.VectorCount = 0
		m.ChunkCount = 0
		m.Chunks = nil

		r := NewResolver(seed(t, m))

		_, err := r.Resolve(ctx, "manifests/articles", key, "acme-research")
		require.ErrorIs(t, err, ErrDeleted)
	})

	t.Run("InvalidInvariants", func(t *testing.T) {
		m := validManifest()
		m.VectorCount = 99

		r := NewResolver(seed(t, m))

		_, err := r.Resolve(ctx, "manifests/articles", key, "acme-research")

		var ie *InvalidError
		require.ErrorAs(t, err, &ie)
	})

	t.Run("SealedGarbage", func(t *testing.T) {
		store := contentstore.NewMemoryStore()
		sealed, err := sealbox.Seal([]byte("plain text, not a manifest"), key)
		require.NoError(t, err)
		store.Put("manifests/articles", sealed)

		r := NewResolver(store)

		_, err = r.Resolve(ctx, "manifests/articles", key, "acme-research")

		var pe *ParseError
		require.ErrorAs(t, err, &pe)
	})

	t.Run("OwnerCheckedBeforeDeleted", func(t *testing.T) {
		m := validManifest()
		m.Deleted = true
		m.VectorCount = 0
		m.ChunkCount = 0
		m.Chunks = nil

		r := NewResolver(seed(t, m))

		_, err := r.Resolve(ctx, "manifests/articles", key, "intruder")
		require.ErrorIs(t, err, ErrOwnerMismatch)
	})
}
