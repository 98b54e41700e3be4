package minio

import (
	"bytes"
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/quillon/vecport/contentstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-vecport"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	store := NewStore(client, bucket, "test-prefix/")

	// Seed an object directly through the client; the store itself is
	// read-only.
	data := []byte("sealed manifest bytes")
	_, err = client.PutObject(ctx, bucket, "test-prefix/manifests/articles", bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.RemoveObject(ctx, bucket, "test-prefix/manifests/articles", minio.RemoveObjectOptions{})
	})

	t.Run("Exists", func(t *testing.T) {
		ok, err := store.Exists(ctx, "manifests/articles")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Exists(ctx, "manifests/unknown")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Get", func(t *testing.T) {
		got, err := store.Get(ctx, "manifests/articles")
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "manifests/unknown")
		assert.ErrorIs(t, err, contentstore.ErrNotFound)
	})
}
