package s3

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/quillon/vecport/contentstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg)

	// Create a unique prefix for this test run
	prefix := fmt.Sprintf("test-vecport-%d/", time.Now().UnixNano())
	store := NewStore(client, bucket, prefix)

	seed := func(name string, data []byte) {
		t.Helper()
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(prefix + name),
			Body:   bytes.NewReader(data),
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(prefix + name),
			})
		})
	}

	t.Run("GetAndExists", func(t *testing.T) {
		name := "chunks/chunk-0"
		data := make([]byte, 1024*1024) // 1MB
		_, err := rand.Read(data)
		require.NoError(t, err)

		seed(name, data)

		ok, err := store.Exists(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("NotFound", func(t *testing.T) {
		ok, err := store.Exists(ctx, "nonexistent")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Get(ctx, "nonexistent")
		assert.ErrorIs(t, err, contentstore.ErrNotFound)
	})
}
