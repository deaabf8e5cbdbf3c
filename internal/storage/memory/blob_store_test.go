package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectStoresCopy(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	data := []byte("png-bytes")
	url, err := store.PutObject(context.Background(), "covers/solo/cov-1.png", "image/png", data)
	require.NoError(t, err)
	require.Equal(t, "memory://covers/solo/cov-1.png", url)

	// Mutating the caller's slice must not affect the stored copy.
	data[0] = 'x'
	stored, ok := store.Get("covers/solo/cov-1.png")
	require.True(t, ok)
	require.Equal(t, []byte("png-bytes"), stored)
	require.Equal(t, 1, store.Len())
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "", "image/png", []byte("x"))
	require.Error(t, err)
	require.Zero(t, store.Len())
}
