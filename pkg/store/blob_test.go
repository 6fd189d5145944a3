package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmle/talkdocs/pkg/store"
)

func TestFileBlobStoreRoundTrip(t *testing.T) {
	blobs, err := store.NewFileBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("raw upload bytes")
	require.NoError(t, blobs.Put(ctx, "owner-1/doc-1.txt", data))

	got, err := blobs.Get(ctx, "owner-1/doc-1.txt")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, blobs.Delete(ctx, "owner-1/doc-1.txt"))
	_, err = blobs.Get(ctx, "owner-1/doc-1.txt")
	assert.Error(t, err)
}

func TestFileBlobStoreOverwrite(t *testing.T) {
	blobs, err := store.NewFileBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, blobs.Put(ctx, "a/b.txt", []byte("first")))
	require.NoError(t, blobs.Put(ctx, "a/b.txt", []byte("second")))

	got, err := blobs.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestFileBlobStoreDeleteMissing(t *testing.T) {
	blobs, err := store.NewFileBlobStore(t.TempDir())
	require.NoError(t, err)

	// Deleting a blob that never existed is not an error.
	assert.NoError(t, blobs.Delete(context.Background(), "never/there.txt"))
}
