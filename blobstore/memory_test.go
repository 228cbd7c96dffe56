package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte("hello")
	require.NoError(t, store.Put(ctx, "b/1", data))
	data[0] = 'j'

	w, err := store.Create(ctx, "a/2")
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = w.Write([]byte("!"))
	assert.Error(t, err)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/2", "b/1"}, names)

	blob, err := store.Open(ctx, "b/1")
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	r, err := blob.ReadRange(ctx, 3, 10)
	require.NoError(t, err)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "lo", string(rest))

	_, err = blob.ReadRange(ctx, 5, 1)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, store.Delete(ctx, "b/1"))
	_, err = store.Open(ctx, "b/1")
	assert.ErrorIs(t, err, ErrNotFound)
}
