package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)
	ctx := context.Background()

	name := "tree/tree.idx"
	data := []byte("0123456789 subject predicate object")

	w, err := store.Create(ctx, name)
	require.NoError(t, err)
	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	_, err = store.Open(ctx, name)
	require.ErrorIs(t, err, ErrNotFound, "blob is invisible before Close")

	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	assert.Error(t, w.Close())

	_, err = os.Stat(filepath.Join(tmpDir, "tree", "tree.idx"))
	require.NoError(t, err)

	blob, err := store.Open(ctx, name)
	require.NoError(t, err)
	defer blob.Close()
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 7)
	n, err = blob.ReadAt(ctx, buf, 11)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, "subject", string(buf))

	m, ok := blob.(Mappable)
	require.True(t, ok)
	raw, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, raw)

	require.NoError(t, store.Put(ctx, "_manifest.json", []byte("{}")))
	require.NoError(t, store.Put(ctx, "spo/0", nil))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"_manifest.json", "spo/0", "tree/tree.idx"}, names)

	names, err = store.List(ctx, "tree/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tree/tree.idx"}, names)

	require.NoError(t, store.Delete(ctx, "spo/0"))
	require.NoError(t, store.Delete(ctx, "spo/0"))
	_, err = store.Open(ctx, "spo/0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_ReadRange_Boundaries(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	data := []byte("0123456789")
	require.NoError(t, store.Put(ctx, "boundary.bin", data))

	blob, err := store.Open(ctx, "boundary.bin")
	require.NoError(t, err)
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 0, 10)
	require.NoError(t, err)
	content, _ := io.ReadAll(r)
	r.Close()
	require.True(t, bytes.Equal(data, content))

	r, err = blob.ReadRange(ctx, 8, 5)
	require.NoError(t, err)
	content, err = io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "89", string(content))
	r.Close()

	_, err = blob.ReadRange(ctx, 20, 5)
	require.ErrorIs(t, err, io.EOF)

	buf := make([]byte, 4)
	n, err := blob.ReadAt(ctx, buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLocalStore_MissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_Canceled(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Open(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Put(ctx, "x", []byte("y")), context.Canceled)
}
