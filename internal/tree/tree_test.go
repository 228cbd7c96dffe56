package tree

import (
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident/internal/compress"
	"github.com/hupe1980/trident/internal/fs"
	"github.com/hupe1980/trident/internal/perm"
)

func keys[K, V any](t *testing.T, tr *Tree[K, V]) []K {
	t.Helper()
	it, err := tr.Iterator()
	require.NoError(t, err)
	var out []K
	for it.HasNext() {
		it.Next()
		out = append(out, it.Key())
	}
	require.NoError(t, it.Err())
	return out
}

func TestInMemorySplits(t *testing.T) {
	tr, err := Open(Config{MaxElementsPerNode: 2}, Int64Key{}, Int64Value{})
	require.NoError(t, err)

	order := rand.New(rand.NewPCG(1, 2)).Perm(200)
	for _, k := range order {
		require.NoError(t, tr.Put(int64(k), int64(k*10)))
	}
	assert.Equal(t, int64(200), tr.Len())

	got := keys(t, tr)
	require.Len(t, got, 200)
	assert.IsIncreasing(t, got)

	for _, k := range []int64{0, 57, 199} {
		v, ok, err := tr.Get(k)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, k*10, v)
	}
	_, ok, err := tr.Get(200)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tr.Put(57, 1))
	v, _, _ := tr.Get(57)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(200), tr.Len())
}

func TestPutOrGet(t *testing.T) {
	tr, err := Open(Config{}, StringKey{}, Int64Value{})
	require.NoError(t, err)

	v, found, err := tr.PutOrGet("alice", 1)
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err = tr.PutOrGet("alice", 2)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), v)

	got, _, _ := tr.Get("alice")
	assert.Equal(t, int64(1), got)
}

func TestAppend(t *testing.T) {
	tr, err := Open(Config{MaxElementsPerNode: 4}, Int64Key{}, Int64Value{})
	require.NoError(t, err)
	for k := int64(0); k < 100; k++ {
		require.NoError(t, tr.Append(k, k))
	}
	assert.ErrorIs(t, tr.Append(50, 0), ErrNotIncreasing)
	assert.Len(t, keys(t, tr), 100)

	// Bulk loaded leaves stay full, so fewer nodes are created than with
	// balanced splits.
	assert.LessOrEqual(t, tr.Stats().NodesCreated, int64(40))
}

func TestPersistenceAndEviction(t *testing.T) {
	for _, comp := range []compress.Type{compress.None, compress.LZ4} {
		t.Run(comp.String(), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "tree")
			cfg := Config{Dir: dir, MaxElementsPerNode: 8, MaxNodesInCache: 3, NodeMinSize: 64, Compression: comp}
			tr, err := Open(cfg, Int64Key{}, CoordinatesCodec{})
			require.NoError(t, err)

			for k := int64(0); k < 500; k++ {
				var c Coordinates
				c.Set(perm.SPO, Table{File: uint16(k % 3), Mark: k, Strategy: 0x80, NElements: k + 1})
				if k%5 == 0 {
					c.Set(perm.OSP, Table{File: 1, Mark: 2 * k, Strategy: 0x60, NElements: 4})
				}
				require.NoError(t, tr.Put(k*3, c))
			}
			st := tr.Stats()
			assert.Positive(t, st.Evictions)
			assert.Positive(t, st.NodeWrites)
			assert.LessOrEqual(t, st.CachedNodes, 3)
			assert.Len(t, keys(t, tr), 500)
			require.NoError(t, tr.Close())

			cfg.ReadOnly = true
			ro, err := Open(cfg, Int64Key{}, CoordinatesCodec{})
			require.NoError(t, err)
			defer ro.Close()
			assert.Equal(t, int64(500), ro.Len())

			c, ok, err := ro.Get(30)
			require.NoError(t, err)
			require.True(t, ok)
			tb, ok := c.Get(perm.SPO)
			require.True(t, ok)
			assert.Equal(t, Table{File: 1, Mark: 10, Strategy: 0x80, NElements: 11}, tb)
			assert.Equal(t, int64(4), c.NElements(perm.OSP))
			assert.False(t, c.Exists(perm.POS))

			_, ok, err = ro.Get(31)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.ErrorIs(t, ro.Put(1, Coordinates{}), ErrReadOnly)

			it, err := ro.Iterator()
			require.NoError(t, err)
			require.NoError(t, it.GotoKey(1000))
			require.True(t, it.HasNext())
			it.Next()
			assert.Equal(t, int64(1002), it.Key())
			n := 1
			for it.HasNext() {
				it.Next()
				n++
			}
			assert.Equal(t, 500-334, n)
		})
	}
}

func TestEvictionDropsRecycledNodes(t *testing.T) {
	cfg := Config{Dir: filepath.Join(t.TempDir(), "tree"), MaxElementsPerNode: 4, MaxNodesInCache: 2}
	tr, err := Open(cfg, Int64Key{}, Int64Value{})
	require.NoError(t, err)
	defer tr.Close()

	for k := int64(0); k < 40; k++ {
		require.NoError(t, tr.Put(k, k*2))
		require.Equal(t, tr.cache.lru.Len(), len(tr.cache.items))
		_, stale := tr.cache.items[-1]
		require.False(t, stale)
	}
	assert.Positive(t, tr.Stats().Evictions)
	assert.LessOrEqual(t, tr.cache.len(), 2)

	for k := int64(0); k < 40; k++ {
		v, ok, err := tr.Get(k)
		require.NoError(t, err)
		require.True(t, ok, "key %d", k)
		assert.Equal(t, k*2, v)
	}
	assert.Equal(t, tr.cache.lru.Len(), len(tr.cache.items))
	assert.Len(t, keys(t, tr), 40)
	assert.Zero(t, tr.Stats().DoubleRelease)
}

func TestNodeCacheEvictUsesIDBeforeRelease(t *testing.T) {
	c := newNodeCache[int64, int64](1)
	f := newLeafFactory[int64, int64](4, 0)
	for id := int64(1); id <= 3; id++ {
		c.put(f.get(id, true))
	}
	require.NoError(t, c.evict(func(n *node[int64, int64]) error {
		f.release(n)
		return nil
	}))
	assert.Equal(t, 1, c.len())
	assert.Len(t, c.items, 1)
	_, ok := c.get(3)
	assert.True(t, ok)
	_, ok = c.get(1)
	assert.False(t, ok)
}

func TestReopenForWrite(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, MaxElementsPerNode: 4, MaxNodesInCache: 2}
	tr, err := Open(cfg, StringKey{}, Int64Value{})
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, tr.Put("k"+strconv.Itoa(i), int64(i)))
	}
	require.NoError(t, tr.Close())

	tr, err = Open(cfg, StringKey{}, Int64Value{})
	require.NoError(t, err)
	require.NoError(t, tr.Put("zz", 99))
	require.NoError(t, tr.Close())

	tr, err = Open(cfg, StringKey{}, Int64Value{})
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, int64(51), tr.Len())
	v, ok, err := tr.Get("k42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), v)
}

func TestFaultyWrite(t *testing.T) {
	faulty := fs.NewFaultyFS(fs.Default)
	faulty.AddRule("idx", fs.Fault{Err: errors.New("disk full")})
	tr, err := Open(Config{Dir: t.TempDir(), FS: faulty}, Int64Key{}, Int64Value{})
	require.NoError(t, err)
	require.NoError(t, tr.Put(1, 1))
	assert.Error(t, tr.Close())
}

func TestCoordinatesCodec(t *testing.T) {
	var c Coordinates
	c.Set(perm.OPS, Table{File: 65535, Mark: 1<<40 - 1, Strategy: 0xff, NElements: 12345})
	b := CoordinatesCodec{}.Append([]byte{9}, c)
	assert.Len(t, b, 1+1+13)
	got, off := CoordinatesCodec{}.Read(b, 1)
	assert.Equal(t, len(b), off)
	assert.Equal(t, c, got)

	var other Coordinates
	other.Set(perm.SPO, Table{Mark: 1})
	got.Merge(other)
	assert.True(t, got.Exists(perm.SPO))
	assert.True(t, got.Exists(perm.OPS))
}
