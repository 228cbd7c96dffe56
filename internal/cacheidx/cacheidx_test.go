package cacheidx

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident/internal/itr"
)

type countingLoader struct {
	source []itr.Pair
	calls  int
}

func (l *countingLoader) Load(_, from, to int64) ([]itr.Pair, error) {
	l.calls++
	var out []itr.Pair
	for _, p := range l.source {
		if p.V1 >= from && p.V1 < to {
			out = append(out, p)
		}
	}
	return out, nil
}

func newIdx(t *testing.T) *CacheIdx {
	t.Helper()
	c, err := New(1 << 20)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func pairs(n int) []itr.Pair {
	var out []itr.Pair
	for v1 := int64(0); v1 < int64(n); v1++ {
		for v2 := int64(0); v2 < 3; v2++ {
			out = append(out, itr.Pair{V1: v1, V2: v1*10 + v2})
		}
	}
	return out
}

func TestSearchBlock(t *testing.T) {
	blocks := []Block{{StartKey: 0, EndKey: 5}, {StartKey: 10, EndKey: 20}}
	assert.Equal(t, int64(0), SearchBlock(blocks, 4).StartKey)
	assert.Nil(t, SearchBlock(blocks, 5))
	assert.Equal(t, int64(10), SearchBlock(blocks, 19).StartKey)
	assert.Nil(t, SearchBlock(blocks, 20))
	assert.Nil(t, SearchBlock(blocks, -1))
	assert.Nil(t, SearchBlock(nil, 1))
}

func TestStoreIdxRebases(t *testing.T) {
	c := newIdx(t)
	a := []itr.Pair{{V1: 1, V2: 1}, {V1: 2, V2: 2}}
	c.StoreIdx(7, []Block{{StartKey: 1, EndKey: 3, EndArray: 2}}, a)

	b := []itr.Pair{{V1: 9, V2: 0}}
	e := c.StoreIdx(7, []Block{{StartKey: 9, EndKey: 10, EndArray: 1}}, b)
	require.Len(t, e.Blocks, 2)

	for _, blk := range e.Blocks {
		got := e.Pairs[blk.StartArray:blk.EndArray]
		for _, p := range got {
			assert.GreaterOrEqual(t, p.V1, blk.StartKey)
			assert.Less(t, p.V1, blk.EndKey)
		}
	}
	assert.True(t, slices.IsSortedFunc(e.Blocks, compareBlocks))

	stored, ok := c.Get(7)
	require.True(t, ok)
	assert.Same(t, e, stored)
}

func TestStoreIdxDropsOverlapping(t *testing.T) {
	c := newIdx(t)
	c.StoreIdx(1, []Block{{StartKey: 2, EndKey: 4, EndArray: 1}}, []itr.Pair{{V1: 3, V2: 3}})
	c.StoreIdx(1, []Block{{StartKey: 8, EndKey: 9, EndArray: 1}}, []itr.Pair{{V1: 8, V2: 8}})

	e := c.StoreIdx(1, []Block{{StartKey: 0, EndKey: 5, EndArray: 2}},
		[]itr.Pair{{V1: 1, V2: 1}, {V1: 3, V2: 3}})
	require.Len(t, e.Blocks, 2)
	assert.Equal(t, int64(0), e.Blocks[0].StartKey)
	assert.Equal(t, int64(8), e.Blocks[1].StartKey)
	assert.Len(t, e.Pairs, 3)
}

func TestCoveringBlockAvoidsReload(t *testing.T) {
	c := newIdx(t)
	l := &countingLoader{source: pairs(20)}

	c.StoreIdx(5, []Block{{StartKey: 0, EndKey: 10, EndArray: 30}}, pairs(10))

	it, err := NewCacheItr(c, l, 5, 0, 7, itr.NoConstraint)
	require.NoError(t, err)
	assert.Equal(t, []itr.Pair{{V1: 7, V2: 70}, {V1: 7, V2: 71}, {V1: 7, V2: 72}}, itr.Collect(it))
	assert.Zero(t, l.calls)
	assert.False(t, it.LoadedFromDisk())

	it, err = NewCacheItr(c, l, 5, 0, 12, itr.NoConstraint)
	require.NoError(t, err)
	assert.Len(t, itr.Collect(it), 3)
	assert.Equal(t, 1, l.calls)
	assert.True(t, it.LoadedFromDisk())

	it, err = NewCacheItr(c, l, 5, 0, 12, 121)
	require.NoError(t, err)
	assert.Equal(t, []itr.Pair{{V1: 12, V2: 121}}, itr.Collect(it))
	assert.Equal(t, 1, l.calls)
}

func TestFullIteration(t *testing.T) {
	c := newIdx(t)
	l := &countingLoader{source: pairs(50)}

	it, err := NewCacheItr(c, l, 3, 0, itr.NoConstraint, itr.NoConstraint)
	require.NoError(t, err)
	assert.Equal(t, l.source, itr.Collect(it))
	n, err := it.Cardinality()
	require.NoError(t, err)
	assert.Equal(t, uint64(150), n)

	it, err = NewCacheItr(c, l, 3, 0, 42, itr.NoConstraint)
	require.NoError(t, err)
	assert.Len(t, itr.Collect(it), 3)
	assert.Equal(t, 1, l.calls)
}

func TestMoveTo(t *testing.T) {
	c := newIdx(t)
	l := &countingLoader{source: pairs(50)}
	it, err := NewCacheItr(c, l, 3, 0, itr.NoConstraint, itr.NoConstraint)
	require.NoError(t, err)

	require.NoError(t, it.MoveTo(20, 201))
	require.True(t, it.HasNext())
	it.Next()
	assert.Equal(t, int64(20), it.Value1())
	assert.Equal(t, int64(201), it.Value2())

	require.NoError(t, it.MoveTo(49, 1000))
	assert.False(t, it.HasNext())
}

func TestMarkReset(t *testing.T) {
	c := newIdx(t)
	l := &countingLoader{source: pairs(4)}
	it, err := NewCacheItr(c, l, 3, 0, 2, itr.NoConstraint)
	require.NoError(t, err)

	it.Next()
	require.NoError(t, it.Mark())
	rest := itr.Collect(it)
	require.NoError(t, it.Reset(0))
	assert.Equal(t, rest, itr.Collect(it))

	n, err := it.Cardinality()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
	assert.Equal(t, uint64(3), it.EstCardinality())
}

func TestUnsupported(t *testing.T) {
	c := newIdx(t)
	it, err := NewCacheItr(c, &countingLoader{}, 1, 9, itr.NoConstraint, itr.NoConstraint)
	require.NoError(t, err)
	assert.ErrorIs(t, it.IgnoreSecondColumn(), itr.ErrUnsupported)
	assert.ErrorIs(t, it.GotoKey(2), itr.ErrUnsupported)
	assert.False(t, it.AllowMerge())
	assert.Equal(t, uint64(9), it.EstCardinality())
	assert.False(t, it.HasNext())
}

func TestCounters(t *testing.T) {
	c := newIdx(t)
	_, ok := c.Get(1)
	assert.False(t, ok)
	c.StoreIdx(1, []Block{fullRange}, nil)
	_, ok = c.Get(1)
	assert.True(t, ok)

	cnt := c.Counters()
	assert.Equal(t, uint64(1), cnt.Hits)
	assert.Equal(t, uint64(1), cnt.Misses)
	assert.Equal(t, uint64(1), cnt.Loads)

	c.Clear()
	_, ok = c.Get(1)
	assert.False(t, ok)
}
