package trident_test

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/trident"
	"github.com/hupe1980/trident/internal/perm"
)

// sampleTriples mixes dense predicates, which the loader aggregates, with
// a handful of sparse subjects and objects.
func sampleTriples() []trident.Triple {
	ts := []trident.Triple{
		{S: 1, P: 1, O: 2}, {S: 1, P: 1, O: 3}, {S: 2, P: 1, O: 3},
		{S: 3, P: 4, O: 1}, {S: 3, P: 5, O: 1}, {S: 7, P: 5, O: 2},
	}
	for s := int64(100); s < 140; s++ {
		ts = append(ts, trident.Triple{S: s, P: 9, O: 10}, trident.Triple{S: s, P: 9, O: 11})
	}
	return ts
}

func buildKB(t *testing.T, triples []trident.Triple, opts ...trident.Option) *trident.KB {
	t.Helper()
	dir := t.TempDir()
	_, err := trident.Build(context.Background(), dir, triples, opts...)
	require.NoError(t, err)
	kb, err := trident.Open(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })
	return kb
}

func newQuerier(t *testing.T, kb *trident.KB) *trident.Querier {
	t.Helper()
	q, err := kb.NewQuerier()
	require.NoError(t, err)
	return q
}

type row [3]int64

// collect drains it. first is the bound leading term, or Any for scans.
func collect(t *testing.T, it trident.PairItr, first int64) []row {
	t.Helper()
	var out []row
	for it.HasNext() {
		it.Next()
		key := first
		if key < 0 {
			key = it.Key()
		}
		out = append(out, row{key, it.Value1(), it.Value2()})
	}
	require.NoError(t, it.Err())
	return out
}

// expected filters triples by the permuted pattern and sorts them in the
// order of idx.
func expected(triples []trident.Triple, idx int, first, second, third int64) []row {
	var out []row
	for _, tr := range triples {
		a, b, c := perm.Permute(idx, tr.S, tr.P, tr.O)
		if (first >= 0 && a != first) || (second >= 0 && b != second) || (third >= 0 && c != third) {
			continue
		}
		out = append(out, row{a, b, c})
	}
	slices.SortFunc(out, func(x, y row) int {
		for i := range x {
			if x[i] != y[i] {
				if x[i] < y[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	})
	return slices.Compact(out)
}

func query(t *testing.T, q *trident.Querier, idx int, first, second, third int64) []row {
	t.Helper()
	it, err := q.Permuted(idx, first, second, third, true)
	require.NoError(t, err)
	defer q.Release(it)
	return collect(t, it, first)
}

// patterns returns the bound prefixes worth checking for idx.
func patterns(triples []trident.Triple, idx int) [][3]int64 {
	out := [][3]int64{{trident.Any, trident.Any, trident.Any}, {999, trident.Any, trident.Any}}
	for _, tr := range triples[:8] {
		a, b, c := perm.Permute(idx, tr.S, tr.P, tr.O)
		out = append(out,
			[3]int64{a, trident.Any, trident.Any},
			[3]int64{a, b, trident.Any},
			[3]int64{a, b, c},
			[3]int64{a, b, c + 1000},
		)
	}
	return out
}

func TestIteratorMatchesTriples(t *testing.T) {
	triples := sampleTriples()
	configs := []struct {
		name string
		opts []trident.Option
	}{
		{"default", nil},
		{"small nodes", []trident.Option{trident.WithMaxElementsPerNode(2), trident.WithMaxNodesInCache(2)}},
		{"aggregated", []trident.Option{trident.WithAggregation(true)}},
		{"old formats", []trident.Option{trident.WithOldFormats(true)}},
		{"flat tree", []trident.Option{trident.WithFlatTree(true), trident.WithNodeCompression(trident.CompressionLZ4)}},
		{"skip reversed", []trident.Option{trident.WithSkipReversed(true)}},
		{"skip reversed without cache", []trident.Option{trident.WithSkipReversed(true), trident.WithCacheIdxCapacity(-1)}},
	}
	for _, cfg := range configs {
		t.Run(cfg.name, func(t *testing.T) {
			kb := buildKB(t, triples, cfg.opts...)
			q := newQuerier(t, kb)
			for idx := 0; idx < perm.Count; idx++ {
				for _, pt := range patterns(triples, idx) {
					got := query(t, q, idx, pt[0], pt[1], pt[2])
					want := expected(triples, idx, pt[0], pt[1], pt[2])
					assert.Equal(t, want, got, "%s %v", perm.Name(idx), pt)
				}
			}
		})
	}
}

func TestIteratorSmallTree(t *testing.T) {
	kb := buildKB(t, []trident.Triple{{S: 1, P: 1, O: 2}, {S: 1, P: 1, O: 3}, {S: 2, P: 1, O: 3}},
		trident.WithMaxElementsPerNode(2))
	q := newQuerier(t, kb)

	it, err := q.Iterator(trident.SPO, 1, 1, trident.Any)
	require.NoError(t, err)
	defer q.Release(it)

	var objects []int64
	for it.HasNext() {
		it.Next()
		objects = append(objects, it.Value2())
	}
	assert.Equal(t, []int64{2, 3}, objects)

	var terms []int64
	require.NoError(t, kb.WalkTerms(func(term int64, _ trident.TermCoordinates) error {
		terms = append(terms, term)
		return nil
	}))
	assert.Equal(t, []int64{1, 2}, terms)

	n, err := q.Card(1, 1, trident.Any)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	grouped, err := q.Iterator(trident.SPO, 1, trident.Any, trident.Any)
	require.NoError(t, err)
	defer q.Release(grouped)
	require.NoError(t, grouped.IgnoreSecondColumn())
	require.True(t, grouped.HasNext())
	grouped.Next()
	assert.Equal(t, int64(1), grouped.Value1())
	assert.Equal(t, int64(2), grouped.Count())
	assert.False(t, grouped.HasNext())
}

func TestConcurrentQueriersShareTree(t *testing.T) {
	kb := buildKB(t, sampleTriples(),
		trident.WithMaxElementsPerNode(2),
		trident.WithMaxNodesInCache(2),
		trident.WithConcurrent(true))

	var g errgroup.Group
	for range 4 {
		g.Go(func() error {
			q, err := kb.NewQuerier()
			if err != nil {
				return err
			}
			for s := int64(139); s >= 100; s-- {
				ok, err := q.Exists(s, 9, 11)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("missing triple (%d, 9, 11)", s)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	stats, err := kb.Stats()
	require.NoError(t, err)
	assert.Positive(t, stats.Tree.Evictions)
	assert.Zero(t, stats.Tree.DoubleRelease)
}

func TestUnconstrainedIteratorMovesToStart(t *testing.T) {
	triples := sampleTriples()
	kb := buildKB(t, triples)
	q := newQuerier(t, kb)

	it, err := q.Permuted(trident.POS, 9, 11, trident.Any, false)
	require.NoError(t, err)
	defer q.Release(it)

	require.True(t, it.HasNext())
	it.Next()
	assert.Equal(t, int64(11), it.Value1())
	assert.Equal(t, int64(100), it.Value2())
}

func TestIteratorErrors(t *testing.T) {
	kb := buildKB(t, sampleTriples())
	q := newQuerier(t, kb)

	_, err := q.Iterator(7, 1, trident.Any, trident.Any)
	assert.ErrorIs(t, err, trident.ErrInvalidPermutation)

	_, err = q.Permuted(trident.SPO, trident.Any, 1, trident.Any, true)
	var pe *trident.ErrInvalidPattern
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, trident.SPO, pe.Perm)

	_, err = q.Permuted(trident.SPO, 1, trident.Any, 2, true)
	assert.ErrorAs(t, err, &pe)
}

func TestReleaseTwiceIsLogged(t *testing.T) {
	metrics := &trident.BasicMetricsCollector{}
	kb := buildKB(t, sampleTriples(), trident.WithMetricsCollector(metrics))
	q := newQuerier(t, kb)

	it, err := q.Iterator(trident.POS, trident.Any, 9, trident.Any)
	require.NoError(t, err)
	q.Release(it)
	assert.NotPanics(t, func() { q.Release(it) })

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.QueryCount)
	assert.Equal(t, int64(1), stats.PermQueries[trident.POS])
	assert.NotEmpty(t, stats.Iterators)
}

func TestExistsAndIsEmpty(t *testing.T) {
	kb := buildKB(t, sampleTriples(), trident.WithSkipReversed(true))
	q := newQuerier(t, kb)

	tests := []struct {
		s, p, o int64
		want    bool
	}{
		{1, 1, 2, true},
		{1, 1, 4, false},
		{3, trident.Any, 1, true},
		{trident.Any, 5, 2, true},
		{trident.Any, trident.Any, 11, true},
		{trident.Any, trident.Any, 12, false},
		{trident.Any, trident.Any, trident.Any, true},
	}
	for _, tt := range tests {
		ok, err := q.Exists(tt.s, tt.p, tt.o)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "(%d, %d, %d)", tt.s, tt.p, tt.o)

		empty, err := q.IsEmpty(tt.s, tt.p, tt.o)
		require.NoError(t, err)
		assert.Equal(t, !tt.want, empty)
	}

	ok, err := q.ExistKey(trident.OSP, 11)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = q.ExistKey(trident.OSP, 12)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexSelection(t *testing.T) {
	var q *trident.Querier
	a, j := int64(trident.Any), int64(trident.Join)
	tests := []struct {
		s, p, o int64
		want    int
	}{
		{1, 2, 3, trident.SPO},
		{1, 2, a, trident.SPO},
		{1, j, a, trident.SPO},
		{1, a, a, trident.SOP},
		{1, a, 3, trident.SOP},
		{a, 2, 3, trident.OPS},
		{a, j, 3, trident.OPS},
		{a, a, 3, trident.OSP},
		{a, 2, j, trident.POS},
		{a, 2, a, trident.PSO},
		{j, a, a, trident.SPO},
		{j, a, j, trident.SOP},
		{a, a, j, trident.OPS},
		{j, a, j, trident.SOP},
		{a, j, j, trident.OPS},
		{a, j, a, trident.POS},
		{j, j, a, trident.SPO},
		{a, a, a, trident.SPO},
	}
	for _, tt := range tests {
		assert.Equal(t, perm.Name(tt.want), perm.Name(q.Index(tt.s, tt.p, tt.o)), "(%d, %d, %d)", tt.s, tt.p, tt.o)
	}
}

func TestStatsAndClose(t *testing.T) {
	kb := buildKB(t, sampleTriples(), trident.WithSkipReversed(true))
	q := newQuerier(t, kb)

	it, err := q.Iterator(trident.SOP, 1, trident.Any, trident.Any)
	require.NoError(t, err)
	assert.Len(t, collect(t, it, 1), 2)
	q.Release(it)

	s, err := kb.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(len(sampleTriples())), s.NTriples)
	assert.True(t, s.Perms[trident.SPO].Materialized)
	assert.False(t, s.Perms[trident.SOP].Materialized)
	assert.Equal(t, uint64(1), s.CacheIdx[trident.SOP].Loads)

	kb.ClearCaches()
	require.NoError(t, kb.Close())
	require.NoError(t, kb.Close())

	_, err = kb.NewQuerier()
	assert.ErrorIs(t, err, trident.ErrClosed)
	_, err = kb.Stats()
	assert.ErrorIs(t, err, trident.ErrClosed)
}

func TestOpenMissing(t *testing.T) {
	_, err := trident.Open(t.TempDir())
	assert.ErrorIs(t, err, trident.ErrNotFound)
}
