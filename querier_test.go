package trident_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident"
)

type termCount struct{ key, count int64 }

func terms(t *testing.T, q *trident.Querier, idx int) []termCount {
	t.Helper()
	it, err := q.TermList(idx)
	require.NoError(t, err)
	defer q.Release(it)
	var out []termCount
	for it.HasNext() {
		it.Next()
		out = append(out, termCount{it.Key(), it.Count()})
	}
	require.NoError(t, it.Err())
	return out
}

func TestCard(t *testing.T) {
	kb := buildKB(t, sampleTriples())
	q := newQuerier(t, kb)
	a := int64(trident.Any)

	tests := []struct {
		s, p, o int64
		want    int64
	}{
		{a, a, a, 86},
		{1, a, a, 2},
		{a, 9, a, 80},
		{a, a, 3, 2},
		{1, 1, a, 2},
		{a, 5, 1, 1},
		{1, 1, 2, 1},
		{1, 1, 4, 0},
		{999, a, 4, 0},
	}
	for _, tt := range tests {
		n, err := q.Card(tt.s, tt.p, tt.o)
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, "(%d, %d, %d)", tt.s, tt.p, tt.o)
	}
}

func TestCardAt(t *testing.T) {
	kb := buildKB(t, sampleTriples())
	q := newQuerier(t, kb)
	a := int64(trident.Any)

	tests := []struct {
		s, p, o int64
		pos     int
		want    int64
	}{
		{a, 9, a, 2, 2},
		{a, 9, a, 0, 40},
		{3, a, a, 1, 2},
		{3, a, a, 2, 1},
		{a, a, 1, 1, 2},
		{a, a, 1, 0, 1},
		{3, a, 1, 1, 2},
		{1, 1, 2, 0, 1},
		{1, 1, 9, 0, 0},
	}
	for _, tt := range tests {
		n, err := q.CardAt(tt.s, tt.p, tt.o, tt.pos)
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, "(%d, %d, %d) at %d", tt.s, tt.p, tt.o, tt.pos)
	}

	_, err := q.CardAt(a, a, a, 0)
	var pe *trident.ErrInvalidPattern
	assert.ErrorAs(t, err, &pe)
}

func TestEstCard(t *testing.T) {
	kb := buildKB(t, sampleTriples())
	q := newQuerier(t, kb)
	a := int64(trident.Any)

	n, err := q.EstCard(a, a, a)
	require.NoError(t, err)
	assert.Equal(t, int64(86), n)

	n, err = q.EstCard(a, 9, a)
	require.NoError(t, err)
	assert.Equal(t, int64(80), n)

	n, err = q.EstCard(1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = q.EstCard(a, 9, 10)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestCardOnIndex(t *testing.T) {
	kb := buildKB(t, sampleTriples())
	q := newQuerier(t, kb)
	a := int64(trident.Any)

	n, err := q.CardOnIndex(trident.POS, a, 9, a, false)
	require.NoError(t, err)
	assert.Equal(t, int64(80), n)

	n, err = q.CardOnIndex(trident.POS, a, 9, a, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "distinct objects of predicate 9")

	n, err = q.CardOnIndex(trident.SPO, 1, 1, a, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = q.CardOnIndex(trident.SPO, 1, 1, a, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = q.CardOnIndex(trident.SPO, a, a, a, false)
	require.NoError(t, err)
	assert.Equal(t, int64(86), n)

	n, err = q.CardOnIndex(trident.SPO, 5, a, a, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = q.EstCardOnIndex(trident.PSO, a, 9, a)
	require.NoError(t, err)
	assert.Equal(t, int64(80), n)

	n, err = q.EstCardOnIndex(trident.OPS, a, a, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = q.CardOnIndex(9, a, a, a, false)
	assert.ErrorIs(t, err, trident.ErrInvalidPermutation)
}

func TestAggregatedGroups(t *testing.T) {
	kb := buildKB(t, sampleTriples(), trident.WithAggregation(true))
	q := newQuerier(t, kb)
	a := int64(trident.Any)

	n, err := q.AggregatedGroups(trident.POS, a, 9, a)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = q.AggregatedGroups(trident.POS, a, 9, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = q.AggregatedGroups(trident.SPO, 1, a, a)
	require.NoError(t, err)
	assert.Zero(t, n)

	it, err := q.Iterator(trident.POS, a, 9, 11)
	require.NoError(t, err)
	assert.Equal(t, "aggr", it.Type().String())
	assert.Len(t, collect(t, it, 9), 40)
	q.Release(it)
	assert.Equal(t, int64(1), q.Counters().Aggregated)
}

func TestReverseCard(t *testing.T) {
	kb := buildKB(t, sampleTriples(), trident.WithSkipReversed(true))
	q := newQuerier(t, kb)
	a := int64(trident.Any)

	n, err := q.ReverseCard(trident.SOP, 3, a, a)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = q.ReverseCard(trident.SPO, 3, a, a)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = q.ReverseCard(trident.OSP, a, a, a)
	require.NoError(t, err)
	assert.Equal(t, int64(86), n)
}

func TestTermList(t *testing.T) {
	for _, skip := range []bool{false, true} {
		kb := buildKB(t, sampleTriples(), trident.WithSkipReversed(skip))
		q := newQuerier(t, kb)

		want := []termCount{{1, 3}, {4, 1}, {5, 2}, {9, 80}}
		assert.Equal(t, want, terms(t, q, trident.POS))
		assert.Equal(t, want, terms(t, q, trident.PSO))
	}
}

func TestCountersAndInputSize(t *testing.T) {
	kb := buildKB(t, sampleTriples(), trident.WithSkipReversed(true))
	q := newQuerier(t, kb)

	assert.Equal(t, int64(86), q.InputSize())
	assert.Equal(t, int64(45), q.NFirstTablesPerPartition(trident.SPO))
	assert.Equal(t, int64(85), q.NFirstTablesPerPartition(trident.SOP))

	it, err := q.Iterator(trident.SPO, trident.Any, trident.Any, trident.Any)
	require.NoError(t, err)
	assert.Len(t, collect(t, it, trident.Any), 86)
	q.Release(it)

	it, err = q.Iterator(trident.OSP, trident.Any, trident.Any, 10)
	require.NoError(t, err)
	assert.Len(t, collect(t, it, 10), 40)
	q.Release(it)

	c := q.Counters()
	assert.Equal(t, int64(1), c.Scans)
	assert.Equal(t, int64(1), c.Cached)
	assert.Equal(t, int64(1), c.Perms[trident.SPO])
	assert.Equal(t, int64(1), c.Perms[trident.OSP])

	q.ResetCounters()
	assert.Equal(t, trident.Counters{}, q.Counters())
}
