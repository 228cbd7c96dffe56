package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/perm"
	"github.com/hupe1980/trident/internal/tables"
	"github.com/hupe1980/trident/internal/tree"
	"github.com/hupe1980/trident/internal/tree/flat"
)

func openTree(t *testing.T, dir string) *tree.Tree[int64, tree.Coordinates] {
	t.Helper()
	tr, err := tree.Open(tree.Config{Dir: filepath.Join(dir, TreeDir), ReadOnly: true}, tree.Int64Key{}, tree.CoordinatesCodec{})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func openStorage(t *testing.T, dir string, p int) *tables.Storage {
	t.Helper()
	st, err := tables.OpenStorage(TablesDir(dir, p), tables.StorageOptions{ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func readTable(t *testing.T, st *tables.Storage, tb tree.Table, key, c1 int64) []itr.Pair {
	t.Helper()
	r, err := st.Open(int(tb.File), tb.Mark, key, c1, itr.NoConstraint)
	require.NoError(t, err)
	defer r.Release()
	return itr.Collect(r)
}

func TestBuildAllPermutations(t *testing.T) {
	dir := t.TempDir()
	triples := []perm.Triple{
		{S: 1, P: 1, O: 3}, {S: 1, P: 1, O: 2}, {S: 2, P: 1, O: 3}, {S: 1, P: 1, O: 2},
	}
	res, err := Build(context.Background(), dir, triples, Options{MaxElementsPerNode: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.NTriples)
	assert.Equal(t, int64(3), res.NTerms)
	for p := 0; p < perm.Count; p++ {
		assert.True(t, res.Perms[p].Materialized, perm.Name(p))
	}
	assert.Equal(t, int64(2), res.Perms[perm.SPO].Tables)
	assert.Equal(t, int64(2), res.Perms[perm.SPO].NFirstTables)
	assert.Equal(t, int64(1), res.Perms[perm.POS].Tables)

	tr := openTree(t, dir)
	assert.Equal(t, int64(3), tr.Len())

	c, ok, err := tr.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	for _, p := range []int{perm.SPO, perm.SOP, perm.POS, perm.PSO} {
		assert.True(t, c.Exists(p), perm.Name(p))
	}
	assert.False(t, c.Exists(perm.OPS))
	assert.Equal(t, int64(2), c.NElements(perm.SPO))
	assert.Equal(t, int64(3), c.NElements(perm.POS))

	spo, _ := c.Get(perm.SPO)
	pairs := readTable(t, openStorage(t, dir, perm.SPO), spo, 1, itr.NoConstraint)
	assert.Equal(t, []itr.Pair{{V1: 1, V2: 2}, {V1: 1, V2: 3}}, pairs)

	c3, ok, err := tr.Get(3)
	require.NoError(t, err)
	require.True(t, ok)
	osp, _ := c3.Get(perm.OSP)
	pairs = readTable(t, openStorage(t, dir, perm.OSP), osp, 3, itr.NoConstraint)
	assert.Equal(t, []itr.Pair{{V1: 1, V2: 1}, {V1: 2, V2: 1}}, pairs)
}

func TestBuildSkipReversed(t *testing.T) {
	dir := t.TempDir()
	res, err := Build(context.Background(), dir, []perm.Triple{{S: 0, P: 1, O: 2}}, Options{SkipReversed: true})
	require.NoError(t, err)

	for _, p := range []int{perm.SOP, perm.OSP, perm.PSO} {
		assert.False(t, res.Perms[p].Materialized)
		assert.Equal(t, int64(1), res.Perms[p].NFirstTables, perm.Name(p))
		_, err := os.Stat(TablesDir(dir, p))
		assert.True(t, os.IsNotExist(err), perm.Name(p))
	}
	c, ok, err := openTree(t, dir).Get(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, c.Exists(perm.SPO))
	assert.False(t, c.Exists(perm.SOP))
}

func TestBuildAggregated(t *testing.T) {
	dir := t.TempDir()
	var triples []perm.Triple
	for s := int64(100); s < 150; s++ {
		triples = append(triples, perm.Triple{S: s, P: 1, O: 10}, perm.Triple{S: s, P: 1, O: 11})
	}
	res, err := Build(context.Background(), dir, triples, Options{Aggregate: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Perms[perm.POS].Aggregated)
	assert.Zero(t, res.Perms[perm.PSO].Aggregated)

	tr := openTree(t, dir)
	c, ok, err := tr.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	pos, _ := c.Get(perm.POS)
	assert.True(t, tables.Strategy(pos.Strategy).Aggregated())
	assert.Equal(t, int64(100), pos.NElements)

	rows := readTable(t, openStorage(t, dir, perm.POS), pos, 1, itr.NoConstraint)
	require.Len(t, rows, 2)
	ops := openStorage(t, dir, perm.OPS)
	for i, o := range []int64{10, 11} {
		assert.Equal(t, o, rows[i].V1)
		file, mark := itr.UnpackCoordinates(rows[i].V2)
		co, ok, err := tr.Get(o)
		require.NoError(t, err)
		require.True(t, ok)
		want, _ := co.Get(perm.OPS)
		assert.Equal(t, want.File, file)
		assert.Equal(t, want.Mark, mark)

		subjects := readTable(t, ops, want, o, 1)
		assert.Len(t, subjects, 50)
		assert.Equal(t, int64(100), subjects[0].V2)
	}
}

func TestBuildOldFormats(t *testing.T) {
	dir := t.TempDir()
	var triples []perm.Triple
	for i := int64(0); i < 300; i++ {
		triples = append(triples, perm.Triple{S: 5, P: i % 7, O: i})
	}
	_, err := Build(context.Background(), dir, triples, Options{OldFormats: true, MaxFileSize: 512})
	require.NoError(t, err)

	c, ok, err := openTree(t, dir).Get(5)
	require.NoError(t, err)
	require.True(t, ok)
	spo, _ := c.Get(perm.SPO)
	assert.LessOrEqual(t, tables.Strategy(spo.Strategy).StorageType(), tables.Column)
	pairs := readTable(t, openStorage(t, dir, perm.SPO), spo, 5, 3)
	require.NotEmpty(t, pairs)
	for _, p := range pairs {
		assert.Equal(t, int64(3), p.V1)
		assert.Equal(t, int64(3), p.V2%7)
	}
}

func TestBuildFlatTree(t *testing.T) {
	dir := t.TempDir()
	_, err := Build(context.Background(), dir, []perm.Triple{{S: 2, P: 4, O: 6}}, Options{FlatTree: true})
	require.NoError(t, err)

	ft, err := flat.Open(filepath.Join(dir, FlatFile), false)
	require.NoError(t, err)
	defer ft.Close()
	assert.Equal(t, int64(7), ft.Len())

	want, ok, err := openTree(t, dir).Get(4)
	require.NoError(t, err)
	require.True(t, ok)
	got, ok := ft.Get(4)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestBuildErrors(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		dir := t.TempDir()
		_, err := Build(context.Background(), dir, []perm.Triple{{S: 1, P: 1, O: 1}}, Options{})
		require.NoError(t, err)
		_, err = Build(context.Background(), dir, []perm.Triple{{S: 1, P: 1, O: 1}}, Options{})
		assert.ErrorIs(t, err, ErrExists)
	})
	t.Run("term range", func(t *testing.T) {
		_, err := Build(context.Background(), t.TempDir(), []perm.Triple{{S: -1, P: 1, O: 1}}, Options{})
		assert.ErrorIs(t, err, ErrTermRange)
		_, err = Build(context.Background(), t.TempDir(), []perm.Triple{{S: 1, P: MaxTerm + 1, O: 1}}, Options{})
		assert.ErrorIs(t, err, ErrTermRange)
	})
	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Build(ctx, t.TempDir(), []perm.Triple{{S: 1, P: 1, O: 1}}, Options{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
