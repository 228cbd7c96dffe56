package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/perm"
)

type memBase []perm.Triple

func (m memBase) Exists(t perm.Triple) (bool, error) {
	for _, x := range m {
		if x == t {
			return true, nil
		}
	}
	return false, nil
}

func (m memBase) Card(p int, key int64) (int64, error) {
	var n int64
	for _, t := range m {
		if a, _, _ := t.In(p); a == key {
			n++
		}
	}
	return n, nil
}

func (m memBase) CardPair(p int, key, v1 int64) (int64, error) {
	var n int64
	for _, t := range m {
		if a, b, _ := t.In(p); a == key && b == v1 {
			n++
		}
	}
	return n, nil
}

func tr(s, p, o int64) perm.Triple { return perm.Triple{S: s, P: p, O: o} }

func rows(t *testing.T, it itr.PairItr) []itr.Row {
	t.Helper()
	out := itr.CollectRows(it)
	require.NoError(t, it.Err())
	return out
}

func TestGeneralIterator(t *testing.T) {
	l, err := New(Addition, []perm.Triple{tr(1, 1, 2), tr(1, 1, 3), tr(2, 1, 3), tr(1, 1, 2)}, nil, Options{})
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, General, l.Class())
	assert.Equal(t, int64(3), l.Size())

	it, nfirst, err := l.Iterator(perm.SPO, 1, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), nfirst)
	assert.Equal(t, []itr.Row{{Key: 1, V1: 1, V2: 2}, {Key: 1, V1: 1, V2: 3}}, rows(t, it))

	it, _, err = l.Iterator(perm.OPS, 3, 1, -1)
	require.NoError(t, err)
	assert.Equal(t, []itr.Row{{Key: 3, V1: 1, V2: 1}, {Key: 3, V1: 1, V2: 2}}, rows(t, it))

	it, _, err = l.Iterator(perm.OSP, 3, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []itr.Row{{Key: 3, V1: 2, V2: 1}}, rows(t, it))

	it, _, err = l.Iterator(perm.SPO, 9, -1, -1)
	require.NoError(t, err)
	assert.False(t, it.HasNext())

	_, _, err = l.Iterator(perm.SPO, -1, -1, -1)
	assert.ErrorIs(t, err, ErrFullScan)

	assert.Equal(t, int64(2), l.Card(perm.SPO, 1))
	assert.Equal(t, int64(3), l.Card(perm.POS, 1))
	assert.Equal(t, int64(0), l.Card(perm.POS, 2))
}

func TestGeneralScanAndTerms(t *testing.T) {
	ts := []perm.Triple{tr(5, 1, 1), tr(1, 2, 3), tr(1, 2, 4), tr(3, 1, 1)}
	for _, threshold := range []int{1, DefaultTreeThreshold} {
		l, err := New(Addition, ts, nil, Options{TreeThreshold: threshold, MaxElementsPerNode: 2})
		require.NoError(t, err)

		s, err := l.Scan(perm.SPO)
		require.NoError(t, err)
		assert.Equal(t, []itr.Row{
			{Key: 1, V1: 2, V2: 3}, {Key: 1, V1: 2, V2: 4},
			{Key: 3, V1: 1, V2: 1}, {Key: 5, V1: 1, V2: 1},
		}, rows(t, s))

		s, err = l.Scan(perm.SPO)
		require.NoError(t, err)
		require.NoError(t, s.IgnoreSecondColumn())
		require.True(t, s.HasNext())
		s.Next()
		assert.Equal(t, int64(2), s.Count())
		n, err := s.Cardinality()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), n)

		s, err = l.Scan(perm.SPO)
		require.NoError(t, err)
		require.NoError(t, s.GotoKey(2))
		assert.Equal(t, []itr.Row{{Key: 3, V1: 1, V2: 1}, {Key: 5, V1: 1, V2: 1}}, rows(t, s))

		terms, err := l.TermList(perm.POS)
		require.NoError(t, err)
		var keys, counts []int64
		for terms.HasNext() {
			terms.Next()
			keys = append(keys, terms.Key())
			counts = append(counts, terms.Count())
		}
		assert.Equal(t, []int64{1, 2}, keys)
		assert.Equal(t, []int64{2, 2}, counts)
		card, err := terms.Cardinality()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), card)

		terms, err = l.TermList(perm.OSP)
		require.NoError(t, err)
		require.NoError(t, terms.GotoKey(2))
		require.True(t, terms.HasNext())
		terms.Next()
		assert.Equal(t, int64(3), terms.Key())

		require.NoError(t, l.Close())
	}
}

func TestAdditionAgainstBase(t *testing.T) {
	base := memBase{tr(1, 1, 2), tr(2, 1, 3)}
	l, err := New(Addition, []perm.Triple{tr(1, 1, 2), tr(1, 1, 3), tr(7, 2, 3)}, base, Options{})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, []perm.Triple{tr(1, 1, 3), tr(7, 2, 3)}, l.Triples())
	assert.Equal(t, int64(1), l.NUniqueKeys(perm.SPO))
	assert.Equal(t, int64(1), l.NUniqueKeys(perm.PSO))
	assert.Equal(t, int64(0), l.NUniqueKeys(perm.OPS))
	assert.Equal(t, int64(1), l.UniqueNFirstTerms(perm.SPO))
	assert.Equal(t, int64(2), l.NFirstTables(perm.SPO))
}

func TestDeletionAgainstBase(t *testing.T) {
	base := memBase{tr(1, 1, 2), tr(1, 1, 3), tr(2, 1, 3)}
	l, err := New(Deletion, []perm.Triple{tr(1, 1, 2), tr(1, 1, 3), tr(4, 4, 4), tr(2, 1, 3)}, base, Options{})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, Deletion, l.Type())
	assert.Equal(t, int64(3), l.Size())
	assert.Equal(t, int64(2), l.NUniqueKeys(perm.SPO))
	assert.Equal(t, int64(1), l.NUniqueKeys(perm.POS))
}

func TestSingleColumn(t *testing.T) {
	l, err := New(Addition, []perm.Triple{tr(1, 5, 9), tr(1, 5, 3), tr(1, 5, 7)}, nil, Options{})
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, Single, l.Class())
	assert.Equal(t, int64(3), l.Size())

	it, nfirst, err := l.Iterator(perm.SPO, 1, 5, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), nfirst)
	assert.Equal(t, []itr.Row{{Key: 1, V1: 5, V2: 3}, {Key: 1, V1: 5, V2: 7}, {Key: 1, V1: 5, V2: 9}}, rows(t, it))

	it, _, err = l.Iterator(perm.SOP, 1, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, []itr.Row{{Key: 1, V1: 3, V2: 5}, {Key: 1, V1: 7, V2: 5}, {Key: 1, V1: 9, V2: 5}}, rows(t, it))

	it, _, err = l.Iterator(perm.OPS, -1, -1, -1)
	require.NoError(t, err)
	assert.True(t, itr.IsScanLike(it))
	assert.Equal(t, []itr.Row{{Key: 3, V1: 5, V2: 1}, {Key: 7, V1: 5, V2: 1}, {Key: 9, V1: 5, V2: 1}}, rows(t, it))

	it, _, err = l.Iterator(perm.OPS, 7, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, []itr.Row{{Key: 7, V1: 5, V2: 1}}, rows(t, it))

	it, _, err = l.Iterator(perm.OPS, 8, -1, -1)
	require.NoError(t, err)
	assert.False(t, it.HasNext())

	it, _, err = l.Iterator(perm.SPO, 2, -1, -1)
	require.NoError(t, err)
	assert.False(t, it.HasNext())

	assert.Equal(t, int64(3), l.Card(perm.SPO, 1))
	assert.Equal(t, int64(1), l.Card(perm.OSP, 9))
	assert.Equal(t, int64(0), l.Card(perm.OSP, 4))

	terms, err := l.TermList(perm.OSP)
	require.NoError(t, err)
	var keys []int64
	for terms.HasNext() {
		terms.Next()
		keys = append(keys, terms.Key())
		assert.Equal(t, int64(1), terms.Count())
	}
	assert.Equal(t, []int64{3, 7, 9}, keys)

	terms, err = l.TermList(perm.PSO)
	require.NoError(t, err)
	require.True(t, terms.HasNext())
	terms.Next()
	assert.Equal(t, int64(5), terms.Key())
	assert.Equal(t, int64(3), terms.Count())
	assert.False(t, terms.HasNext())
}

func TestDiff1Itr(t *testing.T) {
	d := NewDiff1(1, 5, -1, []int64{3, 7, 9}, 2)
	require.NoError(t, d.MoveTo(5, 6))
	require.True(t, d.HasNext())
	d.Next()
	assert.Equal(t, int64(7), d.Value2())
	require.NoError(t, d.Mark())
	d.Next()
	require.NoError(t, d.Reset(0))
	assert.Equal(t, int64(7), d.Value2())
	d.Next()
	assert.Equal(t, int64(9), d.Value2())
	assert.False(t, d.HasNext())

	d = NewDiff1(1, 5, -1, []int64{3, 7, 9}, 2)
	require.NoError(t, d.IgnoreSecondColumn())
	assert.Equal(t, 1, len(itr.Collect(d)))
	assert.Equal(t, int64(3), d.Count())
	n, err := d.Cardinality()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	d = NewDiff1(1, -1, 4, []int64{2, 6}, 1)
	require.NoError(t, d.MoveTo(2, 5))
	assert.Equal(t, []itr.Pair{{V1: 6, V2: 4}}, itr.Collect(d))

	d = NewDiff1(1, 5, -1, []int64{3}, 2)
	require.NoError(t, d.MoveTo(6, 0))
	assert.False(t, d.HasNext())
	assert.ErrorIs(t, d.GotoKey(1), itr.ErrUnsupported)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	ts := []perm.Triple{tr(3, 2, 1), tr(1, 2, 3), tr(1, 1, 1)}

	require.NoError(t, Save(LayerPath(dir, 2, Deletion), ts[:1]))
	require.NoError(t, Save(LayerPath(dir, 1, Addition), ts))

	layers, err := ListLayers(dir)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, 1, layers[0].Seq)
	assert.Equal(t, Addition, layers[0].Type)
	assert.Equal(t, Deletion, layers[1].Type)

	got, err := Load(layers[0].Path, false)
	require.NoError(t, err)
	assert.Equal(t, []perm.Triple{tr(1, 1, 1), tr(1, 2, 3), tr(3, 2, 1)}, got)

	got, err = Load(layers[1].Path, false)
	require.NoError(t, err)
	assert.Equal(t, []perm.Triple{tr(3, 2, 1)}, got)

	none, err := ListLayers(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("rm")
	require.NoError(t, err)
	assert.Equal(t, Deletion, typ)
	_, err = ParseType("x")
	assert.Error(t, err)
}
