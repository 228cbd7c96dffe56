package itr

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident/internal/perm"
)

func pairs(vs ...int64) []Pair {
	out := make([]Pair, 0, len(vs)/2)
	for i := 0; i+1 < len(vs); i += 2 {
		out = append(out, Pair{vs[i], vs[i+1]})
	}
	return out
}

func scanOf(rows ...Row) *ReOrderItr {
	r := &ReOrderItr{rows: slices.Clone(rows)}
	slices.SortFunc(r.rows, func(a, b Row) int { return a.Compare(b) })
	r.InitBase()
	return r
}

func TestArrayItr(t *testing.T) {
	data := pairs(1, 1, 1, 2, 2, 5, 3, 1, 3, 4, 3, 9)

	t.Run("full", func(t *testing.T) {
		a := NewArray(7, data)
		assert.Equal(t, data, Collect(a))
		assert.Equal(t, int64(7), a.Key())
		n, err := a.Cardinality()
		require.NoError(t, err)
		assert.Equal(t, uint64(6), n)
	})

	t.Run("constrained", func(t *testing.T) {
		a := &ArrayItr{}
		a.InitConstrained(7, data, 3, NoConstraint)
		assert.Equal(t, pairs(3, 1, 3, 4, 3, 9), Collect(a))

		a.InitConstrained(7, data, 3, 4)
		assert.Equal(t, pairs(3, 4), Collect(a))

		a.InitConstrained(7, data, 4, NoConstraint)
		assert.False(t, a.HasNext())
	})

	t.Run("move to", func(t *testing.T) {
		a := NewArray(7, data)
		require.NoError(t, a.MoveTo(2, 6))
		require.True(t, a.HasNext())
		a.Next()
		assert.Equal(t, Pair{3, 1}, Pair{a.Value1(), a.Value2()})

		require.NoError(t, a.MoveTo(1, 1))
		a.Next()
		assert.Equal(t, Pair{3, 4}, Pair{a.Value1(), a.Value2()})
	})

	t.Run("mark and reset", func(t *testing.T) {
		a := NewArray(7, data)
		a.Next()
		require.NoError(t, a.Mark())
		first := Collect(a)
		require.NoError(t, a.Reset(0))
		assert.Equal(t, first, Collect(a))
	})

	t.Run("ignore second column", func(t *testing.T) {
		a := NewArray(7, data)
		require.NoError(t, a.IgnoreSecondColumn())
		var v1s, counts []int64
		for a.HasNext() {
			a.Next()
			v1s = append(v1s, a.Value1())
			counts = append(counts, a.Count())
		}
		assert.Equal(t, []int64{1, 2, 3}, v1s)
		assert.Equal(t, []int64{2, 1, 3}, counts)
		n, err := a.Cardinality()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), n)
	})

	t.Run("has next is idempotent", func(t *testing.T) {
		a := NewArray(7, pairs(1, 1))
		assert.True(t, a.HasNext())
		assert.True(t, a.HasNext())
		a.Next()
		assert.False(t, a.HasNext())
		assert.False(t, a.HasNext())
	})

	t.Run("goto key unsupported", func(t *testing.T) {
		err := NewArray(7, data).GotoKey(3)
		assert.ErrorIs(t, err, ErrUnsupported)
		var ue *UnsupportedError
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, TypeArray, ue.Type)
	})
}

func TestTypeNamesAndCapabilities(t *testing.T) {
	assert.Equal(t, "row", TypeRow.String())
	assert.Equal(t, "reorderterm", TypeReOrderTerm.String())
	assert.Equal(t, Type(21), TypeReOrderTerm)
	assert.Contains(t, Type(99).String(), "99")
	for i := 0; i < NumTypes; i++ {
		got, ok := ParseType(Type(i).String())
		assert.True(t, ok)
		assert.Equal(t, Type(i), got)
	}
	_, ok := ParseType("bogus")
	assert.False(t, ok)

	assert.True(t, Supports(TypeScan, CapGotoKey))
	assert.False(t, Supports(TypeCache, CapIgnoreSecondColumn))
	assert.False(t, Supports(TypeCompositeScan, CapMark))
	assert.True(t, TypeNewCluster.IsTable())
	assert.False(t, TypeArray.IsTable())
}

func TestEmptyItr(t *testing.T) {
	e := NewEmpty()
	assert.False(t, e.HasNext())
	n, err := e.Cardinality()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, e.MoveTo(1, 1))
}

func TestCompositeItr(t *testing.T) {
	base := NewArray(1, pairs(1, 1, 2, 2, 4, 4))
	add1 := NewArray(1, pairs(1, 3, 3, 3))
	add2 := NewArray(1, pairs(2, 2, 5, 1))

	c := NewComposite(1, []PairItr{base, add1, add2}, 2)
	assert.Equal(t, pairs(1, 1, 1, 3, 2, 2, 3, 3, 4, 4, 5, 1), Collect(c))
	assert.NoError(t, c.Err())

	t.Run("ignore second column sums counts", func(t *testing.T) {
		c := NewComposite(1, []PairItr{
			NewArray(1, pairs(1, 1, 1, 2, 2, 2)),
			NewArray(1, pairs(1, 5, 3, 3)),
		}, 1)
		require.NoError(t, c.IgnoreSecondColumn())
		var got [][2]int64
		for c.HasNext() {
			c.Next()
			got = append(got, [2]int64{c.Value1(), c.Count()})
		}
		assert.Equal(t, [][2]int64{{1, 3}, {2, 1}, {3, 1}}, got)

		n, err := c.Cardinality()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), n)
	})

	t.Run("move to", func(t *testing.T) {
		c := NewComposite(1, []PairItr{
			NewArray(1, pairs(1, 1, 4, 4, 6, 1)),
			NewArray(1, pairs(2, 1, 5, 5)),
		}, 0)
		require.True(t, c.HasNext())
		require.NoError(t, c.MoveTo(4, 5))
		assert.Equal(t, pairs(5, 5, 6, 1), Collect(c))
	})

	t.Run("ignore after start", func(t *testing.T) {
		c := NewComposite(1, []PairItr{NewArray(1, pairs(1, 1))}, 0)
		c.HasNext()
		assert.ErrorIs(t, c.IgnoreSecondColumn(), ErrUnsupported)
		assert.ErrorIs(t, c.Mark(), ErrUnsupported)
	})
}

func TestCompositeScanItr(t *testing.T) {
	a := scanOf(Row{1, 1, 1}, Row{2, 1, 1}, Row{2, 3, 3})
	b := scanOf(Row{1, 1, 2}, Row{2, 1, 1}, Row{3, 0, 0})
	empty := scanOf()

	c := NewCompositeScan([]PairItr{a, empty, b}, 5, 4)
	assert.Equal(t, []PairItr{a, empty, b}, c.Children())
	assert.Equal(t, []Row{{1, 1, 1}, {1, 1, 2}, {2, 1, 1}, {2, 3, 3}, {3, 0, 0}}, CollectRows(c))

	n, err := c.Cardinality()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
	assert.ErrorIs(t, c.GotoKey(2), ErrUnsupported)

	t.Run("ignore second column", func(t *testing.T) {
		c := NewCompositeScan([]PairItr{
			scanOf(Row{1, 1, 1}, Row{1, 1, 2}, Row{2, 1, 1}),
			scanOf(Row{1, 1, 3}),
		}, 4, 2)
		require.NoError(t, c.IgnoreSecondColumn())
		var got [][3]int64
		for c.HasNext() {
			c.Next()
			got = append(got, [3]int64{c.Key(), c.Value1(), c.Count()})
		}
		assert.Equal(t, [][3]int64{{1, 1, 3}, {2, 1, 1}}, got)
		n, err := c.Cardinality()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), n)
	})
}

func TestCompositeScanItrKeepsExhaustedChildren(t *testing.T) {
	a := scanOf(Row{1, 1, 1})
	drained := scanOf(Row{0, 0, 0})
	drained.HasNext()
	drained.Next()
	require.False(t, drained.HasNext())

	c := NewCompositeScan([]PairItr{drained, a, scanOf()}, 1, 1)
	require.Len(t, c.Children(), 3)
	assert.Equal(t, []Row{{1, 1, 1}}, CollectRows(c))

	for _, ch := range c.Children() {
		r, ok := ch.(Releaser)
		require.True(t, ok)
		assert.True(t, r.MarkReleased())
	}
}

func TestRmItr(t *testing.T) {
	t.Run("single key", func(t *testing.T) {
		main := NewArray(1, pairs(1, 1, 1, 2, 2, 2, 3, 3))
		rm := NewArray(1, pairs(1, 2, 3, 3, 9, 9))
		r := NewRm(main, rm, 0)
		assert.True(t, r.HasNext())
		assert.True(t, r.HasNext())
		assert.Equal(t, pairs(1, 1, 2, 2), Collect(r))

		n, err := NewRm(NewArray(1, pairs(1, 1, 1, 2)), NewArray(1, pairs(1, 2)), 0).Cardinality()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)
	})

	t.Run("scan", func(t *testing.T) {
		main := scanOf(Row{1, 1, 1}, Row{2, 1, 1}, Row{2, 2, 2}, Row{3, 1, 1})
		rm := scanOf(Row{2, 1, 1}, Row{3, 1, 1})
		r := NewRm(main, rm, 0)
		assert.True(t, r.ScanLike())
		assert.Equal(t, []Row{{1, 1, 1}, {2, 2, 2}}, CollectRows(r))
	})

	t.Run("ignore second column", func(t *testing.T) {
		main := NewArray(1, pairs(1, 1, 1, 2, 2, 2, 3, 3))
		rm := NewArray(1, pairs(1, 2, 3, 3))
		r := NewRm(main, rm, 1)
		require.NoError(t, r.IgnoreSecondColumn())
		var got [][2]int64
		for r.HasNext() {
			r.Next()
			got = append(got, [2]int64{r.Value1(), r.Count()})
		}
		assert.Equal(t, [][2]int64{{1, 1}, {2, 1}}, got)
	})

	t.Run("move to and mark", func(t *testing.T) {
		main := NewArray(1, pairs(1, 1, 2, 2, 3, 3, 4, 4, 5, 5))
		rm := NewArray(1, pairs(2, 2, 4, 4))
		r := NewRm(main, rm, 0)
		require.NoError(t, r.MoveTo(2, 0))
		r.Next()
		assert.Equal(t, int64(3), r.Value1())
		require.NoError(t, r.Mark())
		rest := Collect(r)
		assert.Equal(t, pairs(5, 5), rest)
		require.NoError(t, r.Reset(0))
		assert.Equal(t, rest, Collect(r))
	})
}

func TestReOrderTermItr(t *testing.T) {
	helper := NewArray(0, pairs(0, 9, 1, 3, 2, 3, 3, 7))
	r, err := NewReOrderTerm(helper, ColumnV2)
	require.NoError(t, err)

	var keys, counts []int64
	for r.HasNext() {
		r.Next()
		keys = append(keys, r.Key())
		counts = append(counts, r.Count())
	}
	assert.Equal(t, []int64{3, 7, 9}, keys)
	assert.Equal(t, []int64{2, 1, 1}, counts)
	n, err := r.Cardinality()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
	assert.ErrorIs(t, r.MoveTo(1, 1), ErrUnsupported)
}

func TestTermLists(t *testing.T) {
	termsOf := func(vs ...int64) PairItr {
		ps := make([]Pair, len(vs))
		for i, v := range vs {
			ps[i] = Pair{int64(i), v}
		}
		r, err := NewReOrderTerm(NewArray(0, ps), ColumnV2)
		require.NoError(t, err)
		return r
	}
	keys := func(it PairItr) map[int64]int64 {
		out := map[int64]int64{}
		for it.HasNext() {
			it.Next()
			out[it.Key()] = it.Count()
		}
		return out
	}

	c := NewCompositeTerm([]PairItr{termsOf(1, 1, 3), termsOf(2, 3)})
	assert.Equal(t, map[int64]int64{1: 2, 2: 1, 3: 2}, keys(c))

	r := NewRmCompositeTerm(termsOf(1, 1, 3, 5), termsOf(1, 3, 3))
	assert.Equal(t, map[int64]int64{1: 1, 5: 1}, keys(r))
}

func TestReOrderItr(t *testing.T) {
	spo := scanOf(Row{1, 10, 100}, Row{2, 10, 100}, Row{2, 11, 101})
	r, err := NewReOrder(spo, perm.SPO, perm.OPS)
	require.NoError(t, err)
	assert.Equal(t, []Row{{100, 10, 1}, {100, 10, 2}, {101, 11, 2}}, CollectRows(r))

	r, err = NewReOrder(scanOf(Row{1, 10, 100}, Row{2, 10, 100}, Row{2, 11, 101}), perm.SPO, perm.POS)
	require.NoError(t, err)
	require.NoError(t, r.IgnoreSecondColumn())
	var got [][3]int64
	for r.HasNext() {
		r.Next()
		got = append(got, [3]int64{r.Key(), r.Value1(), r.Count()})
	}
	assert.Equal(t, [][3]int64{{10, 100, 2}, {11, 101, 1}}, got)
}

func TestNewReversed(t *testing.T) {
	a, err := NewReversed(5, NewArray(5, pairs(1, 9, 2, 3, 2, 9)), 9, NoConstraint)
	require.NoError(t, err)
	assert.Equal(t, pairs(9, 1, 9, 2), Collect(a))
}

type fakeOpener struct {
	tables   map[int64][]Pair
	opened   int
	released int
}

func (f *fakeOpener) OpenSecond(coords, c1, c2 int64) (PairItr, error) {
	f.opened++
	a := &ArrayItr{}
	a.InitConstrained(coords, f.tables[coords], c1, c2)
	return a, nil
}

func (f *fakeOpener) Release(PairItr) { f.released++ }

func TestAggrItr(t *testing.T) {
	// POS key p=7: o=100 -> table of OPS(100), o=200 -> table of OPS(200).
	op := &fakeOpener{tables: map[int64][]Pair{
		PackCoordinates(0, 10): pairs(5, 1, 7, 1, 7, 2),
		PackCoordinates(1, 20): pairs(7, 3, 7, 4, 7, 5),
	}}
	newMain := func() PairItr {
		return NewArray(7, pairs(100, PackCoordinates(0, 10), 200, PackCoordinates(1, 20)))
	}

	a := NewAggr(7, newMain(), op)
	assert.Equal(t, pairs(100, 1, 100, 2, 200, 3, 200, 4, 200, 5), Collect(a))

	t.Run("ignore second column", func(t *testing.T) {
		a := NewAggr(7, newMain(), op)
		require.NoError(t, a.IgnoreSecondColumn())
		var got [][2]int64
		for a.HasNext() {
			a.Next()
			got = append(got, [2]int64{a.Value1(), a.Count()})
		}
		assert.Equal(t, [][2]int64{{100, 2}, {200, 3}}, got)
	})

	t.Run("move to", func(t *testing.T) {
		a := NewAggr(7, newMain(), op)
		require.NoError(t, a.MoveTo(200, 4))
		assert.Equal(t, pairs(200, 4, 200, 5), Collect(a))

		a = NewAggr(7, newMain(), op)
		a.Next()
		require.NoError(t, a.MoveTo(100, 2))
		assert.Equal(t, pairs(100, 2, 200, 3, 200, 4, 200, 5), Collect(a))
	})

	t.Run("mark and reset", func(t *testing.T) {
		a := NewAggr(7, newMain(), op)
		a.Next()
		require.NoError(t, a.Mark())
		rest := Collect(a)
		require.NoError(t, a.Reset(0))
		assert.Equal(t, rest, Collect(a))
	})

	t.Run("cardinality", func(t *testing.T) {
		a := NewAggr(7, newMain(), op)
		_, err := a.Cardinality()
		assert.ErrorIs(t, err, ErrUnsupported)

		main := &ArrayItr{}
		main.InitConstrained(7, pairs(100, PackCoordinates(0, 10), 200, PackCoordinates(1, 20)), 200, NoConstraint)
		a = NewAggr(7, main, op)
		a.SetConstraint1(200)
		n, err := a.Cardinality()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), n)
	})
}

func TestPackCoordinates(t *testing.T) {
	c := PackCoordinates(513, 1<<39+7)
	f, m := UnpackCoordinates(c)
	assert.Equal(t, uint16(513), f)
	assert.Equal(t, int64(1<<39+7), m)
}

type fakeTerms struct {
	*ArrayItr
	entries map[int64]TermEntry
}

func (f fakeTerms) Type() Type                   { return TypeTerm }
func (f fakeTerms) Key() int64                   { return f.Value1() }
func (f fakeTerms) Entry() TermEntry             { return f.entries[f.Key()] }
func (f fakeTerms) GotoKey(k int64) error        { return f.MoveTo(k, 0) }
func (f fakeTerms) Count() int64                 { return f.entries[f.Key()].NElements }
func (f fakeTerms) Cardinality() (uint64, error) { return uint64(len(f.entries)), nil }

type fakeSource struct {
	tables   map[int]map[int64][]Pair
	released int
}

func (f *fakeSource) TermList(p int) (TermCursor, error) {
	t, ok := f.tables[p]
	if !ok {
		return nil, nil
	}
	var ps []Pair
	entries := map[int64]TermEntry{}
	for k, v := range t {
		ps = append(ps, Pair{k, 0})
		entries[k] = TermEntry{Key: k, NElements: int64(len(v))}
	}
	slices.SortFunc(ps, func(a, b Pair) int { return a.Compare(b) })
	return fakeTerms{ArrayItr: NewArray(0, ps), entries: entries}, nil
}

func (f *fakeSource) OpenTable(p int, e TermEntry) (PairItr, error) {
	return NewArray(e.Key, f.tables[p][e.Key]), nil
}

func (f *fakeSource) OpenReversed(p int, key int64) (PairItr, error) {
	return NewReversed(key, NewArray(key, f.tables[perm.Reverse(p)][key]), NoConstraint, NoConstraint)
}

func (f *fakeSource) Release(PairItr)         { f.released++ }
func (f *fakeSource) InputSize() uint64       { return 5 }
func (f *fakeSource) NFirstTables(int) uint64 { return 4 }

func TestScanItr(t *testing.T) {
	src := &fakeSource{tables: map[int]map[int64][]Pair{
		perm.SPO: {
			1: pairs(10, 100, 11, 100),
			2: pairs(10, 101),
			4: pairs(12, 100, 12, 102),
		},
	}}

	s, err := NewScan(src, perm.SPO, perm.SOP)
	require.NoError(t, err)
	assert.Equal(t, []Row{{1, 10, 100}, {1, 11, 100}, {2, 10, 101}, {4, 12, 100}, {4, 12, 102}}, CollectRows(s))
	assert.Equal(t, 3, src.released)

	t.Run("reversed", func(t *testing.T) {
		s, err := NewScan(src, perm.SOP, perm.SPO)
		require.NoError(t, err)
		assert.Equal(t, []Row{{1, 100, 10}, {1, 100, 11}, {2, 101, 10}, {4, 100, 12}, {4, 102, 12}}, CollectRows(s))
	})

	t.Run("goto key", func(t *testing.T) {
		s, err := NewScan(src, perm.SPO, perm.SOP)
		require.NoError(t, err)
		require.NoError(t, s.GotoKey(2))
		assert.Equal(t, []Row{{2, 10, 101}, {4, 12, 100}, {4, 12, 102}}, CollectRows(s))
	})

	t.Run("mark and reset across keys", func(t *testing.T) {
		s, err := NewScan(src, perm.SPO, perm.SOP)
		require.NoError(t, err)
		s.Next()
		require.NoError(t, s.Mark())
		rest := CollectRows(s)
		require.NoError(t, s.Reset(0))
		assert.Equal(t, rest, CollectRows(s))
	})

	t.Run("ignore second column", func(t *testing.T) {
		s, err := NewScan(src, perm.SPO, perm.SOP)
		require.NoError(t, err)
		require.NoError(t, s.IgnoreSecondColumn())
		var got [][3]int64
		for s.HasNext() {
			s.Next()
			got = append(got, [3]int64{s.Key(), s.Value1(), s.Count()})
		}
		assert.Equal(t, [][3]int64{{1, 10, 1}, {1, 11, 1}, {2, 10, 1}, {4, 12, 2}}, got)
		n, err := s.Cardinality()
		require.NoError(t, err)
		assert.Equal(t, uint64(4), n)
	})

	t.Run("missing permutation", func(t *testing.T) {
		_, err := NewScan(src, perm.POS, perm.PSO)
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}
