package tables

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/itr"
)

// memWriter is an in-memory Writer.
type memWriter struct{ b []byte }

func (m *memWriter) Append(b []byte) (int64, error) {
	pos := int64(len(m.b))
	m.b = append(m.b, b...)
	return pos, nil
}

func (m *memWriter) ReserveBytes(n int) (int64, error) {
	pos := int64(len(m.b))
	m.b = append(m.b, make([]byte, n)...)
	return pos, nil
}

func (m *memWriter) OverwriteAt(pos int64, b []byte) error {
	copy(m.b[pos:], b)
	return nil
}

func (m *memWriter) OverwriteVLong2At(pos, v int64) error {
	return binenc.PutVLong2Fixed(m.b, int(pos), v, binenc.MaxVLong2Len)
}

func (m *memWriter) Size() int64 { return int64(len(m.b)) }

func write(t *testing.T, s Strategy, pairs []itr.Pair) []byte {
	t.Helper()
	ins, err := NewInserter(s, InserterOptions{TmpDir: t.TempDir(), ThresholdToOffload: 100})
	require.NoError(t, err)
	w := &memWriter{}
	require.NoError(t, ins.StartAppend(w))
	for _, p := range pairs {
		require.NoError(t, ins.Append(p.V1, p.V2))
	}
	require.NoError(t, ins.StopAppend())
	return w.b
}

func open(t *testing.T, s Strategy, data []byte, c1, c2 int64) *Table {
	t.Helper()
	tb, err := Open(s, 1, data, c1, c2)
	require.NoError(t, err)
	t.Cleanup(func() { tb.Release() })
	return tb
}

// grid returns groups of increasing size so that every layout crosses its
// index checkpoints.
func grid(groups, perGroup int) []itr.Pair {
	var out []itr.Pair
	for g := 0; g < groups; g++ {
		n := 1 + (g*7)%perGroup
		for j := 0; j < n; j++ {
			out = append(out, itr.Pair{V1: int64(g*3 + 1), V2: int64(j*5 + g%4)})
		}
	}
	return out
}

// wide returns few groups large enough to carry per-group indexes.
func wide(groups, perGroup int) []itr.Pair {
	var out []itr.Pair
	for g := 0; g < groups; g++ {
		for j := 0; j < perGroup; j++ {
			out = append(out, itr.Pair{V1: int64(g + 1), V2: int64(j * 3)})
		}
	}
	return out
}

var allStrategies = map[string]Strategy{
	"row":            OldStrategy(Row, true, false, false, false),
	"row-vlong2":     OldStrategy(Row, false, true, true, false),
	"row-raw":        OldStrategy(Row, false, false, false, true),
	"cluster":        OldStrategy(Cluster, true, false, false, false),
	"cluster-vlong2": OldStrategy(Cluster, true, true, true, false),
	"cluster-raw":    OldStrategy(Cluster, false, false, false, true),
	"column":         OldStrategy(Column, true, false, false, false),
	"column-vlong2":  OldStrategy(Column, false, true, true, false),
	"newrow":         NewStrategy(NewRow, 2, 2, false),
	"newcluster":     NewStrategy(NewCluster, 2, 2, true),
	"newcolumn":      FixedNewColumn,
}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]itr.Pair{
		"single": {{V1: 4, V2: 9}},
		"small":  grid(12, 5),
		"large":  grid(900, 40),
		"wide":   wide(3, 1500),
	}
	for name, s := range allStrategies {
		for in, pairs := range inputs {
			t.Run(name+"/"+in, func(t *testing.T) {
				tb := open(t, s, write(t, s, pairs), itr.NoConstraint, itr.NoConstraint)
				assert.Equal(t, itr.Type(s.StorageType()), tb.Type())
				assert.Equal(t, pairs, itr.Collect(tb))
				require.NoError(t, tb.Err())

				n, err := tb.Cardinality()
				require.NoError(t, err)
				assert.Equal(t, uint64(len(pairs)), n)
			})
		}
	}
}

func TestEmptyTableWritesNothing(t *testing.T) {
	for name, s := range allStrategies {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, write(t, s, nil))
		})
	}
}

func TestMoveTo(t *testing.T) {
	for name, s := range allStrategies {
		for _, pairs := range [][]itr.Pair{grid(900, 40), wide(3, 1500)} {
			t.Run(name, func(t *testing.T) {
				testMoveTo(t, s, pairs)
			})
		}
	}
}

func testMoveTo(t *testing.T, s Strategy, pairs []itr.Pair) {
	target := pairs[len(pairs)/2+7]
	tb := open(t, s, write(t, s, pairs), itr.NoConstraint, itr.NoConstraint)
	require.True(t, tb.HasNext())
	tb.Next()
	require.NoError(t, tb.MoveTo(target.V1, target.V2))
	require.True(t, tb.HasNext())
	tb.Next()
	assert.Equal(t, target, itr.Pair{V1: tb.Value1(), V2: tb.Value2()})

	// Seeking between pairs lands on the successor.
	require.NoError(t, tb.MoveTo(target.V1, target.V2+1))
	require.True(t, tb.HasNext())
	tb.Next()
	assert.False(t, itr.Pair{V1: tb.Value1(), V2: tb.Value2()}.Less(itr.Pair{V1: target.V1, V2: target.V2 + 1}))

	require.NoError(t, tb.MoveTo(1<<30, 0))
	assert.False(t, tb.HasNext())
}

func TestConstraints(t *testing.T) {
	pairs := grid(900, 40)
	var want []itr.Pair
	for _, p := range pairs {
		if p.V1 == 301 {
			want = append(want, p)
		}
	}
	require.NotEmpty(t, want)
	for name, s := range allStrategies {
		t.Run(name, func(t *testing.T) {
			data := write(t, s, pairs)
			tb := open(t, s, data, 301, itr.NoConstraint)
			assert.Equal(t, want, itr.Collect(tb))

			tb2 := open(t, s, data, 301, want[len(want)-1].V2)
			assert.Equal(t, want[len(want)-1:], itr.Collect(tb2))

			tb3 := open(t, s, data, 302, itr.NoConstraint)
			assert.False(t, tb3.HasNext())
			n, err := tb3.Cardinality()
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestIgnoreSecondColumn(t *testing.T) {
	pairs := grid(300, 12)
	counts := map[int64]int64{}
	var order []int64
	for _, p := range pairs {
		if counts[p.V1] == 0 {
			order = append(order, p.V1)
		}
		counts[p.V1]++
	}
	for name, s := range allStrategies {
		t.Run(name, func(t *testing.T) {
			tb := open(t, s, write(t, s, pairs), itr.NoConstraint, itr.NoConstraint)
			require.NoError(t, tb.IgnoreSecondColumn())
			var got []int64
			for tb.HasNext() {
				tb.Next()
				got = append(got, tb.Value1())
				assert.Equal(t, counts[tb.Value1()], tb.Count())
			}
			assert.Equal(t, order, got)
			n, err := tb.Cardinality()
			require.NoError(t, err)
			assert.Equal(t, uint64(len(order)), n)
		})
	}
}

func TestMarkReset(t *testing.T) {
	pairs := grid(50, 6)
	for name, s := range allStrategies {
		t.Run(name, func(t *testing.T) {
			tb := open(t, s, write(t, s, pairs), itr.NoConstraint, itr.NoConstraint)
			for i := 0; i < 10; i++ {
				tb.Next()
			}
			require.NoError(t, tb.Mark())
			first := itr.Collect(tb)
			require.NoError(t, tb.Reset(0))
			assert.Equal(t, first, itr.Collect(tb))
			assert.Equal(t, pairs[10:], first)
		})
	}
}

func TestGotoKeyUnsupported(t *testing.T) {
	s := allStrategies["row"]
	tb := open(t, s, write(t, s, grid(2, 2)), itr.NoConstraint, itr.NoConstraint)
	assert.ErrorIs(t, tb.GotoKey(3), itr.ErrUnsupported)
}

func TestCorruptTable(t *testing.T) {
	_, err := Open(Strategy(7<<5), 1, []byte{1, 2, 3}, itr.NoConstraint, itr.NoConstraint)
	var ce *CorruptTableError
	require.ErrorAs(t, err, &ce)

	s := allStrategies["newcolumn"]
	data := write(t, s, grid(5, 3))
	_, err = Open(s, 1, data[:len(data)-1], itr.NoConstraint, itr.NoConstraint)
	require.ErrorAs(t, err, &ce)

	s = allStrategies["newcluster"]
	data = write(t, s, grid(5, 3))
	_, err = Open(s, 1, data[:len(data)-1], itr.NoConstraint, itr.NoConstraint)
	require.ErrorAs(t, err, &ce)
}

func TestValueTooWide(t *testing.T) {
	s := NewStrategy(NewRow, 1, 1, false)
	ins, err := NewInserter(s, InserterOptions{})
	require.NoError(t, err)
	require.NoError(t, ins.StartAppend(&memWriter{}))
	assert.ErrorIs(t, ins.Append(1, 300), ErrValueTooWide)
}

func TestClusterSmallModeCountWidth(t *testing.T) {
	s := allStrategies["cluster"]
	data := write(t, s, grid(3, 2))
	assert.Equal(t, byte(clusterCount1), data[0])

	// A group above 255 encoded bytes needs 4-byte sizes.
	var big []itr.Pair
	for j := 0; j < 200; j++ {
		big = append(big, itr.Pair{V1: 1, V2: int64(j * 1000)})
	}
	data = write(t, s, big)
	assert.Equal(t, byte(clusterCount4), data[0])
	tb := open(t, s, data, itr.NoConstraint, itr.NoConstraint)
	assert.Equal(t, big, itr.Collect(tb))
}

func TestDetermineStrategy(t *testing.T) {
	stats := &Stats{}

	few := []itr.Pair{{V1: 1, V2: 2}, {V1: 2, V2: 3}, {V1: 3, V2: 4}}
	s := DetermineStrategy(few, len(few), DefaultClusterColumnTerms, false, stats)
	assert.Equal(t, NewRow, s.StorageType())
	assert.Equal(t, 1, s.Width1())

	var clustered []itr.Pair
	for j := 0; j < 100; j++ {
		clustered = append(clustered, itr.Pair{V1: 70000, V2: int64(j)})
	}
	s = DetermineStrategy(clustered, len(clustered), DefaultClusterColumnTerms, false, stats)
	assert.Equal(t, NewCluster, s.StorageType())
	assert.Equal(t, 4, s.Width1())
	assert.Equal(t, 1, s.CountWidth())

	many := grid(40, 3)
	s = DetermineStrategy(many, len(many), DefaultClusterColumnTerms, false, stats)
	assert.Equal(t, FixedNewColumn, s)

	s = DetermineStrategy(few, ThresholdKeepMemory, DefaultClusterColumnTerms, true, stats)
	assert.Equal(t, FixedNewRow, s)

	huge := []itr.Pair{{V1: 1, V2: 1 << 60}}
	s = DetermineStrategy(huge, 1, DefaultClusterColumnTerms, false, stats)
	assert.True(t, s.Raw())
	tb := open(t, s, write(t, s, huge), itr.NoConstraint, itr.NoConstraint)
	assert.Equal(t, huge, itr.Collect(tb))

	assert.Equal(t, int64(1), stats.Approximate)
	assert.Equal(t, int64(1), stats.Overflow)

	for _, in := range [][]itr.Pair{few, clustered, many} {
		s := DetermineStrategyOld(in, len(in), DefaultClusterColumnTerms, nil)
		tb := open(t, s, write(t, s, in), itr.NoConstraint, itr.NoConstraint)
		assert.Equal(t, in, itr.Collect(tb), s.String())
	}
}

func TestDetermineAggregated(t *testing.T) {
	var rep []itr.Pair
	for j := 0; j < 100; j++ {
		rep = append(rep, itr.Pair{V1: int64(j / 50), V2: int64(j)})
	}
	assert.True(t, DetermineAggregated(rep, nil))
	assert.False(t, DetermineAggregated(grid(30, 2), nil))
	assert.False(t, DetermineAggregated(nil, nil))
}

func TestFileIndex(t *testing.T) {
	var idx FileIndex
	idx.Add(10, 100)
	idx.Add(20, 200)
	sub := &FileIndex{}
	sub.Add(5, 50)
	idx.AddAdditional(15, sub)

	assert.Equal(t, -1, idx.Idx(10))
	assert.Equal(t, 0, idx.Idx(11))
	assert.Equal(t, 1, idx.Idx(1000))

	b := idx.AppendTo([]byte{0xff})
	got, next, err := UnmarshalFileIndex(b, 1)
	require.NoError(t, err)
	assert.Equal(t, len(b), next)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, int64(200), got.Pos(1))
	require.NotNil(t, got.Additional(15))
	assert.Equal(t, int64(5), got.Additional(15).Key(0))
	assert.Nil(t, got.Additional(16))

	_, _, err = UnmarshalFileIndex(b[:len(b)-2], 1)
	assert.Error(t, err)
}

func TestStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spo")
	st, err := OpenStorage(dir, StorageOptions{MaxFileSize: 256})
	require.NoError(t, err)

	tables := map[int64][]itr.Pair{}
	type loc struct {
		file int
		mark int64
	}
	locs := map[int64]loc{}
	for key := int64(1); key <= 30; key++ {
		pairs := grid(int(key%5)+1, 4)
		s := DetermineStrategy(pairs, len(pairs), DefaultClusterColumnTerms, false, nil)
		f, m, err := st.StartAppend(key*2, s)
		require.NoError(t, err)
		for _, p := range pairs {
			require.NoError(t, st.Append(p.V1, p.V2))
		}
		require.NoError(t, st.StopAppend())
		tables[key*2] = pairs
		locs[key*2] = loc{f, m}
	}
	require.NoError(t, st.Close())

	ro, err := OpenStorage(dir, StorageOptions{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()
	assert.Greater(t, ro.NFiles(), 1)

	n, err := ro.NTables()
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)

	for key, pairs := range tables {
		l := locs[key]
		tb, err := ro.Open(l.file, l.mark, key, itr.NoConstraint, itr.NoConstraint)
		require.NoError(t, err)
		assert.Equal(t, pairs, itr.Collect(tb), "key %d", key)
		tb.Release()
	}

	_, _, err = ro.Table(0, 1000)
	assert.True(t, errors.Is(err, ErrNoTable))

	terms, err := ro.Terms(func(k int64) int64 { return int64(len(tables[k])) })
	require.NoError(t, err)
	card, err := terms.Cardinality()
	require.NoError(t, err)
	assert.Equal(t, uint64(30), card)

	var keys []int64
	for terms.HasNext() {
		terms.Next()
		keys = append(keys, terms.Key())
		e := terms.Entry()
		assert.Equal(t, locs[e.Key], loc{int(e.File), e.Mark})
		assert.Equal(t, int64(len(tables[e.Key])), e.NElements)
	}
	assert.Len(t, keys, 30)
	assert.IsIncreasing(t, keys)

	terms2, err := ro.Terms(nil)
	require.NoError(t, err)
	require.NoError(t, terms2.GotoKey(31))
	require.True(t, terms2.HasNext())
	terms2.Next()
	assert.Equal(t, int64(32), terms2.Key())
	require.NoError(t, terms2.Mark())
	terms2.Next()
	require.NoError(t, terms2.Reset(0))
	assert.Equal(t, int64(32), terms2.Key())
	terms2.Next()
	assert.Equal(t, int64(34), terms2.Key())
	require.NoError(t, terms2.GotoKey(1000))
	assert.False(t, terms2.HasNext())
	assert.ErrorIs(t, terms2.MoveTo(1, 1), itr.ErrUnsupported)
}
