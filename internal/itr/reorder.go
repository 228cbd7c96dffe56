package itr

import (
	"slices"
	"sort"

	"github.com/hupe1980/trident/internal/perm"
)

// SwapPairs drains it and returns its pairs with the columns swapped,
// sorted. It serves a permutation from its reverse for a single key.
func SwapPairs(it PairItr) ([]Pair, error) {
	var out []Pair
	for it.HasNext() {
		it.Next()
		out = append(out, Pair{it.Value2(), it.Value1()})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b Pair) int { return a.Compare(b) })
	return out, nil
}

// NewReversed returns an ArrayItr over the swapped pairs of it.
func NewReversed(key int64, it PairItr, c1, c2 int64) (*ArrayItr, error) {
	pairs, err := SwapPairs(it)
	if err != nil {
		return nil, err
	}
	a := &ArrayItr{}
	a.InitConstrained(key, pairs, c1, c2)
	return a, nil
}

// ReOrderItr materializes a scan of one permutation in the order of another.
type ReOrderItr struct {
	Base

	rows   []Row
	pos    int
	cur    Row
	count  int64
	ignore bool

	markPos   int
	markCur   Row
	markCount int64
}

// NewReOrder drains helper, a scan in permutation from, and returns an
// iterator over the same triples in permutation to.
func NewReOrder(helper PairItr, from, to int) (*ReOrderItr, error) {
	var rows []Row
	for helper.HasNext() {
		helper.Next()
		s, p, o := perm.Unpermute(from, helper.Key(), helper.Value1(), helper.Value2())
		a, b, c := perm.Permute(to, s, p, o)
		rows = append(rows, Row{a, b, c})
	}
	if err := helper.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(rows, func(x, y Row) int { return x.Compare(y) })
	r := &ReOrderItr{rows: rows}
	r.InitBase()
	return r, nil
}

func (*ReOrderItr) Type() Type      { return TypeReOrder }
func (r *ReOrderItr) Key() int64    { return r.cur.Key }
func (r *ReOrderItr) Value1() int64 { return r.cur.V1 }
func (r *ReOrderItr) Value2() int64 { return r.cur.V2 }
func (r *ReOrderItr) Count() int64  { return r.count }
func (r *ReOrderItr) HasNext() bool { return r.pos < len(r.rows) }

func (r *ReOrderItr) Next() {
	if r.pos >= len(r.rows) {
		return
	}
	r.cur = r.rows[r.pos]
	r.pos++
	r.count = 1
	if !r.ignore {
		return
	}
	for r.pos < len(r.rows) && r.rows[r.pos].Key == r.cur.Key && r.rows[r.pos].V1 == r.cur.V1 {
		r.pos++
		r.count++
	}
}

// MoveTo seeks within the current key.
func (r *ReOrderItr) MoveTo(c1, c2 int64) error {
	target := Row{r.cur.Key, c1, c2}
	if r.ignore {
		target.V2 = 0
	}
	from := r.pos
	r.pos = from + sort.Search(len(r.rows)-from, func(i int) bool {
		return r.rows[from+i].Compare(target) >= 0
	})
	return nil
}

func (r *ReOrderItr) Mark() error {
	r.markPos, r.markCur, r.markCount = r.pos, r.cur, r.count
	return nil
}

func (r *ReOrderItr) Reset(int) error {
	r.pos, r.cur, r.count = r.markPos, r.markCur, r.markCount
	return nil
}

func (r *ReOrderItr) IgnoreSecondColumn() error {
	r.ignore = true
	return nil
}

func (r *ReOrderItr) GotoKey(k int64) error {
	from := r.pos
	r.pos = from + sort.Search(len(r.rows)-from, func(i int) bool { return r.rows[from+i].Key >= k })
	return nil
}

func (r *ReOrderItr) Cardinality() (uint64, error) {
	if !r.ignore {
		return uint64(len(r.rows)), nil
	}
	var n uint64
	for i := range r.rows {
		if i == 0 || r.rows[i].Key != r.rows[i-1].Key || r.rows[i].V1 != r.rows[i-1].V1 {
			n++
		}
	}
	return n, nil
}

func (r *ReOrderItr) EstCardinality() uint64 { return uint64(len(r.rows)) }

func (r *ReOrderItr) Clear() { r.rows = nil }

// Term list columns understood by NewReOrderTerm.
const (
	ColumnKey = iota
	ColumnV1
	ColumnV2
)

// ReOrderTermItr lists the distinct values of one column of a helper
// iterator in ascending order. Count is the number of helper rows carrying
// the value.
type ReOrderTermItr struct {
	Base

	keys   []int64
	counts []int64
	pos    int
	count  int64
}

// NewReOrderTerm drains helper and collects column.
func NewReOrderTerm(helper PairItr, column int) (*ReOrderTermItr, error) {
	var vals []int64
	for helper.HasNext() {
		helper.Next()
		switch column {
		case ColumnKey:
			vals = append(vals, helper.Key())
		case ColumnV1:
			vals = append(vals, helper.Value1())
		default:
			vals = append(vals, helper.Value2())
		}
	}
	if err := helper.Err(); err != nil {
		return nil, err
	}
	slices.Sort(vals)
	r := &ReOrderTermItr{}
	r.InitBase()
	for i, v := range vals {
		if i > 0 && v == vals[i-1] {
			r.counts[len(r.counts)-1]++
			continue
		}
		r.keys = append(r.keys, v)
		r.counts = append(r.counts, 1)
	}
	return r, nil
}

func (*ReOrderTermItr) Type() Type      { return TypeReOrderTerm }
func (*ReOrderTermItr) Value1() int64   { return 0 }
func (*ReOrderTermItr) Value2() int64   { return 0 }
func (r *ReOrderTermItr) Count() int64  { return r.count }
func (r *ReOrderTermItr) HasNext() bool { return r.pos < len(r.keys) }

func (r *ReOrderTermItr) Next() {
	if r.pos >= len(r.keys) {
		return
	}
	r.SetKey(r.keys[r.pos])
	r.count = r.counts[r.pos]
	r.pos++
}

func (r *ReOrderTermItr) MoveTo(int64, int64) error {
	return Unsupported(TypeReOrderTerm, "MoveTo")
}
func (r *ReOrderTermItr) Mark() error     { return Unsupported(TypeReOrderTerm, "Mark") }
func (r *ReOrderTermItr) Reset(int) error { return Unsupported(TypeReOrderTerm, "Reset") }
func (r *ReOrderTermItr) IgnoreSecondColumn() error {
	return Unsupported(TypeReOrderTerm, "IgnoreSecondColumn")
}

func (r *ReOrderTermItr) GotoKey(k int64) error {
	from := r.pos
	r.pos = from + sort.Search(len(r.keys)-from, func(i int) bool { return r.keys[from+i] >= k })
	return nil
}

func (r *ReOrderTermItr) Cardinality() (uint64, error) { return uint64(len(r.keys)), nil }
func (r *ReOrderTermItr) EstCardinality() uint64       { return uint64(len(r.keys)) }

func (r *ReOrderTermItr) Clear() {
	r.keys, r.counts = nil, nil
}
