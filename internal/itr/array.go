package itr

import "sort"

// ArrayItr iterates an in-memory slice of pairs sorted by (V1, V2).
type ArrayItr struct {
	Base

	pairs  []Pair
	start  int
	end    int
	pos    int
	cur    Pair
	count  int64
	ignore bool

	markPos   int
	markCur   Pair
	markCount int64
}

// NewArray returns an iterator over pairs, which must be sorted.
func NewArray(key int64, pairs []Pair) *ArrayItr {
	a := &ArrayItr{}
	a.Init(key, pairs)
	return a
}

// Init rebinds a to the whole of pairs.
func (a *ArrayItr) Init(key int64, pairs []Pair) {
	a.InitConstrained(key, pairs, NoConstraint, NoConstraint)
}

// InitConstrained rebinds a to pairs restricted to V1 == c1 and, if c2 is
// set, V2 == c2.
func (a *ArrayItr) InitConstrained(key int64, pairs []Pair, c1, c2 int64) {
	a.InitBase()
	a.SetKey(key)
	a.pairs = pairs
	a.ignore = false
	a.count = 0
	a.start, a.end = 0, len(pairs)
	a.applyConstraints(c1, c2)
}

func (a *ArrayItr) applyConstraints(c1, c2 int64) {
	a.SetConstraint1(c1)
	a.SetConstraint2(c2)
	if c1 != NoConstraint {
		lo := sort.Search(len(a.pairs), func(i int) bool { return a.pairs[i].V1 >= c1 })
		hi := sort.Search(len(a.pairs), func(i int) bool { return a.pairs[i].V1 > c1 })
		if c2 != NoConstraint {
			from := lo
			lo = from + sort.Search(hi-from, func(i int) bool { return a.pairs[from+i].V2 >= c2 })
			hi = from + sort.Search(hi-from, func(i int) bool { return a.pairs[from+i].V2 > c2 })
		}
		a.start, a.end = lo, hi
	}
	a.pos = a.start
}

func (*ArrayItr) Type() Type { return TypeArray }

func (a *ArrayItr) Value1() int64 { return a.cur.V1 }
func (a *ArrayItr) Value2() int64 { return a.cur.V2 }
func (a *ArrayItr) Count() int64  { return a.count }

func (a *ArrayItr) HasNext() bool { return a.pos < a.end }

func (a *ArrayItr) Next() {
	if a.pos >= a.end {
		return
	}
	a.cur = a.pairs[a.pos]
	if !a.ignore {
		a.pos++
		a.count = 1
		return
	}
	j := a.pos + 1
	for j < a.end && a.pairs[j].V1 == a.cur.V1 {
		j++
	}
	a.count = int64(j - a.pos)
	a.pos = j
}

func (a *ArrayItr) MoveTo(c1, c2 int64) error {
	target := Pair{c1, c2}
	n := a.end - a.pos
	from := a.pos
	if a.ignore {
		a.pos = from + sort.Search(n, func(i int) bool { return a.pairs[from+i].V1 >= c1 })
		return nil
	}
	a.pos = from + sort.Search(n, func(i int) bool { return !a.pairs[from+i].Less(target) })
	return nil
}

func (a *ArrayItr) Mark() error {
	a.markPos, a.markCur, a.markCount = a.pos, a.cur, a.count
	return nil
}

func (a *ArrayItr) Reset(int) error {
	a.pos, a.cur, a.count = a.markPos, a.markCur, a.markCount
	return nil
}

func (a *ArrayItr) IgnoreSecondColumn() error {
	a.ignore = true
	return nil
}

func (a *ArrayItr) GotoKey(int64) error { return Unsupported(TypeArray, "GotoKey") }

func (a *ArrayItr) Cardinality() (uint64, error) {
	if !a.ignore {
		return uint64(a.end - a.start), nil
	}
	var n uint64
	for i := a.start; i < a.end; i++ {
		if i == a.start || a.pairs[i].V1 != a.pairs[i-1].V1 {
			n++
		}
	}
	return n, nil
}

func (a *ArrayItr) EstCardinality() uint64 { return uint64(a.end - a.start) }

// Pairs returns the backing slice.
func (a *ArrayItr) Pairs() []Pair { return a.pairs }

func (a *ArrayItr) Clear() {
	a.pairs = nil
	a.start, a.end, a.pos = 0, 0, 0
}
