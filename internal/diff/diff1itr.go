package diff

import (
	"sort"

	"github.com/hupe1980/trident/internal/itr"
)

// Diff1Itr iterates a single-column layer in one permutation. Two columns
// are fixed and the values fill the third: the key (column 0), the first
// (column 1) or the second (column 2).
type Diff1Itr struct {
	itr.Base

	v1, v2 int64
	values []int64
	pos    int
	col    int
	ignore bool
	moved  bool

	mPos      int
	mKey, mV1 int64
	mV2       int64
	mMoved    bool
}

// NewDiff1 returns an iterator over (key, v1, v2) where column col takes
// each of values in turn.
func NewDiff1(key, v1, v2 int64, values []int64, col int) *Diff1Itr {
	d := &Diff1Itr{}
	d.Init(key, v1, v2, values, col)
	return d
}

// Init rebinds d.
func (d *Diff1Itr) Init(key, v1, v2 int64, values []int64, col int) {
	d.InitBase()
	d.SetKey(key)
	d.v1, d.v2 = v1, v2
	d.values, d.col = values, col
	d.pos, d.ignore, d.moved = 0, false, false
}

func (*Diff1Itr) Type() itr.Type  { return itr.TypeDiff1 }
func (d *Diff1Itr) Value1() int64 { return d.v1 }
func (d *Diff1Itr) Value2() int64 { return d.v2 }

// ScanLike reports whether the values are keys.
func (d *Diff1Itr) ScanLike() bool { return d.col == 0 }

// Count folds all values into one row when they fill the ignored column.
func (d *Diff1Itr) Count() int64 {
	if d.col == 2 && d.ignore {
		return int64(len(d.values))
	}
	return 1
}

func (d *Diff1Itr) HasNext() bool { return d.pos < len(d.values) }

func (d *Diff1Itr) Next() {
	d.moved = true
	switch d.col {
	case 0:
		d.SetKey(d.values[d.pos])
	case 1:
		d.v1 = d.values[d.pos]
	default:
		if d.ignore {
			d.pos = len(d.values)
			return
		}
		d.v2 = d.values[d.pos]
	}
	d.pos++
}

func (d *Diff1Itr) seek(v int64) {
	from := d.pos
	d.pos = from + sort.Search(len(d.values)-from, func(i int) bool { return d.values[from+i] >= v })
}

// MoveTo skips to the first pair >= (c1, c2). A scan over keys holds one
// pair per key and does not move.
func (d *Diff1Itr) MoveTo(c1, c2 int64) error {
	switch d.col {
	case 1:
		d.seek(c1)
		if d.pos < len(d.values) && d.values[d.pos] == c1 && d.v2 < c2 {
			d.pos++
		}
	case 2:
		switch {
		case d.v1 < c1:
			d.pos = len(d.values)
		case d.v1 == c1 && !d.ignore:
			d.seek(c2)
		}
	}
	return nil
}

func (d *Diff1Itr) Mark() error {
	d.mPos, d.mKey, d.mV1, d.mV2, d.mMoved = d.pos, d.Key(), d.v1, d.v2, d.moved
	return nil
}

func (d *Diff1Itr) Reset(int) error {
	d.pos, d.v1, d.v2, d.moved = d.mPos, d.mV1, d.mV2, d.mMoved
	d.SetKey(d.mKey)
	return nil
}

func (d *Diff1Itr) IgnoreSecondColumn() error {
	d.ignore = true
	if d.moved && d.col == 2 {
		d.pos = len(d.values)
	}
	return nil
}

func (d *Diff1Itr) GotoKey(int64) error { return itr.Unsupported(itr.TypeDiff1, "GotoKey") }

func (d *Diff1Itr) Cardinality() (uint64, error) { return d.EstCardinality(), nil }

func (d *Diff1Itr) EstCardinality() uint64 {
	if d.ignore && d.col == 2 {
		return 1
	}
	return uint64(len(d.values))
}

func (d *Diff1Itr) Clear() { d.values = nil }
