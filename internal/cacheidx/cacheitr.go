package cacheidx

import (
	"sort"

	"github.com/hupe1980/trident/internal/itr"
)

// Loader produces the swapped and sorted pairs of key whose first value
// lies in [from, to).
type Loader interface {
	Load(key, from, to int64) ([]itr.Pair, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(key, from, to int64) ([]itr.Pair, error)

func (f LoaderFunc) Load(key, from, to int64) ([]itr.Pair, error) { return f(key, from, to) }

// CacheItr serves one key of a permutation from a CacheIdx, loading the
// missing ranges through a Loader.
type CacheItr struct {
	itr.Base

	idx    *CacheIdx
	loader Loader
	est    uint64

	pairs      []itr.Pair
	start, pos int
	end        int
	v1, v2     int64

	mPos           int
	mV1, mV2       int64
	hasMark        bool
	card           int64
	loadedFromDisk bool
}

// NewCacheItr returns an iterator over key restricted to c1 and c2.
// estimated is reported by EstCardinality.
func NewCacheItr(idx *CacheIdx, loader Loader, key int64, estimated uint64, c1, c2 int64) (*CacheItr, error) {
	c := &CacheItr{}
	if err := c.Init(idx, loader, key, estimated, c1, c2); err != nil {
		return nil, err
	}
	return c, nil
}

// Init rebinds c.
func (c *CacheItr) Init(idx *CacheIdx, loader Loader, key int64, estimated uint64, c1, c2 int64) error {
	c.InitBase()
	c.SetKey(key)
	c.idx, c.loader, c.est = idx, loader, estimated
	c.pairs, c.start, c.pos, c.end = nil, 0, 0, 0
	c.hasMark, c.card, c.loadedFromDisk = false, -1, false
	if c1 == itr.NoConstraint {
		return c.position(fullRange, false)
	}
	c.SetConstraint1(c1)
	if _, err := c.GotoFirstTerm(c1); err != nil {
		return err
	}
	if c2 != itr.NoConstraint {
		c.SetConstraint2(c2)
		c.GotoSecondTerm(c2)
	}
	c.start = c.pos
	return nil
}

// position makes the pairs of want current, loading them on a miss. With
// exact set only the pairs whose first value is want.StartKey remain.
func (c *CacheItr) position(want Block, exact bool) error {
	e, _ := c.idx.Get(c.Key())
	var b *Block
	if e != nil {
		if b = SearchBlock(e.Blocks, want.StartKey); b != nil && !b.covers(want) {
			b = nil
		}
	}
	if b == nil {
		pairs, err := c.loader.Load(c.Key(), want.StartKey, want.EndKey)
		if err != nil {
			return err
		}
		c.loadedFromDisk = true
		want.StartArray, want.EndArray = 0, len(pairs)
		e = c.idx.StoreIdx(c.Key(), []Block{want}, pairs)
		b = SearchBlock(e.Blocks, want.StartKey)
	}
	c.pairs = e.Pairs
	c.start, c.pos, c.end = b.StartArray, b.StartArray, b.EndArray
	if exact {
		v := want.StartKey
		lo := c.pos + sort.Search(c.end-c.pos, func(i int) bool { return c.pairs[c.pos+i].V1 >= v })
		hi := lo + sort.Search(c.end-lo, func(i int) bool { return c.pairs[lo+i].V1 > v })
		c.start, c.pos, c.end = lo, lo, hi
	}
	return nil
}

// GotoFirstTerm restricts the iterator to the pairs whose first value is
// c1. It reports whether any exists.
func (c *CacheItr) GotoFirstTerm(c1 int64) (bool, error) {
	if err := c.position(Block{StartKey: c1, EndKey: c1 + 1}, true); err != nil {
		return false, err
	}
	return c.pos < c.end, nil
}

// GotoSecondTerm skips to the first pair whose second value is >= c2.
func (c *CacheItr) GotoSecondTerm(c2 int64) {
	from := c.pos
	c.pos = from + sort.Search(c.end-from, func(i int) bool { return c.pairs[from+i].V2 >= c2 })
}

// LoadedFromDisk reports whether the iterator had to call its Loader.
func (c *CacheItr) LoadedFromDisk() bool { return c.loadedFromDisk }

func (c *CacheItr) Type() itr.Type   { return itr.TypeCache }
func (c *CacheItr) Value1() int64    { return c.v1 }
func (c *CacheItr) Value2() int64    { return c.v2 }
func (c *CacheItr) Count() int64     { return 1 }
func (c *CacheItr) AllowMerge() bool { return false }

func (c *CacheItr) HasNext() bool {
	if c.pos >= c.end {
		return false
	}
	if c2 := c.Constraint2(); c2 != itr.NoConstraint && c.pairs[c.pos].V2 != c2 {
		return false
	}
	return true
}

func (c *CacheItr) Next() {
	p := c.pairs[c.pos]
	c.v1, c.v2 = p.V1, p.V2
	c.pos++
}

func (c *CacheItr) MoveTo(c1, c2 int64) error {
	from := c.pos
	c.pos = from + sort.Search(c.end-from, func(i int) bool {
		return !c.pairs[from+i].Less(itr.Pair{V1: c1, V2: c2})
	})
	return nil
}

func (c *CacheItr) Mark() error {
	c.mPos, c.mV1, c.mV2, c.hasMark = c.pos, c.v1, c.v2, true
	return nil
}

func (c *CacheItr) Reset(int) error {
	if !c.hasMark {
		c.pos = c.start
		return nil
	}
	c.pos, c.v1, c.v2 = c.mPos, c.mV1, c.mV2
	return nil
}

func (c *CacheItr) IgnoreSecondColumn() error {
	return itr.Unsupported(itr.TypeCache, "IgnoreSecondColumn")
}

func (c *CacheItr) GotoKey(int64) error { return itr.Unsupported(itr.TypeCache, "GotoKey") }

// Cardinality counts the pairs within the constraints.
func (c *CacheItr) Cardinality() (uint64, error) {
	if c.card < 0 {
		n := c.end - c.start
		if c2 := c.Constraint2(); c2 != itr.NoConstraint {
			n = 0
			for i := c.start; i < c.end && c.pairs[i].V2 == c2; i++ {
				n++
			}
		}
		c.card = int64(n)
	}
	return uint64(c.card), nil
}

func (c *CacheItr) EstCardinality() uint64 {
	if c.est > 0 {
		return c.est
	}
	n, _ := c.Cardinality()
	return n
}

func (c *CacheItr) Clear() {
	c.pairs, c.idx, c.loader = nil, nil, nil
	c.pos, c.end = 0, 0
}
