// Package cacheidx caches the pairs of tables read in reverse column order.
// A table of a permutation that is not stored is served by swapping and
// sorting the pairs of the table with the same key in the permutation
// that shares its leading column. The sorted pairs are kept per key in
// blocks covering ranges of the first value.
package cacheidx

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/hupe1980/trident/internal/itr"
)

// DefaultCapacity is the number of cached pairs kept by default.
const DefaultCapacity = 64 << 20

// Block marks pairs[StartArray:EndArray] as every pair whose first value
// lies in [StartKey, EndKey).
type Block struct {
	StartKey, EndKey     int64
	StartArray, EndArray int
}

func compareBlocks(a, b Block) int {
	if a.StartKey != b.StartKey {
		if a.StartKey < b.StartKey {
			return -1
		}
		return 1
	}
	switch {
	case a.EndKey > b.EndKey:
		return -1
	case a.EndKey < b.EndKey:
		return 1
	}
	return 0
}

func (b Block) covers(o Block) bool { return b.StartKey <= o.StartKey && o.EndKey <= b.EndKey }

func (b Block) overlaps(o Block) bool { return b.StartKey < o.EndKey && o.StartKey < b.EndKey }

// Entry is the cached state of one key. Entries are immutable once stored.
type Entry struct {
	Blocks []Block
	Pairs  []itr.Pair
}

// SearchBlock returns the block that covers v, or nil.
func SearchBlock(blocks []Block, v int64) *Block {
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].StartKey > v }) - 1
	if i >= 0 && v < blocks[i].EndKey {
		return &blocks[i]
	}
	return nil
}

// Counters reports the cache behaviour.
type Counters struct {
	Hits, Misses, Loads uint64
}

// CacheIdx maps keys to their cached blocks. Its size is bounded by the
// number of pairs held.
type CacheIdx struct {
	mu    sync.Mutex
	cache *ristretto.Cache[uint64, *Entry]

	hits, misses, loads uint64
}

// New returns a CacheIdx holding about capacity pairs.
func New(capacity int64) (*CacheIdx, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := ristretto.NewCache(&ristretto.Config[uint64, *Entry]{
		NumCounters:        max(capacity/8, 1024),
		MaxCost:            capacity,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cacheidx: %w", err)
	}
	return &CacheIdx{cache: c}, nil
}

// Get returns the entry of key.
func (c *CacheIdx) Get(key int64) (*Entry, bool) {
	e, ok := c.cache.Get(uint64(key))
	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	return e, ok
}

// StoreIdx adds blocks, whose array bounds refer to pairs, to the entry of
// key. Existing blocks overlapping a new one are dropped. It returns the
// entry now stored.
func (c *CacheIdx) StoreIdx(key int64, blocks []Block, pairs []itr.Pair) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++

	next := &Entry{}
	if old, ok := c.cache.Get(uint64(key)); ok {
		for _, b := range old.Blocks {
			if slices.ContainsFunc(blocks, b.overlaps) {
				continue
			}
			next.add(b, old.Pairs)
		}
	}
	for _, b := range blocks {
		next.add(b, pairs)
	}
	slices.SortFunc(next.Blocks, compareBlocks)

	c.cache.Set(uint64(key), next, int64(max(len(next.Pairs), 1)))
	c.cache.Wait()
	return next
}

// add copies the pairs of b from src and rebases the block.
func (e *Entry) add(b Block, src []itr.Pair) {
	start := len(e.Pairs)
	e.Pairs = append(e.Pairs, src[b.StartArray:b.EndArray]...)
	b.StartArray, b.EndArray = start, len(e.Pairs)
	e.Blocks = append(e.Blocks, b)
}

// Counters returns the hit, miss and load counts.
func (c *CacheIdx) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{Hits: c.hits, Misses: c.misses, Loads: c.loads}
}

// Clear drops every entry.
func (c *CacheIdx) Clear() { c.cache.Clear() }

// Close stops the cache.
func (c *CacheIdx) Close() { c.cache.Close() }

// fullRange is the block loaded when no first value is fixed.
var fullRange = Block{StartKey: 0, EndKey: math.MaxInt64}
