package diff

import (
	"sort"

	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/tree"
)

type keyMode uint8

const (
	modeTree keyMode = iota
	modeFlat
	modeConstant
)

// keyIndex maps the keys of one leading column to their tables in the two
// permutations sharing it. Many keys live in a tree, a moderate number in a
// flat array of fixed-width keys and a single key in a constant.
type keyIndex struct {
	mode keyMode
	n    int

	tree *tree.Tree[int64, tree.Coordinates]

	flat   []byte
	nbytes int
	// coords is parallel to flat. When nil every key maps to constCoords.
	coords []tree.Coordinates

	constKey    int64
	constCoords tree.Coordinates
}

func flatWidth(maxKey int64) int {
	if binenc.BytesFor(maxKey) <= 4 {
		return 4
	}
	return 8
}

// buildKeyIndex indexes keys, which must be sorted and unique.
func buildKeyIndex(keys []int64, coords []tree.Coordinates, opts Options) (*keyIndex, error) {
	k := &keyIndex{n: len(keys)}
	switch {
	case len(keys) == 1:
		k.mode = modeConstant
		k.constKey, k.constCoords = keys[0], coords[0]
	case len(keys) > opts.TreeThreshold:
		k.mode = modeTree
		t, err := tree.Open(tree.Config{
			MaxElementsPerNode: opts.MaxElementsPerNode,
			Concurrent:         true,
			Logger:             opts.Logger,
		}, tree.Int64Key{}, tree.CoordinatesCodec{})
		if err != nil {
			return nil, err
		}
		for i, key := range keys {
			if err := t.Append(key, coords[i]); err != nil {
				return nil, err
			}
		}
		k.tree = t
	default:
		k.mode = modeFlat
		if len(keys) > 0 {
			k.nbytes = flatWidth(keys[len(keys)-1])
		}
		k.flat = make([]byte, 0, len(keys)*k.nbytes)
		for _, key := range keys {
			k.flat = appendKey(k.flat, key, k.nbytes)
		}
		k.coords = coords
	}
	return k, nil
}

func appendKey(dst []byte, key int64, nbytes int) []byte {
	return binenc.AppendN(dst, key, nbytes)
}

func (k *keyIndex) keyAt(i int) int64 { return binenc.ReadN(k.flat, i*k.nbytes, k.nbytes) }

func (k *keyIndex) coordsAt(i int) tree.Coordinates {
	if k.coords == nil {
		return k.constCoords
	}
	return k.coords[i]
}

func (k *keyIndex) search(key int64) int {
	return sort.Search(k.n, func(i int) bool { return k.keyAt(i) >= key })
}

func (k *keyIndex) get(key int64) (tree.Coordinates, bool, error) {
	switch k.mode {
	case modeTree:
		return k.tree.Get(key)
	case modeConstant:
		if key == k.constKey {
			return k.constCoords, true, nil
		}
	default:
		if i := k.search(key); i < k.n && k.keyAt(i) == key {
			return k.coordsAt(i), true, nil
		}
	}
	return tree.Coordinates{}, false, nil
}

func (k *keyIndex) cursor() (keyCursor, error) {
	switch k.mode {
	case modeTree:
		it, err := k.tree.Iterator()
		if err != nil {
			return nil, err
		}
		return &treeCursor{it: it}, nil
	case modeConstant:
		return &constCursor{key: k.constKey, coords: k.constCoords, left: true}, nil
	}
	return &flatCursor{k: k}, nil
}

func (k *keyIndex) close() error {
	if k.tree != nil {
		return k.tree.Close()
	}
	return nil
}

// keyCursor walks the keys of a keyIndex in order.
type keyCursor interface {
	HasNext() bool
	Next() (int64, tree.Coordinates)
	// GotoKey positions the cursor before the first key >= key.
	GotoKey(key int64) error
	Err() error
}

type treeCursor struct {
	it *tree.Itr[int64, tree.Coordinates]
}

func (c *treeCursor) HasNext() bool { return c.it.HasNext() }

func (c *treeCursor) Next() (int64, tree.Coordinates) {
	c.it.Next()
	return c.it.Key(), c.it.Value()
}

func (c *treeCursor) GotoKey(key int64) error { return c.it.GotoKey(key) }
func (c *treeCursor) Err() error              { return c.it.Err() }

type flatCursor struct {
	k   *keyIndex
	pos int
}

func (c *flatCursor) HasNext() bool { return c.pos < c.k.n }

func (c *flatCursor) Next() (int64, tree.Coordinates) {
	i := c.pos
	c.pos++
	return c.k.keyAt(i), c.k.coordsAt(i)
}

func (c *flatCursor) GotoKey(key int64) error {
	c.pos = c.k.search(key)
	return nil
}

func (c *flatCursor) Err() error { return nil }

type constCursor struct {
	key    int64
	coords tree.Coordinates
	left   bool
}

func (c *constCursor) HasNext() bool { return c.left }

func (c *constCursor) Next() (int64, tree.Coordinates) {
	c.left = false
	return c.key, c.coords
}

func (c *constCursor) GotoKey(key int64) error {
	c.left = key <= c.key
	return nil
}

func (c *constCursor) Err() error { return nil }
