package tree

import "github.com/hupe1980/trident/internal/itr"

// leafFactory recycles nodes. Every release bumps the node generation so
// that holders of a stale pointer can detect the reuse.
type leafFactory[K, V any] struct {
	free    []*node[K, V]
	maxSize int

	created, reused, doubleReleases int64
}

func newLeafFactory[K, V any](maxSize, prealloc int) *leafFactory[K, V] {
	f := &leafFactory[K, V]{maxSize: maxSize}
	for i := 0; i < prealloc && i < maxSize; i++ {
		f.free = append(f.free, &node[K, V]{owner: itr.OwnedByPool, gen: 1})
	}
	return f
}

func (f *leafFactory[K, V]) get(id int64, leaf bool) *node[K, V] {
	var n *node[K, V]
	if last := len(f.free) - 1; last >= 0 {
		n = f.free[last]
		f.free = f.free[:last]
		f.reused++
	} else {
		n = &node[K, V]{owner: itr.OwnedByPool}
		f.created++
	}
	n.id, n.leaf, n.next, n.dirty = id, leaf, id, false
	n.gen++
	return n
}

// release returns n to the factory. It reports false for nodes that are
// not pool owned or that were already released.
func (f *leafFactory[K, V]) release(n *node[K, V]) bool {
	if n.owner != itr.OwnedByPool {
		return false
	}
	if n.id < 0 {
		f.doubleReleases++
		return false
	}
	n.gen++
	n.id = -1
	clear(n.keys)
	clear(n.values)
	n.keys, n.values, n.children = n.keys[:0], n.values[:0], n.children[:0]
	if len(f.free) < f.maxSize {
		f.free = append(f.free, n)
	}
	return true
}
