package tree

// Itr walks the keys of a tree in order. It follows the leaf chain and
// reloads its leaf when the cache recycled it.
type Itr[K, V any] struct {
	t      *Tree[K, V]
	leaf   *node[K, V]
	leafID int64
	gen    uint64
	pos    int

	key   K
	value V
	err   error
}

// Iterator returns an iterator positioned before the first key.
func (t *Tree[K, V]) Iterator() (*Itr[K, V], error) {
	t.lock()
	defer t.unlock()
	n := t.root
	for !n.leaf {
		var err error
		if n, err = t.node(n.children[0]); err != nil {
			return nil, err
		}
	}
	it := &Itr[K, V]{t: t}
	it.setLeaf(n, 0)
	return it, nil
}

func (it *Itr[K, V]) setLeaf(n *node[K, V], pos int) {
	it.leaf, it.leafID, it.gen, it.pos = n, n.id, n.gen, pos
}

// current returns the leaf, reloading it when its node was recycled.
func (it *Itr[K, V]) current() (*node[K, V], error) {
	if it.leaf.gen == it.gen && it.leaf.id == it.leafID {
		return it.leaf, nil
	}
	n, err := it.t.node(it.leafID)
	if err != nil {
		return nil, err
	}
	it.leaf, it.gen = n, n.gen
	return n, nil
}

func (it *Itr[K, V]) HasNext() bool {
	if it.err != nil {
		return false
	}
	it.t.lock()
	defer it.t.unlock()
	n, err := it.current()
	if err != nil {
		it.err = err
		return false
	}
	for it.pos >= len(n.keys) {
		if n.isLast() {
			return false
		}
		if n, err = it.t.node(n.next); err != nil {
			it.err = err
			return false
		}
		it.setLeaf(n, 0)
	}
	if err := it.t.evict(); err != nil {
		it.err = err
		return false
	}
	return true
}

// Next advances to the next key. HasNext must have returned true.
func (it *Itr[K, V]) Next() {
	it.t.lock()
	defer it.t.unlock()
	n, err := it.current()
	if err != nil {
		it.err = err
		return
	}
	it.key, it.value = n.keys[it.pos], n.values[it.pos]
	it.pos++
}

// GotoKey positions the iterator before the first key >= k.
func (it *Itr[K, V]) GotoKey(k K) error {
	it.t.lock()
	defer it.t.unlock()
	n, err := it.t.leafFor(k)
	if err != nil {
		it.err = err
		return err
	}
	i, _ := search(n, it.t.kc, k)
	it.setLeaf(n, i)
	return nil
}

func (it *Itr[K, V]) Key() K     { return it.key }
func (it *Itr[K, V]) Value() V   { return it.value }
func (it *Itr[K, V]) Err() error { return it.err }
