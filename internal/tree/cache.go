package tree

import (
	"container/list"
	"sync/atomic"
)

// nodeCache is an LRU of loaded nodes keyed by id. Eviction is explicit so
// that callers never lose a node they still hold during an operation.
type nodeCache[K, V any] struct {
	capacity int
	items    map[int64]*list.Element
	lru      *list.List

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func newNodeCache[K, V any](capacity int) *nodeCache[K, V] {
	return &nodeCache[K, V]{
		capacity: capacity,
		items:    make(map[int64]*list.Element),
		lru:      list.New(),
	}
}

func (c *nodeCache[K, V]) get(id int64) (*node[K, V], bool) {
	if e, ok := c.items[id]; ok {
		c.hits.Add(1)
		c.lru.MoveToFront(e)
		return e.Value.(*node[K, V]), true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *nodeCache[K, V]) put(n *node[K, V]) {
	if e, ok := c.items[n.id]; ok {
		e.Value = n
		c.lru.MoveToFront(e)
		return
	}
	c.items[n.id] = c.lru.PushFront(n)
}

func (c *nodeCache[K, V]) len() int { return c.lru.Len() }

// evict removes least recently used nodes until the capacity is respected.
// onEvict runs before a node is dropped; an error stops the eviction and
// keeps the node cached.
func (c *nodeCache[K, V]) evict(onEvict func(*node[K, V]) error) error {
	if c.capacity <= 0 {
		return nil
	}
	for c.lru.Len() > c.capacity {
		e := c.lru.Back()
		n := e.Value.(*node[K, V])
		// onEvict may recycle n and reset its id.
		id := n.id
		if err := onEvict(n); err != nil {
			return err
		}
		c.lru.Remove(e)
		delete(c.items, id)
		c.evictions.Add(1)
	}
	return nil
}

// each visits every cached node.
func (c *nodeCache[K, V]) each(fn func(*node[K, V]) error) error {
	for e := c.lru.Front(); e != nil; e = e.Next() {
		if err := fn(e.Value.(*node[K, V])); err != nil {
			return err
		}
	}
	return nil
}
