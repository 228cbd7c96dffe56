package tree

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hupe1980/trident/internal/compress"
	"github.com/hupe1980/trident/internal/fs"
)

const (
	// DefaultMaxElementsPerNode bounds the entries of a node.
	DefaultMaxElementsPerNode = 2048
	// DefaultMaxNodesInCache bounds the nodes kept in memory.
	DefaultMaxNodesInCache = 1000
	// DefaultLeafFactorySize bounds the recycled nodes.
	DefaultLeafFactorySize = DefaultMaxNodesInCache + 10
)

var (
	// ErrReadOnly is returned when mutating a read-only tree.
	ErrReadOnly = errors.New("tree: read-only")
	// ErrNotIncreasing is returned by Append for a key not above the last one.
	ErrNotIncreasing = errors.New("tree: appended keys must be strictly increasing")
)

// Config configures a Tree. A zero Dir keeps the tree in memory.
type Config struct {
	Dir                string
	ReadOnly           bool
	MaxElementsPerNode int
	MaxNodesInCache    int
	NodeMinSize        int
	LeafFactorySize    int
	Compression        compress.Type
	// Concurrent guards every operation with a mutex. Single-threaded
	// users leave it off and take no locks.
	Concurrent bool
	FS         fs.FileSystem
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxElementsPerNode < 2 {
		c.MaxElementsPerNode = DefaultMaxElementsPerNode
	}
	if c.MaxNodesInCache <= 0 {
		c.MaxNodesInCache = DefaultMaxNodesInCache
	}
	c.MaxNodesInCache = max(c.MaxNodesInCache, 2)
	if c.LeafFactorySize <= 0 {
		c.LeafFactorySize = c.MaxNodesInCache + 10
	}
	if c.FS == nil {
		c.FS = fs.Default
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Stats reports the size and cache behaviour of a tree.
type Stats struct {
	Size          int64
	CachedNodes   int
	CacheHits     int64
	CacheMisses   int64
	Evictions     int64
	NodeWrites    int64
	Relocations   int64
	NodesCreated  int64
	NodesReused   int64
	DoubleRelease int64
}

type mode int

const (
	modePut mode = iota
	modeAppend
	modePutOrGet
)

type split[K any] struct {
	key K
	id  int64
}

// Tree is a B+tree from K to V.
type Tree[K, V any] struct {
	cfg Config
	kc  KeyCodec[K]
	vc  ValueCodec[V]

	mu     sync.Mutex
	root   *node[K, V]
	nextID int64
	size   int64

	nm     *nodeManager
	cache  *nodeCache[K, V]
	leaves *leafFactory[K, V]

	hasLast bool
	last    K
}

// Open opens the tree stored in cfg.Dir, or creates it.
func Open[K, V any](cfg Config, kc KeyCodec[K], vc ValueCodec[V]) (*Tree[K, V], error) {
	cfg.defaults()
	t := &Tree[K, V]{
		cfg:    cfg,
		kc:     kc,
		vc:     vc,
		leaves: newLeafFactory[K, V](cfg.LeafFactorySize, 0),
	}
	if cfg.Dir == "" {
		t.cache = newNodeCache[K, V](0)
		t.root = t.leaves.get(0, true)
		t.nextID = 1
		return t, nil
	}
	t.cache = newNodeCache[K, V](cfg.MaxNodesInCache)
	nm, err := openNodeManager(cfg.Dir, cfg.FS, cfg.ReadOnly, cfg.NodeMinSize, cfg.Compression)
	if err != nil {
		return nil, err
	}
	t.nm = nm
	if nm.meta.root < 0 {
		t.root = t.leaves.get(0, true)
		t.root.dirty = true
		t.nextID = 1
		return t, nil
	}
	t.nextID, t.size = nm.meta.nextID, nm.meta.size
	if t.root, err = t.load(nm.meta.root); err != nil {
		nm.close()
		return nil, err
	}
	cfg.Logger.Debug("opened tree", "dir", cfg.Dir, "size", t.size, "nodes", t.nextID)
	return t, nil
}

func (t *Tree[K, V]) lock() {
	if t.cfg.Concurrent {
		t.mu.Lock()
	}
}

func (t *Tree[K, V]) unlock() {
	if t.cfg.Concurrent {
		t.mu.Unlock()
	}
}

func (t *Tree[K, V]) load(id int64) (*node[K, V], error) {
	if t.nm == nil {
		return nil, fmt.Errorf("%w: %d", errNodeNotStored, id)
	}
	b, err := t.nm.read(id)
	if err != nil {
		return nil, err
	}
	n := t.leaves.get(id, false)
	if err := decode(n, b, t.kc, t.vc); err != nil {
		t.leaves.release(n)
		return nil, err
	}
	return n, nil
}

// node returns node id, loading it into the cache on a miss.
func (t *Tree[K, V]) node(id int64) (*node[K, V], error) {
	if id == t.root.id {
		return t.root, nil
	}
	if n, ok := t.cache.get(id); ok {
		return n, nil
	}
	n, err := t.load(id)
	if err != nil {
		return nil, err
	}
	t.cache.put(n)
	return n, nil
}

func (t *Tree[K, V]) newNode(leaf bool) *node[K, V] {
	n := t.leaves.get(t.nextID, leaf)
	t.nextID++
	n.dirty = true
	t.cache.put(n)
	return n
}

func (t *Tree[K, V]) writeBack(n *node[K, V]) error {
	if !n.dirty || t.nm == nil {
		return nil
	}
	if err := t.nm.write(n.id, encode(n, t.kc, t.vc)); err != nil {
		return err
	}
	n.dirty = false
	return nil
}

// evict shrinks the cache. Called at the end of operations only.
func (t *Tree[K, V]) evict() error {
	return t.cache.evict(func(n *node[K, V]) error {
		if err := t.writeBack(n); err != nil {
			return err
		}
		t.leaves.release(n)
		return nil
	})
}

// Put inserts or replaces the value of k.
func (t *Tree[K, V]) Put(k K, v V) error {
	t.lock()
	defer t.unlock()
	_, _, err := t.put(k, v, modePut)
	return err
}

// Append inserts k, which must be above every key inserted so far. Splits
// keep the left node full.
func (t *Tree[K, V]) Append(k K, v V) error {
	t.lock()
	defer t.unlock()
	if t.hasLast && t.kc.Compare(k, t.last) <= 0 {
		return ErrNotIncreasing
	}
	_, _, err := t.put(k, v, modeAppend)
	return err
}

// PutOrGet inserts v unless k is present, in which case the stored value
// is returned with true.
func (t *Tree[K, V]) PutOrGet(k K, v V) (V, bool, error) {
	t.lock()
	defer t.unlock()
	return t.put(k, v, modePutOrGet)
}

func (t *Tree[K, V]) put(k K, v V, m mode) (old V, found bool, err error) {
	if t.cfg.ReadOnly {
		return old, false, ErrReadOnly
	}
	sp, old, found, err := t.insert(t.root, k, v, m)
	if err != nil {
		return old, false, err
	}
	if sp != nil {
		prev := t.root
		t.cache.put(prev)
		root := t.leaves.get(t.nextID, false)
		t.nextID++
		root.keys = append(root.keys, sp.key)
		root.children = append(root.children, prev.id, sp.id)
		root.dirty = true
		t.root = root
	}
	if !found && (!t.hasLast || t.kc.Compare(k, t.last) > 0) {
		t.last, t.hasLast = k, true
	}
	return old, found, t.evict()
}

func (t *Tree[K, V]) splitPoint(n int, m mode) int {
	if m == modeAppend {
		return n - 1
	}
	return t.cfg.MaxElementsPerNode / 2
}

func (t *Tree[K, V]) insert(n *node[K, V], k K, v V, m mode) (*split[K], V, bool, error) {
	var zero V
	if n.leaf {
		i, ok := search(n, t.kc, k)
		if ok {
			old := n.values[i]
			if m != modePutOrGet {
				n.values[i] = v
				n.dirty = true
			}
			return nil, old, true, nil
		}
		n.keys = slices.Insert(n.keys, i, k)
		n.values = slices.Insert(n.values, i, v)
		n.dirty = true
		t.size++
		if len(n.keys) <= t.cfg.MaxElementsPerNode {
			return nil, zero, false, nil
		}
		at := t.splitPoint(len(n.keys), m)
		right := t.newNode(true)
		right.keys = append(right.keys[:0], n.keys[at:]...)
		right.values = append(right.values[:0], n.values[at:]...)
		clear(n.values[at:])
		n.keys, n.values = n.keys[:at], n.values[:at]
		if n.isLast() {
			right.next = right.id
		} else {
			right.next = n.next
		}
		n.next = right.id
		return &split[K]{key: right.keys[0], id: right.id}, zero, false, nil
	}

	ci := childIndex(n, t.kc, k)
	child, err := t.node(n.children[ci])
	if err != nil {
		return nil, zero, false, err
	}
	sp, old, found, err := t.insert(child, k, v, m)
	if err != nil || sp == nil {
		return nil, old, found, err
	}
	n.keys = slices.Insert(n.keys, ci, sp.key)
	n.children = slices.Insert(n.children, ci+1, sp.id)
	n.dirty = true
	if len(n.keys) <= t.cfg.MaxElementsPerNode {
		return nil, zero, false, nil
	}
	at := t.splitPoint(len(n.keys), m)
	right := t.newNode(false)
	sep := n.keys[at]
	right.keys = append(right.keys[:0], n.keys[at+1:]...)
	right.children = append(right.children[:0], n.children[at+1:]...)
	n.keys, n.children = n.keys[:at], n.children[:at+1]
	return &split[K]{key: sep, id: right.id}, zero, false, nil
}

// leafFor descends to the leaf that covers k.
func (t *Tree[K, V]) leafFor(k K) (*node[K, V], error) {
	n := t.root
	for !n.leaf {
		var err error
		if n, err = t.node(n.children[childIndex(n, t.kc, k)]); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Get returns the value of k.
func (t *Tree[K, V]) Get(k K) (V, bool, error) {
	t.lock()
	defer t.unlock()
	var zero V
	n, err := t.leafFor(k)
	if err != nil {
		return zero, false, err
	}
	v, ok := zero, false
	if i, found := search(n, t.kc, k); found {
		v, ok = n.values[i], true
	}
	return v, ok, t.evict()
}

// Len returns the number of keys.
func (t *Tree[K, V]) Len() int64 {
	t.lock()
	defer t.unlock()
	return t.size
}

// Flush writes every dirty node and the node index.
func (t *Tree[K, V]) Flush() error {
	t.lock()
	defer t.unlock()
	return t.flush()
}

func (t *Tree[K, V]) flush() error {
	if t.nm == nil || t.cfg.ReadOnly {
		return nil
	}
	if err := t.cache.each(t.writeBack); err != nil {
		return err
	}
	if err := t.writeBack(t.root); err != nil {
		return err
	}
	return t.nm.flush(meta{root: t.root.id, nextID: t.nextID, size: t.size})
}

// Close flushes the tree and releases its files.
func (t *Tree[K, V]) Close() error {
	t.lock()
	defer t.unlock()
	if t.nm == nil {
		return nil
	}
	err := t.flush()
	if cerr := t.nm.close(); err == nil {
		err = cerr
	}
	t.nm = nil
	return err
}

// Stats returns counters of the tree.
func (t *Tree[K, V]) Stats() Stats {
	t.lock()
	defer t.unlock()
	s := Stats{
		Size:          t.size,
		CachedNodes:   t.cache.len(),
		CacheHits:     t.cache.hits.Load(),
		CacheMisses:   t.cache.misses.Load(),
		Evictions:     t.cache.evictions.Load(),
		NodesCreated:  t.leaves.created,
		NodesReused:   t.leaves.reused,
		DoubleRelease: t.leaves.doubleReleases,
	}
	if t.nm != nil {
		s.NodeWrites, s.Relocations = t.nm.writes, t.nm.relocations
	}
	return s
}
