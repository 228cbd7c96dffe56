package tree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/itr"
)

var errCorruptNode = errors.New("tree: corrupt node")

// node is a leaf or an intermediate node. An intermediate node with n keys
// has n+1 children; child i holds the keys below keys[i]. A leaf whose
// next field equals its own id is the last leaf.
type node[K, V any] struct {
	id       int64
	leaf     bool
	keys     []K
	values   []V
	children []int64
	next     int64

	dirty bool
	owner itr.Ownership
	gen   uint64
}

func (n *node[K, V]) isLast() bool { return n.next == n.id }

// search returns the position of k in a leaf and whether it is present.
func search[K, V any](n *node[K, V], kc KeyCodec[K], k K) (int, bool) {
	i := sort.Search(len(n.keys), func(i int) bool { return kc.Compare(n.keys[i], k) >= 0 })
	return i, i < len(n.keys) && kc.Compare(n.keys[i], k) == 0
}

// childIndex returns the child of an intermediate node that covers k.
func childIndex[K, V any](n *node[K, V], kc KeyCodec[K], k K) int {
	return sort.Search(len(n.keys), func(i int) bool { return kc.Compare(n.keys[i], k) > 0 })
}

// encode serializes n as [leaf 1][n 4] followed, for leaves, by
// [next 8] and the entries and, for intermediate nodes, by the keys and
// [child 8] ids.
func encode[K, V any](n *node[K, V], kc KeyCodec[K], vc ValueCodec[V]) []byte {
	var leaf byte
	if n.leaf {
		leaf = 1
	}
	out := []byte{leaf}
	out = binenc.AppendN(out, int64(len(n.keys)), 4)
	if n.leaf {
		out = binenc.AppendN(out, n.next, 8)
		for i := range n.keys {
			out = kc.Append(out, n.keys[i])
			out = vc.Append(out, n.values[i])
		}
		return out
	}
	for _, k := range n.keys {
		out = kc.Append(out, k)
	}
	for _, c := range n.children {
		out = binenc.AppendN(out, c, 8)
	}
	return out
}

// decode fills n from b. Slices of n are reused.
func decode[K, V any](n *node[K, V], b []byte, kc KeyCodec[K], vc ValueCodec[V]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: node %d: %v", errCorruptNode, n.id, r)
		}
	}()
	if len(b) < 5 {
		return fmt.Errorf("%w: node %d: %d bytes", errCorruptNode, n.id, len(b))
	}
	n.leaf = b[0] == 1
	cnt := int(binenc.Read4(b, 1))
	off := 5
	n.keys = n.keys[:0]
	n.values = n.values[:0]
	n.children = n.children[:0]
	if n.leaf {
		n.next = binenc.Read8(b, off)
		off += 8
		for i := 0; i < cnt; i++ {
			var k K
			var v V
			k, off = kc.Read(b, off)
			v, off = vc.Read(b, off)
			n.keys = append(n.keys, k)
			n.values = append(n.values, v)
		}
		return nil
	}
	for i := 0; i < cnt; i++ {
		var k K
		k, off = kc.Read(b, off)
		n.keys = append(n.keys, k)
	}
	for i := 0; i <= cnt; i++ {
		n.children = append(n.children, binenc.Read8(b, off))
		off += 8
	}
	return nil
}
