// Package flat stores the coordinates of a tree with dense integer keys as
// fixed-size little-endian records addressed by key.
package flat

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/trident/internal/fs"
	"github.com/hupe1980/trident/internal/mmap"
	"github.com/hupe1980/trident/internal/perm"
	"github.com/hupe1980/trident/internal/tree"
)

const (
	// FullRecordSize holds the key and the tables of all six permutations.
	FullRecordSize = 5 + 6*slotSize
	// GraphRecordSize holds the key and the SOP and OSP tables.
	GraphRecordSize = 5 + 2*slotSize

	slotSize = 13
)

var fullOrder = [...]int{perm.SOP, perm.OSP, perm.SPO, perm.OPS, perm.POS, perm.PSO}

// ErrCorrupt is returned for a file whose size is not a multiple of the
// record size.
var ErrCorrupt = errors.New("flat: corrupt file")

func recordSize(graph bool) int {
	if graph {
		return GraphRecordSize
	}
	return FullRecordSize
}

func order(graph bool) []int {
	if graph {
		return fullOrder[:2]
	}
	return fullOrder[:]
}

func putLE(b []byte, v int64, n int) {
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func readLE(b []byte, n int) int64 {
	var v int64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | int64(b[i])
	}
	return v
}

// encode writes the record of key into rec. Slots are
// [nElements 5][strategy 1][file 2][mark 5].
func encode(rec []byte, key int64, c *tree.Coordinates, graph bool) {
	clear(rec)
	putLE(rec, key, 5)
	if c == nil {
		return
	}
	for i, p := range order(graph) {
		t, ok := c.Get(p)
		if !ok {
			continue
		}
		s := rec[5+i*slotSize:]
		putLE(s, t.NElements, 5)
		s[5] = t.Strategy
		putLE(s[6:], int64(t.File), 2)
		putLE(s[8:], t.Mark, 5)
	}
}

// Write stores the entries of t under path. Keys missing from the tree
// get a record without tables.
func Write(fsys fs.FileSystem, path string, t *tree.Tree[int64, tree.Coordinates], graph bool) (n int64, err error) {
	if fsys == nil {
		fsys = fs.Default
	}
	it, err := t.Iterator()
	if err != nil {
		return 0, err
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	f, err := fsys.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			f.Close()
			_ = fsys.Remove(tmp)
		}
	}()
	w := bufio.NewWriter(f)
	rec := make([]byte, recordSize(graph))
	next := int64(0)
	for it.HasNext() {
		it.Next()
		k, c := it.Key(), it.Value()
		if k < next {
			return 0, fmt.Errorf("flat: key %d out of order", k)
		}
		for ; next < k; next++ {
			encode(rec, next, nil, graph)
			if _, err := w.Write(rec); err != nil {
				return 0, err
			}
		}
		encode(rec, k, &c, graph)
		if _, err := w.Write(rec); err != nil {
			return 0, err
		}
		next++
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return next, fsys.Rename(tmp, path)
}

// Tree is a read-only flat snapshot.
type Tree struct {
	m     *mmap.Mapping
	data  []byte
	graph bool
	size  int
}

// Open maps the snapshot at path.
func Open(path string, graph bool) (*Tree, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	size := recordSize(graph)
	if m.Size()%size != 0 {
		m.Close()
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, m.Size())
	}
	_ = m.AdviseRandom()
	return &Tree{m: m, data: m.Bytes(), graph: graph, size: size}, nil
}

// Len returns the number of records.
func (t *Tree) Len() int64 { return int64(len(t.data) / t.size) }

// Get returns the coordinates of k. A key whose record holds no table is
// reported as absent.
func (t *Tree) Get(k int64) (tree.Coordinates, bool) {
	var c tree.Coordinates
	if k < 0 || k >= t.Len() {
		return c, false
	}
	rec := t.data[int(k)*t.size:]
	for i, p := range order(t.graph) {
		s := rec[5+i*slotSize:]
		n := readLE(s, 5)
		if n == 0 {
			continue
		}
		c.Set(p, tree.Table{
			NElements: n,
			Strategy:  s[5],
			File:      uint16(readLE(s[6:], 2)),
			Mark:      readLE(s[8:], 5),
		})
	}
	return c, c.Active != 0
}

// Close unmaps the snapshot.
func (t *Tree) Close() error { return t.m.Close() }
