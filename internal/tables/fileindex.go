package tables

import (
	"sort"

	"github.com/hupe1980/trident/internal/binenc"
)

// FileIndex holds checkpoints into a variable-length table. Each entry
// records the value preceding the checkpoint, which is the delta base at
// that point, and the position of the checkpoint relative to the start of
// the indexed region. Cluster tables attach an additional index to groups
// larger than FirstIndexSize.
type FileIndex struct {
	keys       []int64
	positions  []int64
	addKeys    []int64
	additional []*FileIndex
}

// Add appends a checkpoint. Keys must not decrease.
func (f *FileIndex) Add(key, pos int64) {
	f.keys = append(f.keys, key)
	f.positions = append(f.positions, pos)
}

// AddAdditional attaches idx to the group with first term key.
func (f *FileIndex) AddAdditional(key int64, idx *FileIndex) {
	f.addKeys = append(f.addKeys, key)
	f.additional = append(f.additional, idx)
}

// Len returns the number of checkpoints.
func (f *FileIndex) Len() int { return len(f.keys) }

// IsEmpty reports whether the index holds no checkpoint and no additional index.
func (f *FileIndex) IsEmpty() bool { return len(f.keys) == 0 && len(f.addKeys) == 0 }

// Key returns the delta base of checkpoint i.
func (f *FileIndex) Key(i int) int64 { return f.keys[i] }

// Pos returns the relative position of checkpoint i.
func (f *FileIndex) Pos(i int) int64 { return f.positions[i] }

// Idx returns the last checkpoint whose key is below target, or -1. Rows
// at or after that checkpoint are the first that may hold target.
func (f *FileIndex) Idx(target int64) int {
	return sort.Search(len(f.keys), func(i int) bool { return f.keys[i] >= target }) - 1
}

// Additional returns the index attached to the group key, or nil.
func (f *FileIndex) Additional(key int64) *FileIndex {
	i := sort.Search(len(f.addKeys), func(i int) bool { return f.addKeys[i] >= key })
	if i < len(f.addKeys) && f.addKeys[i] == key {
		return f.additional[i]
	}
	return nil
}

// AppendTo serializes f.
func (f *FileIndex) AppendTo(dst []byte) []byte {
	dst = binenc.AppendVLong(dst, int64(len(f.keys)))
	for i := range f.keys {
		dst = binenc.AppendVLong(dst, f.keys[i])
		dst = binenc.AppendVLong(dst, f.positions[i])
	}
	dst = binenc.AppendVLong(dst, int64(len(f.addKeys)))
	for i := range f.addKeys {
		dst = binenc.AppendVLong(dst, f.addKeys[i])
		dst = f.additional[i].AppendTo(dst)
	}
	return dst
}

// UnmarshalFileIndex decodes an index at off and returns it with the
// offset just past it.
func UnmarshalFileIndex(b []byte, off int) (idx *FileIndex, next int, err error) {
	defer func() {
		if r := recover(); r != nil {
			idx, next, err = nil, off, errTruncatedIndex
		}
	}()
	idx = &FileIndex{}
	n, off := binenc.ReadVLong(b, off)
	if n < 0 || n > int64(len(b)) {
		return nil, off, errTruncatedIndex
	}
	idx.keys = make([]int64, n)
	idx.positions = make([]int64, n)
	for i := range idx.keys {
		idx.keys[i], off = binenc.ReadVLong(b, off)
		idx.positions[i], off = binenc.ReadVLong(b, off)
	}
	na, off := binenc.ReadVLong(b, off)
	if na < 0 || na > int64(len(b)) {
		return nil, off, errTruncatedIndex
	}
	for i := int64(0); i < na; i++ {
		var k int64
		k, off = binenc.ReadVLong(b, off)
		sub, o, err := UnmarshalFileIndex(b, off)
		if err != nil {
			return nil, o, err
		}
		off = o
		idx.AddAdditional(k, sub)
	}
	return idx, off, nil
}
