package tables

import (
	"github.com/hupe1980/trident/internal/binenc"
)

// oldHeader parses [flags][index offset slot] and the optional index.
func oldHeader(s Strategy, data []byte, headerSize int) (flags byte, end int, idx *FileIndex, next int, err error) {
	if len(data) < headerSize {
		return 0, 0, nil, 0, corrupt(s, "header too short")
	}
	flags = data[0]
	idxOff, _ := binenc.ReadVLong2(data, 1)
	end = len(data)
	if idxOff > 0 {
		if idxOff < int64(headerSize) || idxOff > int64(len(data)) {
			return 0, 0, nil, 0, corrupt(s, "index offset %d out of range", idxOff)
		}
		end = int(idxOff)
		idx, next, err = UnmarshalFileIndex(data, end)
		if err != nil {
			return 0, 0, nil, 0, corrupt(s, "%v", err)
		}
	}
	return flags, end, idx, next, nil
}

// rowCodec reads [flags][index slot] rows of varint pairs and a FileIndex.
type rowCodec struct {
	data          []byte
	end           int
	idx           *FileIndex
	first, second valueCodec
	delta         bool
}

func (r *rowCodec) open(s Strategy, data []byte) (err error) {
	r.data = data
	_, r.end, r.idx, _, err = oldHeader(s, data, oldHeaderSize)
	r.first, r.second = codecs(s)
	r.delta = s.Delta() && !s.Raw()
	return err
}

func (r *rowCodec) start() cursor       { return cursor{pos: oldHeaderSize} }
func (r *rowCodec) more(c *cursor) bool { return c.pos < r.end }
func (r *rowCodec) size() int64         { return -1 }

func (r *rowCodec) read(c *cursor) (int64, int64) {
	v1, p := readValue(r.data, c.pos, r.first)
	if r.delta {
		v1 += c.base1
		c.base1 = v1
	}
	v2, p := readValue(r.data, p, r.second)
	c.pos = p
	return v1, v2
}

func (r *rowCodec) seek(c *cursor, c1, c2 int64) {
	if r.idx != nil {
		if i := r.idx.Idx(c1); i >= 0 && int(r.idx.Pos(i)) > c.pos {
			c.pos = int(r.idx.Pos(i))
			c.base1 = r.idx.Key(i)
		}
	}
	linearSeek(r, c, c1, c2)
}

// clusterCodec reads groups [t1][size][t2...] where size is the byte length
// of the t2 block and t2 values are delta coded within the group.
type clusterCodec struct {
	data          []byte
	end           int
	idx           *FileIndex
	first, second valueCodec
	delta         bool
	raw           bool
	countWidth    int
}

func (r *clusterCodec) open(s Strategy, data []byte) (err error) {
	r.data = data
	var flags byte
	flags, r.end, r.idx, _, err = oldHeader(s, data, oldHeaderSize)
	if err != nil {
		return err
	}
	r.first, r.second = codecs(s)
	r.raw = s.Raw()
	r.delta = s.Delta() && !r.raw
	switch {
	case flags&clusterCount1 != 0:
		r.countWidth = 1
	case flags&clusterCount4 != 0:
		r.countWidth = 4
	default:
		r.countWidth = binenc.MaxVLong2Len
	}
	return nil
}

func (r *clusterCodec) start() cursor { return cursor{pos: oldHeaderSize} }
func (r *clusterCodec) size() int64   { return -1 }

func (r *clusterCodec) more(c *cursor) bool { return c.pos < int(c.left) || c.pos < r.end }

// header decodes the group header at pos given the previous group term.
func (r *clusterCodec) header(pos int, base int64) (t1 int64, size int64, data int) {
	t1, p := readValue(r.data, pos, r.first)
	if r.delta {
		t1 += base
	}
	if r.countWidth == binenc.MaxVLong2Len {
		size, _ = binenc.ReadVLong2(r.data, p)
	} else {
		size = binenc.ReadN(r.data, p, r.countWidth)
	}
	return t1, size, p + r.countWidth
}

func (r *clusterCodec) loadGroup(c *cursor) {
	t1, size, p := r.header(c.pos, c.base1)
	c.base1 = t1
	c.group = t1
	c.pos = p
	c.pos2 = p
	c.left = int64(p) + size
	c.base2 = 0
}

func (r *clusterCodec) read(c *cursor) (int64, int64) {
	if c.pos >= int(c.left) {
		r.loadGroup(c)
	}
	d, p := readValue(r.data, c.pos, r.second)
	c.pos = p
	if r.raw {
		c.base2 = d
	} else {
		c.base2 += d
	}
	return c.group, c.base2
}

func (r *clusterCodec) seekInGroup(c *cursor, c1, c2 int64) {
	var sub *FileIndex
	if r.idx != nil && !r.raw {
		sub = r.idx.Additional(c1)
	}
	if sub != nil {
		if i := sub.Idx(c2); i >= 0 && c.pos2+int(sub.Pos(i)) > c.pos {
			c.pos = c.pos2 + int(sub.Pos(i))
			c.base2 = sub.Key(i)
		}
	}
	for c.pos < int(c.left) {
		save := *c
		_, v2 := r.read(c)
		if v2 >= c2 {
			*c = save
			return
		}
	}
}

func (r *clusterCodec) seek(c *cursor, c1, c2 int64) {
	if c.pos < int(c.left) {
		if c.group > c1 {
			return
		}
		if c.group == c1 {
			r.seekInGroup(c, c1, c2)
			if c.pos < int(c.left) {
				return
			}
		}
		c.pos = int(c.left)
	}
	if r.idx != nil {
		if i := r.idx.Idx(c1); i >= 0 && int(r.idx.Pos(i)) > c.pos {
			c.pos = int(r.idx.Pos(i))
			c.base1 = r.idx.Key(i)
		}
	}
	for c.pos < r.end {
		t1, size, p := r.header(c.pos, c.base1)
		if t1 < c1 {
			c.base1 = t1
			c.pos = p + int(size)
			continue
		}
		r.loadGroup(c)
		if t1 == c1 {
			r.seekInGroup(c, c1, c2)
			if c.pos >= int(c.left) {
				continue
			}
		}
		return
	}
}

// columnCodec reads [flags][index slot][t2 offset slot][n slot], the first
// column, the second column and two aligned FileIndexes.
type columnCodec struct {
	data          []byte
	end1, end2    int
	n             int64
	idx1, idx2    *FileIndex
	first, second valueCodec
	delta         bool
}

func (r *columnCodec) open(s Strategy, data []byte) error {
	r.data = data
	_, end, idx, next, err := oldHeader(s, data, columnHeaderSize)
	if err != nil {
		return err
	}
	t2Off, _ := binenc.ReadVLong2(data, oldHeaderSize)
	r.n, _ = binenc.ReadVLong2(data, oldHeaderSize+binenc.MaxVLong2Len)
	if t2Off < columnHeaderSize || int(t2Off) > end {
		return corrupt(s, "second column offset %d out of range", t2Off)
	}
	r.end1, r.end2 = int(t2Off), end
	r.idx1, r.idx2 = idx, nil
	if idx != nil {
		if r.idx2, _, err = UnmarshalFileIndex(data, next); err != nil {
			return corrupt(s, "%v", err)
		}
		if r.idx2.Len() != r.idx1.Len() {
			return corrupt(s, "column indexes are not aligned")
		}
	}
	r.first, r.second = codecs(s)
	r.delta = s.Delta() && !s.Raw()
	return nil
}

func (r *columnCodec) start() cursor {
	return cursor{pos: columnHeaderSize, pos2: r.end1}
}

func (r *columnCodec) more(c *cursor) bool { return c.row < r.n }
func (r *columnCodec) size() int64         { return r.n }

func (r *columnCodec) read(c *cursor) (int64, int64) {
	v1, p := readValue(r.data, c.pos, r.first)
	if r.delta {
		v1 += c.base1
		c.base1 = v1
	}
	c.pos = p
	v2, p2 := readValue(r.data, c.pos2, r.second)
	c.pos2 = p2
	c.row++
	return v1, v2
}

func (r *columnCodec) seek(c *cursor, c1, c2 int64) {
	if r.idx1 != nil {
		if i := r.idx1.Idx(c1); i >= 0 && r.idx2.Key(i) > c.row {
			c.pos = int(r.idx1.Pos(i))
			c.pos2 = int(r.idx2.Pos(i))
			c.base1 = r.idx1.Key(i)
			c.row = r.idx2.Key(i)
		}
	}
	linearSeek(r, c, c1, c2)
}
