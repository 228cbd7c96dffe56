package tables

import (
	"sort"

	"github.com/hupe1980/trident/internal/binenc"
)

// newRowCodec reads fixed-width (t1, t2) rows.
type newRowCodec struct {
	data   []byte
	w1, w2 int
	w      int
	n      int64
}

func (r *newRowCodec) open(s Strategy, data []byte) error {
	r.data = data
	r.w1, r.w2 = s.Width1(), s.Width2()
	r.w = r.w1 + r.w2
	if len(data)%r.w != 0 {
		return corrupt(s, "size %d is not a multiple of the row width %d", len(data), r.w)
	}
	r.n = int64(len(data) / r.w)
	return nil
}

func (r *newRowCodec) start() cursor       { return cursor{} }
func (r *newRowCodec) more(c *cursor) bool { return c.row < r.n }
func (r *newRowCodec) size() int64         { return r.n }
func (r *newRowCodec) at(i int64) (int64, int64) {
	off := int(i) * r.w
	return binenc.ReadN(r.data, off, r.w1), binenc.ReadN(r.data, off+r.w1, r.w2)
}

func (r *newRowCodec) read(c *cursor) (int64, int64) {
	v1, v2 := r.at(c.row)
	c.row++
	return v1, v2
}

func (r *newRowCodec) seek(c *cursor, c1, c2 int64) {
	if r.n-c.row <= BinarySearchThreshold {
		linearSeek(r, c, c1, c2)
		return
	}
	from := c.row
	c.row = from + int64(sort.Search(int(r.n-from), func(i int) bool {
		v1, v2 := r.at(from + int64(i))
		return !less(v1, v2, c1, c2)
	}))
}

// newClusterCodec reads groups [t1][count][t2...] of fixed width.
type newClusterCodec struct {
	data       []byte
	w1, w2, wc int
	n          int64
}

func (r *newClusterCodec) open(s Strategy, data []byte) error {
	r.data = data
	r.w1, r.w2, r.wc = s.Width1(), s.Width2(), s.CountWidth()
	r.n = 0
	for pos := 0; pos < len(data); {
		if pos+r.w1+r.wc > len(data) {
			return corrupt(s, "truncated group header at %d", pos)
		}
		cnt := binenc.ReadN(data, pos+r.w1, r.wc)
		pos += r.w1 + r.wc + int(cnt)*r.w2
		if cnt == 0 || pos > len(data) {
			return corrupt(s, "group at %d exceeds table", pos)
		}
		r.n += cnt
	}
	return nil
}

func (r *newClusterCodec) start() cursor       { return cursor{} }
func (r *newClusterCodec) size() int64         { return r.n }
func (r *newClusterCodec) more(c *cursor) bool { return c.left > 0 || c.pos < len(r.data) }

func (r *newClusterCodec) loadGroup(c *cursor) {
	c.group = binenc.ReadN(r.data, c.pos, r.w1)
	c.left = binenc.ReadN(r.data, c.pos+r.w1, r.wc)
	c.pos += r.w1 + r.wc
}

func (r *newClusterCodec) read(c *cursor) (int64, int64) {
	if c.left == 0 {
		r.loadGroup(c)
	}
	v2 := binenc.ReadN(r.data, c.pos, r.w2)
	c.pos += r.w2
	c.left--
	return c.group, v2
}

func (r *newClusterCodec) seek(c *cursor, c1, c2 int64) {
	for {
		if c.left > 0 {
			if c.group > c1 {
				return
			}
			if c.group == c1 {
				base := c.pos
				idx := sort.Search(int(c.left), func(i int) bool {
					return binenc.ReadN(r.data, base+i*r.w2, r.w2) >= c2
				})
				c.pos += idx * r.w2
				c.left -= int64(idx)
				if c.left > 0 {
					return
				}
				continue
			}
			c.pos += int(c.left) * r.w2
			c.left = 0
		}
		if c.pos >= len(r.data) {
			return
		}
		t1 := binenc.ReadN(r.data, c.pos, r.w1)
		if t1 < c1 {
			cnt := binenc.ReadN(r.data, c.pos+r.w1, r.wc)
			c.pos += r.w1 + r.wc + int(cnt)*r.w2
			continue
		}
		r.loadGroup(c)
	}
}

func (r *newClusterCodec) skipRun(c *cursor, v1 int64) int64 {
	if c.left == 0 || c.group != v1 {
		return 0
	}
	n := c.left
	c.pos += int(n) * r.w2
	c.left = 0
	return n
}

// newColumnCodec reads a header, fixed-width entries [t1][count][start]
// and a fixed-width second column.
type newColumnCodec struct {
	data           []byte
	bf, bs, bc, bo int
	ew             int
	nFirst         int64
	nSecond        int64
	entries        int
	second         int
}

func (r *newColumnCodec) open(s Strategy, data []byte) error {
	r.data = data
	if len(data) < 4 {
		return corrupt(s, "column header too short")
	}
	r.bf, r.bs = int(data[0]>>3), int(data[0]&7)
	r.bc, r.bo = int(data[1]>>3), int(data[1]&7)
	if r.bf == 0 || r.bs == 0 || r.bc == 0 || r.bo == 0 || r.bf > 7 || r.bc > 7 {
		return corrupt(s, "invalid column widths %d/%d/%d/%d", r.bf, r.bs, r.bc, r.bo)
	}
	off := 2
	r.nFirst, off = binenc.ReadVLong2(data, off)
	r.nSecond, off = binenc.ReadVLong2(data, off)
	r.ew = r.bf + r.bc + r.bo
	r.entries = off
	r.second = off + int(r.nFirst)*r.ew
	if int64(r.second)+r.nSecond*int64(r.bs) != int64(len(data)) {
		return corrupt(s, "column sizes do not match table length %d", len(data))
	}
	return nil
}

func (r *newColumnCodec) start() cursor { return cursor{} }
func (r *newColumnCodec) size() int64   { return r.nSecond }

func (r *newColumnCodec) more(c *cursor) bool { return c.left > 0 || c.row < r.nFirst }

func (r *newColumnCodec) firstAt(i int64) int64 {
	return binenc.ReadN(r.data, r.entries+int(i)*r.ew, r.bf)
}

func (r *newColumnCodec) secondAt(i int) int64 {
	return binenc.ReadN(r.data, r.second+i*r.bs, r.bs)
}

func (r *newColumnCodec) loadEntry(c *cursor) {
	e := r.entries + int(c.row)*r.ew
	c.group = binenc.ReadN(r.data, e, r.bf)
	c.left = binenc.ReadN(r.data, e+r.bf, r.bc)
	c.pos2 = int(binenc.ReadN(r.data, e+r.bf+r.bc, r.bo))
	c.row++
}

func (r *newColumnCodec) read(c *cursor) (int64, int64) {
	if c.left == 0 {
		r.loadEntry(c)
	}
	v2 := r.secondAt(c.pos2)
	c.pos2++
	c.left--
	return c.group, v2
}

func (r *newColumnCodec) seekInGroup(c *cursor, c2 int64) {
	base := c.pos2
	idx := sort.Search(int(c.left), func(i int) bool { return r.secondAt(base+i) >= c2 })
	c.pos2 += idx
	c.left -= int64(idx)
}

func (r *newColumnCodec) seek(c *cursor, c1, c2 int64) {
	if c.left > 0 {
		if c.group > c1 {
			return
		}
		if c.group == c1 {
			r.seekInGroup(c, c2)
			if c.left > 0 {
				return
			}
		}
		c.left = 0
	}
	from := c.row
	j := from + int64(sort.Search(int(r.nFirst-from), func(i int) bool {
		return r.firstAt(from+int64(i)) >= c1
	}))
	c.row = j
	if j >= r.nFirst {
		return
	}
	r.loadEntry(c)
	if c.group == c1 {
		r.seekInGroup(c, c2)
	}
}

func (r *newColumnCodec) skipRun(c *cursor, v1 int64) int64 {
	if c.left == 0 || c.group != v1 {
		return 0
	}
	n := c.left
	c.pos2 += int(n)
	c.left = 0
	return n
}
