package tables

import (
	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/itr"
)

// flushSize is the buffered byte count after which inserters hand their
// scratch buffer to the writer.
const flushSize = 64 << 10

type rowInserter struct {
	strat Strategy
	w     Writer
	start int64
	n     int64
	prev  int64
	since int
	idx   FileIndex
	buf   []byte
}

func (r *rowInserter) Strategy() Strategy { return r.strat }

func (r *rowInserter) StartAppend(w Writer) error {
	r.w, r.n, r.prev, r.since = w, 0, 0, 0
	r.idx = FileIndex{}
	r.buf = r.buf[:0]
	return nil
}

func (r *rowInserter) Append(t1, t2 int64) error {
	if r.n == 0 {
		pos, err := r.w.ReserveBytes(oldHeaderSize)
		if err != nil {
			return err
		}
		r.start = pos
	} else if r.since >= FirstIndexSize && t1 != r.prev {
		r.idx.Add(r.prev, r.w.Size()-r.start)
		r.since = 0
	}
	first, second := codecs(r.strat)
	v := t1
	if r.strat.Delta() && !r.strat.Raw() {
		v = t1 - r.prev
	}
	var err error
	r.buf = r.buf[:0]
	if r.buf, err = appendValue(r.buf, v, first); err != nil {
		return err
	}
	if r.buf, err = appendValue(r.buf, t2, second); err != nil {
		return err
	}
	if _, err := r.w.Append(r.buf); err != nil {
		return err
	}
	r.prev = t1
	r.n++
	r.since++
	return nil
}

func (r *rowInserter) StopAppend() error {
	if r.n == 0 || r.idx.IsEmpty() {
		return nil
	}
	return writeIndexes(r.w, r.start, &r.idx)
}

// writeIndexes appends the serialized indexes and backpatches the index
// offset slot of the table at start.
func writeIndexes(w Writer, start int64, idx ...*FileIndex) error {
	off := w.Size() - start
	var buf []byte
	for _, i := range idx {
		buf = i.AppendTo(buf)
	}
	if _, err := w.Append(buf); err != nil {
		return err
	}
	return w.OverwriteVLong2At(start+1, off)
}

type clusterInserter struct {
	strat         Strategy
	first, second valueCodec
	w             Writer
	start         int64
	buffered      []itr.Pair
	streaming     bool

	inGroup   bool
	group     int64
	prevGroup int64
	slot      int64
	dataStart int64
	prevT2    int64
	elems     int
	groups    int
	sub       *FileIndex
	idx       FileIndex
	buf       []byte
}

func (c *clusterInserter) Strategy() Strategy { return c.strat }

func (c *clusterInserter) StartAppend(w Writer) error {
	c.w = w
	c.first, c.second = codecs(c.strat)
	c.buffered = c.buffered[:0]
	c.streaming, c.inGroup = false, false
	c.prevGroup, c.groups = 0, 0
	c.idx = FileIndex{}
	return nil
}

func (c *clusterInserter) Append(t1, t2 int64) error {
	if c.streaming {
		return c.stream(t1, t2)
	}
	c.buffered = append(c.buffered, itr.Pair{V1: t1, V2: t2})
	if len(c.buffered) <= smallGroupLimit {
		return nil
	}
	pos, err := c.w.ReserveBytes(oldHeaderSize)
	if err != nil {
		return err
	}
	c.start = pos
	c.streaming = true
	for _, p := range c.buffered {
		if err := c.stream(p.V1, p.V2); err != nil {
			return err
		}
	}
	c.buffered = c.buffered[:0]
	return nil
}

func (c *clusterInserter) delta1(t1 int64) int64 {
	if c.strat.Delta() && !c.strat.Raw() {
		return t1 - c.prevGroup
	}
	return t1
}

func (c *clusterInserter) delta2(t2, prev int64) int64 {
	if c.strat.Raw() {
		return t2
	}
	return t2 - prev
}

func (c *clusterInserter) stream(t1, t2 int64) error {
	if !c.inGroup || t1 != c.group {
		if c.inGroup {
			if err := c.closeGroup(); err != nil {
				return err
			}
		}
		if err := c.openGroup(t1); err != nil {
			return err
		}
	}
	if c.elems > 0 && c.elems%FirstIndexSize == 0 && !c.strat.Raw() {
		if c.sub == nil {
			c.sub = &FileIndex{}
		}
		c.sub.Add(c.prevT2, c.w.Size()-c.dataStart)
	}
	var err error
	if c.buf, err = appendValue(c.buf[:0], c.delta2(t2, c.prevT2), c.second); err != nil {
		return err
	}
	if _, err := c.w.Append(c.buf); err != nil {
		return err
	}
	c.prevT2 = t2
	c.elems++
	return nil
}

func (c *clusterInserter) openGroup(t1 int64) error {
	if c.groups >= FirstIndexSize {
		c.idx.Add(c.prevGroup, c.w.Size()-c.start)
		c.groups = 0
	}
	var err error
	if c.buf, err = appendValue(c.buf[:0], c.delta1(t1), c.first); err != nil {
		return err
	}
	if _, err := c.w.Append(c.buf); err != nil {
		return err
	}
	if c.slot, err = c.w.ReserveBytes(binenc.MaxVLong2Len); err != nil {
		return err
	}
	c.dataStart = c.w.Size()
	c.group, c.inGroup = t1, true
	c.elems, c.prevT2, c.sub = 0, 0, nil
	return nil
}

func (c *clusterInserter) closeGroup() error {
	if err := c.w.OverwriteVLong2At(c.slot, c.w.Size()-c.dataStart); err != nil {
		return err
	}
	if c.sub != nil {
		c.idx.AddAdditional(c.group, c.sub)
	}
	c.prevGroup = c.group
	c.groups++
	c.inGroup = false
	return nil
}

func (c *clusterInserter) StopAppend() error {
	if c.streaming {
		if c.inGroup {
			if err := c.closeGroup(); err != nil {
				return err
			}
		}
		if c.idx.IsEmpty() {
			return nil
		}
		return writeIndexes(c.w, c.start, &c.idx)
	}
	if len(c.buffered) == 0 {
		return nil
	}
	return c.writeSmall()
}

type smallGroup struct {
	t1    int64
	block []byte
	sub   *FileIndex
}

// writeSmall writes a buffered table with 1 or 4 byte group sizes.
func (c *clusterInserter) writeSmall() error {
	var groups []smallGroup
	maxBlock := 0
	for i := 0; i < len(c.buffered); {
		g := smallGroup{t1: c.buffered[i].V1}
		prev := int64(0)
		n := 0
		for ; i < len(c.buffered) && c.buffered[i].V1 == g.t1; i++ {
			if n > 0 && n%FirstIndexSize == 0 && !c.strat.Raw() {
				if g.sub == nil {
					g.sub = &FileIndex{}
				}
				g.sub.Add(prev, int64(len(g.block)))
			}
			var err error
			if g.block, err = appendValue(g.block, c.delta2(c.buffered[i].V2, prev), c.second); err != nil {
				return err
			}
			prev = c.buffered[i].V2
			n++
		}
		maxBlock = max(maxBlock, len(g.block))
		groups = append(groups, g)
	}

	flags, width := byte(clusterCount1), 1
	if maxBlock > 255 {
		flags, width = clusterCount4, 4
	}
	out := make([]byte, oldHeaderSize, oldHeaderSize+len(c.buffered)*4)
	out[0] = flags
	var idx FileIndex
	prevGroup := int64(0)
	for gi, g := range groups {
		if gi > 0 && gi%FirstIndexSize == 0 {
			idx.Add(prevGroup, int64(len(out)))
		}
		var err error
		v := g.t1
		if c.strat.Delta() && !c.strat.Raw() {
			v = g.t1 - prevGroup
		}
		if out, err = appendValue(out, v, c.first); err != nil {
			return err
		}
		out = binenc.AppendN(out, int64(len(g.block)), width)
		out = append(out, g.block...)
		if g.sub != nil {
			idx.AddAdditional(g.t1, g.sub)
		}
		prevGroup = g.t1
	}
	if !idx.IsEmpty() {
		off := int64(len(out))
		out = idx.AppendTo(out)
		if err := binenc.PutVLong2Fixed(out, 1, off, binenc.MaxVLong2Len); err != nil {
			return err
		}
	}
	_, err := c.w.Append(out)
	return err
}

type columnInserter struct {
	strat      Strategy
	opts       InserterOptions
	w          Writer
	col1, col2 *spillList
}

func (c *columnInserter) Strategy() Strategy { return c.strat }

func (c *columnInserter) StartAppend(w Writer) error {
	c.w = w
	if c.col1 != nil {
		c.col1.discard()
		c.col2.discard()
	}
	c.col1 = newSpillList(c.opts, "column1-*")
	c.col2 = newSpillList(c.opts, "column2-*")
	return nil
}

func (c *columnInserter) Append(t1, t2 int64) error {
	if err := c.col1.add(t1); err != nil {
		return err
	}
	return c.col2.add(t2)
}

// bufferedWriter batches small appends and tracks the logical size.
type bufferedWriter struct {
	w   Writer
	buf []byte
}

func (b *bufferedWriter) size() int64 { return b.w.Size() + int64(len(b.buf)) }

func (b *bufferedWriter) flush(force bool) error {
	if len(b.buf) == 0 || (!force && len(b.buf) < flushSize) {
		return nil
	}
	_, err := b.w.Append(b.buf)
	b.buf = b.buf[:0]
	return err
}

func (c *columnInserter) StopAppend() error {
	n := c.col1.len()
	if n == 0 {
		return nil
	}
	defer func() {
		c.col1.discard()
		c.col2.discard()
	}()
	start, err := c.w.ReserveBytes(columnHeaderSize)
	if err != nil {
		return err
	}
	first, second := codecs(c.strat)
	delta := c.strat.Delta() && !c.strat.Raw()
	bw := &bufferedWriter{w: c.w}

	var idx1, idx2 FileIndex
	var checkpoints []int64
	var row int64
	prev := int64(0)
	since := 0
	err = c.col1.each(func(t1 int64) error {
		if since >= FirstIndexSize && t1 != prev {
			idx1.Add(prev, bw.size()-start)
			checkpoints = append(checkpoints, row)
			since = 0
		}
		v := t1
		if delta {
			v = t1 - prev
		}
		var err error
		if bw.buf, err = appendValue(bw.buf, v, first); err != nil {
			return err
		}
		prev = t1
		row++
		since++
		return bw.flush(false)
	})
	if err != nil {
		return err
	}
	t2Off := bw.size() - start

	row = 0
	k := 0
	err = c.col2.each(func(t2 int64) error {
		if k < len(checkpoints) && checkpoints[k] == row {
			idx2.Add(row, bw.size()-start)
			k++
		}
		var err error
		if bw.buf, err = appendValue(bw.buf, t2, second); err != nil {
			return err
		}
		row++
		return bw.flush(false)
	})
	if err != nil {
		return err
	}
	if err := bw.flush(true); err != nil {
		return err
	}
	if err := c.w.OverwriteVLong2At(start+oldHeaderSize, t2Off); err != nil {
		return err
	}
	if err := c.w.OverwriteVLong2At(start+oldHeaderSize+binenc.MaxVLong2Len, n); err != nil {
		return err
	}
	if idx1.IsEmpty() {
		return nil
	}
	return writeIndexes(c.w, start, &idx1, &idx2)
}
