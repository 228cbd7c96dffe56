package tables

import (
	"fmt"

	"github.com/hupe1980/trident/internal/binenc"
)

func fits(v int64, width int) error {
	if v < 0 || (width < 8 && v >= int64(1)<<(8*uint(width))) {
		return fmt.Errorf("%w: %d in %d bytes", ErrValueTooWide, v, width)
	}
	return nil
}

type newRowInserter struct {
	strat Strategy
	w     Writer
	buf   []byte
}

func (r *newRowInserter) Strategy() Strategy { return r.strat }

func (r *newRowInserter) StartAppend(w Writer) error {
	r.w = w
	r.buf = r.buf[:0]
	return nil
}

func (r *newRowInserter) Append(t1, t2 int64) error {
	w1, w2 := r.strat.Width1(), r.strat.Width2()
	if err := fits(t1, w1); err != nil {
		return err
	}
	if err := fits(t2, w2); err != nil {
		return err
	}
	r.buf = binenc.AppendN(r.buf, t1, w1)
	r.buf = binenc.AppendN(r.buf, t2, w2)
	if len(r.buf) < flushSize {
		return nil
	}
	_, err := r.w.Append(r.buf)
	r.buf = r.buf[:0]
	return err
}

func (r *newRowInserter) StopAppend() error {
	if len(r.buf) == 0 {
		return nil
	}
	_, err := r.w.Append(r.buf)
	r.buf = r.buf[:0]
	return err
}

type newClusterInserter struct {
	strat Strategy
	w     Writer
	group int64
	vals  []int64
	buf   []byte
}

func (c *newClusterInserter) Strategy() Strategy { return c.strat }

func (c *newClusterInserter) StartAppend(w Writer) error {
	c.w = w
	c.vals = c.vals[:0]
	c.buf = c.buf[:0]
	return nil
}

func (c *newClusterInserter) Append(t1, t2 int64) error {
	if len(c.vals) > 0 && t1 != c.group {
		if err := c.writeGroup(); err != nil {
			return err
		}
	}
	c.group = t1
	c.vals = append(c.vals, t2)
	return nil
}

func (c *newClusterInserter) writeGroup() error {
	w1, w2, wc := c.strat.Width1(), c.strat.Width2(), c.strat.CountWidth()
	if err := fits(c.group, w1); err != nil {
		return err
	}
	if err := fits(int64(len(c.vals)), wc); err != nil {
		return err
	}
	c.buf = binenc.AppendN(c.buf, c.group, w1)
	c.buf = binenc.AppendN(c.buf, int64(len(c.vals)), wc)
	for _, v := range c.vals {
		if err := fits(v, w2); err != nil {
			return err
		}
		c.buf = binenc.AppendN(c.buf, v, w2)
	}
	c.vals = c.vals[:0]
	if len(c.buf) < flushSize {
		return nil
	}
	_, err := c.w.Append(c.buf)
	c.buf = c.buf[:0]
	return err
}

func (c *newClusterInserter) StopAppend() error {
	if len(c.vals) > 0 {
		if err := c.writeGroup(); err != nil {
			return err
		}
	}
	if len(c.buf) == 0 {
		return nil
	}
	_, err := c.w.Append(c.buf)
	c.buf = c.buf[:0]
	return err
}

// newColumnInserter collects (t1, start) entries and the second column and
// writes [widths][nFirst][nSecond][entries][second column] on StopAppend.
type newColumnInserter struct {
	strat   Strategy
	opts    InserterOptions
	w       Writer
	entries *spillList
	seconds *spillList

	prev                 int64
	n                    int64
	maxFirst, maxSecond  int64
	maxCount, groupStart int64
	nFirst               int64
}

func (c *newColumnInserter) Strategy() Strategy { return c.strat }

func (c *newColumnInserter) StartAppend(w Writer) error {
	c.w = w
	if c.entries != nil {
		c.entries.discard()
		c.seconds.discard()
	}
	c.entries = newSpillList(c.opts, "newcolumn1-*")
	c.seconds = newSpillList(c.opts, "newcolumn2-*")
	c.n, c.nFirst = 0, 0
	c.maxFirst, c.maxSecond, c.maxCount = 0, 0, 0
	return nil
}

func (c *newColumnInserter) Append(t1, t2 int64) error {
	if t1 < 0 || t2 < 0 {
		return fmt.Errorf("%w: negative value", ErrValueTooWide)
	}
	if c.n == 0 || t1 != c.prev {
		if c.n > 0 {
			c.maxCount = max(c.maxCount, c.n-c.groupStart)
		}
		if err := c.entries.add(t1); err != nil {
			return err
		}
		if err := c.entries.add(c.n); err != nil {
			return err
		}
		c.prev, c.groupStart = t1, c.n
		c.maxFirst = max(c.maxFirst, t1)
		c.nFirst++
	}
	c.maxSecond = max(c.maxSecond, t2)
	c.n++
	return c.seconds.add(t2)
}

func (c *newColumnInserter) StopAppend() error {
	if c.n == 0 {
		return nil
	}
	defer func() {
		c.entries.discard()
		c.seconds.discard()
	}()
	c.maxCount = max(c.maxCount, c.n-c.groupStart)
	bf, bs := binenc.BytesFor(c.maxFirst), binenc.BytesFor(c.maxSecond)
	bc, bo := binenc.BytesFor(c.maxCount), binenc.BytesFor(c.n)
	if bf > 7 || bs > 7 || bc > 7 || bo > 7 {
		return fmt.Errorf("%w: column widths %d/%d/%d/%d", ErrValueTooWide, bf, bs, bc, bo)
	}

	bw := &bufferedWriter{w: c.w}
	bw.buf = append(bw.buf, byte(bf<<3|bs), byte(bc<<3|bo))
	var err error
	if bw.buf, err = binenc.AppendVLong2(bw.buf, c.nFirst); err != nil {
		return err
	}
	if bw.buf, err = binenc.AppendVLong2(bw.buf, c.n); err != nil {
		return err
	}

	// An entry is written once the start of the following one is known.
	var pendingKey, pendingStart int64
	pending, isKey := false, true
	var key int64
	emit := func(next int64) error {
		bw.buf = binenc.AppendN(bw.buf, pendingKey, bf)
		bw.buf = binenc.AppendN(bw.buf, next-pendingStart, bc)
		bw.buf = binenc.AppendN(bw.buf, pendingStart, bo)
		return bw.flush(false)
	}
	err = c.entries.each(func(v int64) error {
		if isKey {
			key, isKey = v, false
			return nil
		}
		isKey = true
		if pending {
			if err := emit(v); err != nil {
				return err
			}
		}
		pendingKey, pendingStart, pending = key, v, true
		return nil
	})
	if err != nil {
		return err
	}
	if err := emit(c.n); err != nil {
		return err
	}
	err = c.seconds.each(func(v int64) error {
		bw.buf = binenc.AppendN(bw.buf, v, bs)
		return bw.flush(false)
	})
	if err != nil {
		return err
	}
	return bw.flush(true)
}
