package tree

import (
	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/perm"
)

// Table locates the table of a term in one permutation.
type Table struct {
	File      uint16
	Mark      int64
	Strategy  byte
	NElements int64
}

// Coordinates holds the table of a term in each permutation where it
// appears as the leading term.
type Coordinates struct {
	Active uint8
	Tables [perm.Count]Table
}

// Set records the table of permutation p.
func (c *Coordinates) Set(p int, t Table) {
	c.Active |= 1 << uint(p)
	c.Tables[p] = t
}

// Get returns the table of permutation p.
func (c *Coordinates) Get(p int) (Table, bool) {
	if !c.Exists(p) {
		return Table{}, false
	}
	return c.Tables[p], true
}

// Exists reports whether the term leads a table in permutation p.
func (c *Coordinates) Exists(p int) bool { return c.Active&(1<<uint(p)) != 0 }

// NElements returns the number of pairs of the table of p, or 0.
func (c *Coordinates) NElements(p int) int64 {
	if !c.Exists(p) {
		return 0
	}
	return c.Tables[p].NElements
}

// Merge copies the active tables of o into c.
func (c *Coordinates) Merge(o Coordinates) {
	for p := 0; p < perm.Count; p++ {
		if o.Exists(p) {
			c.Set(p, o.Tables[p])
		}
	}
}

// CoordinatesCodec serializes Coordinates as the active mask followed by
// [file 2][mark 5][strategy 1][nElements 5] per active permutation.
type CoordinatesCodec struct{}

func (CoordinatesCodec) Append(dst []byte, c Coordinates) []byte {
	dst = append(dst, c.Active)
	for p := 0; p < perm.Count; p++ {
		if !c.Exists(p) {
			continue
		}
		t := c.Tables[p]
		dst = binenc.AppendN(dst, int64(t.File), 2)
		dst = binenc.AppendN(dst, t.Mark, 5)
		dst = append(dst, t.Strategy)
		dst = binenc.AppendN(dst, t.NElements, 5)
	}
	return dst
}

func (CoordinatesCodec) Read(b []byte, off int) (Coordinates, int) {
	var c Coordinates
	c.Active = b[off]
	off++
	for p := 0; p < perm.Count; p++ {
		if !c.Exists(p) {
			continue
		}
		c.Tables[p] = Table{
			File:      uint16(binenc.Read2(b, off)),
			Mark:      binenc.Read5(b, off+2),
			Strategy:  b[off+7],
			NElements: binenc.Read5(b, off+8),
		}
		off += 13
	}
	return c, off
}
