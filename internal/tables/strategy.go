package tables

import (
	"fmt"

	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/itr"
)

// Storage layouts. The values are persisted in the top three bits of a
// Strategy and match the table iterator types.
const (
	Row        = 0
	Cluster    = 1
	Column     = 2
	NewColumn  = 3
	NewRow     = 4
	NewCluster = 5
)

const (
	// ThresholdKeepMemory is the table size above which the strategy is
	// chosen without inspecting the pairs.
	ThresholdKeepMemory = 1000 * 1024
	// FirstIndexSize is the distance in elements between FileIndex checkpoints.
	FirstIndexSize = 256
	// DefaultClusterColumnTerms is the number of distinct first terms above
	// which a column layout is preferred.
	DefaultClusterColumnTerms = 20
	// BinarySearchThreshold is the number of fixed-width entries above which
	// readers switch from linear to binary search.
	BinarySearchThreshold = 64

	maxNewWidthValue    = 1<<40 - 1
	maxColumnWidthValue = 1<<56 - 1
)

// Strategy is the one-byte signature describing how a table is stored.
//
// Bits 7..5 hold the storage layout. For NewRow and NewCluster bits 4..3
// and 2..1 hold width flags (0:1 1:2 2:4 3:5 bytes) for the two columns.
// For Row, Cluster and Column bit 4 disables delta coding of the first
// column, bits 3 and 2 select VLong2 over VLong for the first and second
// column and bit 1 stores both columns as raw 8-byte integers. Bit 0 marks
// an aggregated table for Row and NewRow and a 4-byte count for NewCluster.
type Strategy byte

// StorageType returns the layout of s.
func (s Strategy) StorageType() int { return int(s>>5) & 7 }

// Aggregated reports whether the table stores (value, coordinates) rows.
func (s Strategy) Aggregated() bool {
	return s&1 != 0 && s.StorageType() != NewCluster
}

// WithAggregated returns s with the aggregated flag set.
func (s Strategy) WithAggregated() Strategy { return s | 1 }

// Width1 is the byte width of the first column for NewRow and NewCluster.
func (s Strategy) Width1() int { return flagWidth(int(s>>3) & 3) }

// Width2 is the byte width of the second column for NewRow and NewCluster.
func (s Strategy) Width2() int { return flagWidth(int(s>>1) & 3) }

// CountWidth is the byte width of NewCluster group counts.
func (s Strategy) CountWidth() int {
	if s&1 != 0 {
		return 4
	}
	return 1
}

// Delta reports whether an old-format table delta-codes its first column.
func (s Strategy) Delta() bool { return s&0x10 == 0 }

// VLong2First reports whether an old-format table uses VLong2 for column one.
func (s Strategy) VLong2First() bool { return s&0x8 != 0 }

// VLong2Second reports whether an old-format table uses VLong2 for column two.
func (s Strategy) VLong2Second() bool { return s&0x4 != 0 }

// Raw reports whether an old-format table stores plain 8-byte integers.
func (s Strategy) Raw() bool { return s&0x2 != 0 }

func (s Strategy) String() string {
	switch s.StorageType() {
	case NewRow, NewCluster:
		return fmt.Sprintf("%s(w1=%d,w2=%d,b0=%d)", typeName(s.StorageType()), s.Width1(), s.Width2(), s&1)
	case NewColumn:
		return fmt.Sprintf("%s(aggr=%t)", typeName(s.StorageType()), s.Aggregated())
	}
	return fmt.Sprintf("%s(delta=%t,v2a=%t,v2b=%t,raw=%t,aggr=%t)",
		typeName(s.StorageType()), s.Delta(), s.VLong2First(), s.VLong2Second(), s.Raw(), s.Aggregated())
}

func typeName(t int) string { return itr.Type(t).String() }

func flagWidth(f int) int {
	switch f {
	case 0:
		return 1
	case 1:
		return 2
	case 2:
		return 4
	}
	return 5
}

func widthFlag(nbytes int) int {
	switch {
	case nbytes == 1:
		return 0
	case nbytes == 2:
		return 1
	case nbytes < 5:
		return 2
	}
	return 3
}

// NewStrategy builds a fixed-width signature for NewRow or NewCluster.
func NewStrategy(layout, width1, width2 int, bit0 bool) Strategy {
	s := Strategy(layout<<5) | Strategy(widthFlag(width1)<<3) | Strategy(widthFlag(width2)<<1)
	if bit0 {
		s |= 1
	}
	return s
}

// OldStrategy builds a signature for Row, Cluster or Column.
func OldStrategy(layout int, delta, vlong2First, vlong2Second, raw bool) Strategy {
	s := Strategy(layout << 5)
	if !delta {
		s |= 0x10
	}
	if vlong2First {
		s |= 0x8
	}
	if vlong2Second {
		s |= 0x4
	}
	if raw {
		s |= 0x2
	}
	return s
}

// Predefined strategies used when a table is too large to inspect.
var (
	FixedNewColumn  = Strategy(NewColumn << 5)
	FixedNewRow     = NewStrategy(NewRow, 5, 5, false)
	FixedNewCluster = NewStrategy(NewCluster, 5, 5, true)
)

// Stats counts the decisions taken by the strategy functions.
type Stats struct {
	Exact, Approximate        int64
	Lists, Groups, Columns    int64
	Aggregated, NotAggregated int64
	Diff, NoDiff              int64
	FirstVLong2, FirstVLong   int64
	SecondVLong2, SecondVLong int64
	Overflow                  int64
}

// CorruptTableError reports a table that cannot be decoded.
type CorruptTableError struct {
	Strategy Strategy
	Reason   string
}

func (e *CorruptTableError) Error() string {
	return fmt.Sprintf("corrupt table (strategy 0x%02x): %s", byte(e.Strategy), e.Reason)
}

func corrupt(s Strategy, format string, args ...any) error {
	return &CorruptTableError{Strategy: s, Reason: fmt.Sprintf(format, args...)}
}

// DetermineAggregated reports whether the first column repeats enough to
// store the table aggregated.
func DetermineAggregated(pairs []itr.Pair, stats *Stats) bool {
	if len(pairs) == 0 {
		return false
	}
	unique := 1
	for i := 1; i < len(pairs); i++ {
		if pairs[i-1].V1 != pairs[i].V1 {
			unique++
		}
	}
	if unique <= len(pairs)/10 {
		if stats != nil {
			stats.Aggregated++
		}
		return true
	}
	if stats != nil {
		stats.NotAggregated++
	}
	return false
}

// DetermineStrategy picks among NewRow, NewCluster and NewColumn for the
// sorted pairs of one table. size is the total number of pairs, which may
// exceed len(pairs) when the table was not kept in memory.
func DetermineStrategy(pairs []itr.Pair, size int, nTermsClusterColumn int, useRowForLargeTables bool, stats *Stats) Strategy {
	if stats == nil {
		stats = &Stats{}
	}
	if size >= ThresholdKeepMemory || len(pairs) < size {
		stats.Approximate++
		if useRowForLargeTables {
			stats.Lists++
			return FixedNewRow
		}
		stats.Columns++
		return FixedNewColumn
	}
	stats.Exact++

	var max1, max2, groups, maxGroup, cur int64
	prev := int64(-1)
	for _, p := range pairs {
		max1 = max(max1, p.V1)
		max2 = max(max2, p.V2)
		if p.V1 != prev {
			prev = p.V1
			cur = 0
			groups++
		}
		cur++
		maxGroup = max(maxGroup, cur)
	}

	if max1 > maxNewWidthValue || max2 > maxNewWidthValue {
		stats.Overflow++
		if max1 <= maxColumnWidthValue && max2 <= maxColumnWidthValue {
			stats.Columns++
			return FixedNewColumn
		}
		stats.Lists++
		return OldStrategy(Row, false, false, false, true)
	}

	if groups >= int64(nTermsClusterColumn) {
		stats.Columns++
		return FixedNewColumn
	}

	nbytesCount := int64(1)
	if maxGroup > 255 {
		nbytesCount = 4
	}
	w1 := flagWidth(widthFlag(binenc.BytesFor(max1)))
	w2 := flagWidth(widthFlag(binenc.BytesFor(max2)))
	spaceRow := int64(len(pairs)) * int64(w1+w2)
	spaceCluster := groups*(int64(w1)+nbytesCount) + int64(len(pairs))*int64(w2)
	if spaceRow < spaceCluster {
		stats.Lists++
		return NewStrategy(NewRow, w1, w2, false)
	}
	stats.Groups++
	return NewStrategy(NewCluster, w1, w2, nbytesCount > 1)
}

type combination struct {
	layout  int
	delta   bool
	vlong2a bool
	vlong2b bool
	sum     int64
}

// better orders combinations by size, preferring no delta and VLong2.
func (c combination) better(o combination) bool {
	if c.sum != o.sum {
		return c.sum < o.sum
	}
	if c.delta != o.delta {
		return !c.delta
	}
	if c.vlong2a != o.vlong2a {
		return c.vlong2a
	}
	if c.vlong2b != o.vlong2b {
		return c.vlong2b
	}
	return false
}

// DetermineStrategyOld picks among Row, Cluster and Column by computing the
// encoded size of every combination of layout, delta coding and varint
// flavour.
func DetermineStrategyOld(pairs []itr.Pair, size int, nTermsClusterColumn int, stats *Stats) Strategy {
	if stats == nil {
		stats = &Stats{}
	}
	if size >= ThresholdKeepMemory || len(pairs) < size {
		stats.Approximate++
		stats.Columns++
		return OldStrategy(Column, true, true, true, false)
	}
	stats.Exact++

	overflow1, overflow2 := false, false
	for _, p := range pairs {
		overflow1 = overflow1 || p.V1 > binenc.MaxVLong2Value
		overflow2 = overflow2 || p.V2 > binenc.MaxVLong2Value
	}

	// index 0 uses VLong2, index 1 VLong; second index is the delta mode.
	var list1, group1 [2][2]int64
	var list2, group2 [2]int64
	var secondBytes [2]int64
	var uniqueFirst int
	prevFirst, prevSecond := int64(-1), int64(-1)

	enc := func(v int64) [2]int64 {
		return [2]int64{int64(vlong2Len(v)), int64(binenc.VLongLen(v))}
	}

	for _, p := range pairs {
		for delta := 0; delta < 2; delta++ {
			v := p.V1
			if delta == 1 && prevFirst != -1 {
				v = p.V1 - prevFirst
			}
			e := enc(v)
			for k := 0; k < 2; k++ {
				list1[k][delta] += e[k]
				if p.V1 != prevFirst {
					group1[k][delta] += e[k] + 1
					if secondBytes[k] > 255 {
						group1[k][delta] += 3
					}
				}
			}
		}
		if p.V1 != prevFirst {
			prevFirst = p.V1
			prevSecond = -1
			uniqueFirst++
			secondBytes = [2]int64{}
		}
		e := enc(p.V2)
		list2[0] += e[0]
		list2[1] += e[1]
		if prevSecond != -1 {
			e = enc(p.V2 - prevSecond)
		}
		for k := 0; k < 2; k++ {
			group2[k] += e[k]
			secondBytes[k] += e[k]
		}
		prevSecond = p.V2

		if uniqueFirst > nTermsClusterColumn {
			stats.Columns++
			stats.FirstVLong2++
			stats.SecondVLong2++
			return OldStrategy(Column, true, !overflow1, !overflow2, false)
		}
	}
	for delta := 0; delta < 2; delta++ {
		for k := 0; k < 2; k++ {
			if secondBytes[k] > 255 {
				group1[k][delta] += 3
			}
		}
	}

	best := combination{sum: -1}
	for delta := 0; delta < 2; delta++ {
		for a := 0; a < 2; a++ {
			if a == 0 && overflow1 {
				continue
			}
			for b := 0; b < 2; b++ {
				if b == 0 && overflow2 {
					continue
				}
				for _, c := range []combination{
					{layout: Cluster, sum: group1[a][delta] + group2[b]},
					{layout: Row, sum: list1[a][delta] + list2[b]},
				} {
					c.delta, c.vlong2a, c.vlong2b = delta == 1, a == 0, b == 0
					if best.sum < 0 || c.better(best) {
						best = c
					}
				}
			}
		}
	}

	if best.layout == Cluster {
		stats.Groups++
	} else {
		stats.Lists++
	}
	if best.vlong2a {
		stats.FirstVLong2++
	} else {
		stats.FirstVLong++
	}
	if best.vlong2b {
		stats.SecondVLong2++
	} else {
		stats.SecondVLong++
	}
	if best.delta {
		stats.Diff++
	} else {
		stats.NoDiff++
	}
	return OldStrategy(best.layout, best.delta, best.vlong2a, best.vlong2b, false)
}

// vlong2Len is the VLong2 size of v, treating negative deltas as maximal.
func vlong2Len(v int64) int {
	if v < 0 || v > binenc.MaxVLong2Value {
		return binenc.MaxVLong2Len
	}
	return binenc.VLong2Len(v)
}
