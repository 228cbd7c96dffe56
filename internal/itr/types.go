package itr

import "fmt"

// NoConstraint marks an unset constraint.
const NoConstraint = -1

// Type identifies an iterator variant. Values are stable.
type Type uint8

const (
	TypeRow Type = iota
	TypeCluster
	TypeColumn
	TypeNewColumn
	TypeNewRow
	TypeNewCluster
	TypeArray
	TypeCache
	TypeAggr
	TypeScan
	TypeDiffScan
	TypeEmpty
	TypeTerm
	TypeComposite
	TypeCompositeTerm
	TypeDiffTerm
	TypeCompositeScan
	TypeDiff1
	TypeRm
	TypeRmCompositeTerm
	TypeReOrder
	TypeReOrderTerm
	numTypes
)

var typeNames = [numTypes]string{
	"row", "cluster", "column", "newcolumn", "newrow", "newcluster",
	"array", "cache", "aggr", "scan", "diffscan", "empty", "term",
	"composite", "compositeterm", "diffterm", "compositescan", "diff1",
	"rm", "rmcompositeterm", "reorder", "reorderterm",
}

// NumTypes is the number of iterator types.
const NumTypes = int(numTypes)

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, bool) {
	for i, n := range typeNames {
		if n == s {
			return Type(i), true
		}
	}
	return 0, false
}

func (t Type) String() string {
	if t < numTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("itr.Type(%d)", uint8(t))
}

// IsTable reports whether t is one of the six binary table readers.
func (t Type) IsTable() bool { return t <= TypeNewCluster }

// IsScan reports whether iterators of type t move across keys.
func (t Type) IsScan() bool {
	switch t {
	case TypeScan, TypeDiffScan, TypeCompositeScan, TypeReOrder:
		return true
	}
	return false
}

// IsScanLike reports whether it moves across keys. Wrappers such as
// RmItr answer for their input.
func IsScanLike(it PairItr) bool {
	if s, ok := it.(interface{ ScanLike() bool }); ok {
		return s.ScanLike()
	}
	return it.Type().IsScan()
}

// Capability is an optional PairItr operation.
type Capability uint8

const (
	CapMoveTo Capability = 1 << iota
	CapMark
	CapIgnoreSecondColumn
	CapGotoKey
	CapCardinality
)

const capTable = CapMoveTo | CapMark | CapIgnoreSecondColumn | CapCardinality

var capabilities = [numTypes]Capability{
	TypeRow:             capTable,
	TypeCluster:         capTable,
	TypeColumn:          capTable,
	TypeNewColumn:       capTable,
	TypeNewRow:          capTable,
	TypeNewCluster:      capTable,
	TypeArray:           capTable,
	TypeCache:           CapMoveTo | CapMark | CapCardinality,
	TypeAggr:            CapMoveTo | CapMark | CapIgnoreSecondColumn | CapCardinality,
	TypeScan:            CapMoveTo | CapMark | CapIgnoreSecondColumn | CapGotoKey | CapCardinality,
	TypeDiffScan:        CapMoveTo | CapIgnoreSecondColumn | CapGotoKey | CapCardinality,
	TypeEmpty:           CapMoveTo | CapMark | CapIgnoreSecondColumn | CapGotoKey | CapCardinality,
	TypeTerm:            CapMark | CapGotoKey | CapCardinality,
	TypeComposite:       CapMoveTo | CapIgnoreSecondColumn | CapCardinality,
	TypeCompositeTerm:   CapCardinality,
	TypeDiffTerm:        CapGotoKey | CapCardinality,
	TypeCompositeScan:   CapMoveTo | CapIgnoreSecondColumn | CapCardinality,
	TypeDiff1:           CapMoveTo | CapMark | CapIgnoreSecondColumn | CapCardinality,
	TypeRm:              CapMoveTo | CapMark | CapIgnoreSecondColumn | CapCardinality,
	TypeRmCompositeTerm: 0,
	TypeReOrder:         CapMoveTo | CapMark | CapIgnoreSecondColumn | CapGotoKey | CapCardinality,
	TypeReOrderTerm:     CapGotoKey | CapCardinality,
}

// Supports reports whether iterators of type t implement capability c.
// Composite variants may still fail when a child does not.
func Supports(t Type, c Capability) bool {
	if t >= numTypes {
		return false
	}
	return capabilities[t]&c == c
}

// Ownership records who releases an iterator.
type Ownership uint8

const (
	// OwnedByHeap iterators are dropped on release.
	OwnedByHeap Ownership = iota
	// OwnedByPool iterators are returned to their pool on release.
	OwnedByPool
)

// Pair is one (Value1, Value2) row of a table.
type Pair struct {
	V1, V2 int64
}

// Less orders pairs by V1, then V2.
func (p Pair) Less(o Pair) bool {
	return p.V1 < o.V1 || (p.V1 == o.V1 && p.V2 < o.V2)
}

// Compare returns -1, 0 or +1.
func (p Pair) Compare(o Pair) int {
	switch {
	case p.V1 < o.V1:
		return -1
	case p.V1 > o.V1:
		return 1
	case p.V2 < o.V2:
		return -1
	case p.V2 > o.V2:
		return 1
	}
	return 0
}

// Row is a permuted triple: the table key followed by its pair.
type Row struct {
	Key, V1, V2 int64
}

// Compare orders rows by Key, V1, V2.
func (r Row) Compare(o Row) int {
	switch {
	case r.Key < o.Key:
		return -1
	case r.Key > o.Key:
		return 1
	}
	return Pair{r.V1, r.V2}.Compare(Pair{o.V1, o.V2})
}
