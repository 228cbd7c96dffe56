package diff

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/perm"
)

// layerStats counts what a layer changes relative to its base.
type layerStats struct {
	typ          Type
	unique       [3]*roaring64.Bitmap
	uniqueFirst  [perm.Count]int64
	nFirstTables [perm.Count]int64
}

func newLayerStats(typ Type) layerStats {
	s := layerStats{typ: typ}
	for i := range s.unique {
		s.unique[i] = roaring64.New()
	}
	return s
}

// changes reports whether a group of n layer rows whose base holds card
// rows adds or wipes the group.
func (s *layerStats) changes(card, n int64) bool {
	if s.typ == Addition {
		return card == 0
	}
	return card == n
}

// count accumulates the rows of p, sorted by key, V1 and V2.
func (s *layerStats) count(p int, rows []itr.Row, base Base) error {
	pos := keyColumn(p)
	leading, _ := permsLedBy(pos)
	for start := 0; start < len(rows); {
		key := rows[start].Key
		end := start + 1
		for end < len(rows) && rows[end].Key == key {
			end++
		}
		if p == leading {
			card, err := baseCard(base, p, key)
			if err != nil {
				return err
			}
			if s.changes(card, int64(end-start)) {
				s.unique[pos].Add(uint64(key))
			}
		}
		for i := start; i < end; {
			v1 := rows[i].V1
			j := i + 1
			for j < end && rows[j].V1 == v1 {
				j++
			}
			s.nFirstTables[p]++
			card, err := baseCardPair(base, p, key, v1)
			if err != nil {
				return err
			}
			if s.changes(card, int64(j-i)) {
				s.uniqueFirst[p]++
			}
			i = j
		}
		start = end
	}
	return nil
}

func baseCard(base Base, p int, key int64) (int64, error) {
	if base == nil {
		return 0, nil
	}
	return base.Card(p, key)
}

func baseCardPair(base Base, p int, key, v1 int64) (int64, error) {
	if base == nil {
		return 0, nil
	}
	return base.CardPair(p, key, v1)
}

func (s *layerStats) NUniqueKeys(p int) int64 {
	return int64(s.unique[keyColumn(p)].GetCardinality())
}

func (s *layerStats) UniqueNFirstTerms(p int) int64 { return s.uniqueFirst[p] }
func (s *layerStats) NFirstTables(p int) int64      { return s.nFirstTables[p] }

// sortedRows returns ts in the column order of p, sorted.
func sortedRows(p int, ts []perm.Triple) []itr.Row {
	rows := make([]itr.Row, len(ts))
	for j, t := range ts {
		a, b, c := t.In(p)
		rows[j] = itr.Row{Key: a, V1: b, V2: c}
	}
	slices.SortFunc(rows, itr.Row.Compare)
	return rows
}
