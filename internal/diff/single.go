package diff

import (
	"slices"

	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/perm"
	"github.com/hupe1980/trident/internal/tree"
)

// single is a layer whose triples agree on two positions. Only the values
// of the third position are stored.
type single struct {
	triples []perm.Triple
	fixed   [3]int64 // -1 at varying
	varying int
	values  []int64

	valueKeys *keyIndex

	layerStats
}

func newSingle(typ Type, ts []perm.Triple, varying int, base Base) (*single, error) {
	s := &single{triples: ts, varying: varying, layerStats: newLayerStats(typ)}
	for pos := 0; pos < 3; pos++ {
		s.fixed[pos] = ts[0].At(pos)
	}
	s.fixed[varying] = itr.NoConstraint
	// ts is sorted and varies in one position, so values are sorted too
	s.values = make([]int64, len(ts))
	for i, t := range ts {
		s.values[i] = t.At(varying)
	}

	for p := 0; p < perm.Count; p++ {
		if err := s.count(p, sortedRows(p, ts), base); err != nil {
			return nil, err
		}
	}

	var one tree.Coordinates
	p1, p2 := permsLedBy(varying)
	one.Set(p1, tree.Table{NElements: 1})
	one.Set(p2, tree.Table{NElements: 1})
	s.valueKeys = &keyIndex{mode: modeFlat, n: len(s.values), constCoords: one}
	s.valueKeys.nbytes = flatWidth(s.values[len(s.values)-1])
	for _, v := range s.values {
		s.valueKeys.flat = appendKey(s.valueKeys.flat, v, s.valueKeys.nbytes)
	}
	return s, nil
}

func (s *single) Type() Type   { return s.typ }
func (s *single) Class() Class { return Single }
func (s *single) Size() int64  { return int64(len(s.values)) }

func (s *single) Triples() []perm.Triple { return s.triples }

func (s *single) hasValue(v int64) (int, bool) {
	i, ok := slices.BinarySearch(s.values, v)
	return i, ok
}

func (s *single) Iterator(p int, first, second, third int64) (itr.PairItr, int64, error) {
	var t [3]int64
	t[0], t[1], t[2] = perm.Permute(p, s.fixed[0], s.fixed[1], s.fixed[2])
	bound := [3]int64{first, second, third}
	col := -1
	for i := range t {
		if t[i] == itr.NoConstraint {
			col = i
			continue
		}
		if bound[i] >= 0 && bound[i] != t[i] {
			return itr.NewEmpty(), 0, nil
		}
	}

	values := s.values
	if v := bound[col]; v >= 0 {
		i, ok := s.hasValue(v)
		if !ok {
			return itr.NewEmpty(), 0, nil
		}
		values = values[i : i+1]
	}
	d := NewDiff1(t[0], t[1], t[2], values, col)
	var nfirst int64
	switch {
	case first < 0:
	case col == 1:
		nfirst = int64(len(values))
	default:
		nfirst = 1
	}
	return d, nfirst, nil
}

func (s *single) Scan(p int) (itr.PairItr, error) {
	it, _, err := s.Iterator(p, itr.NoConstraint, itr.NoConstraint, itr.NoConstraint)
	return it, err
}

func (s *single) TermList(p int) (*TermItr, error) {
	lead := keyColumn(p)
	t := &TermItr{}
	if lead == s.varying {
		c, err := s.valueKeys.cursor()
		if err != nil {
			return nil, err
		}
		t.init(p, int64(len(s.values)), s.NUniqueKeys(p), c)
		return t, nil
	}
	var c tree.Coordinates
	c.Set(p, tree.Table{NElements: s.Size()})
	t.init(p, 1, s.NUniqueKeys(p), &constCursor{key: s.fixed[lead], coords: c, left: true})
	return t, nil
}

func (s *single) Card(p int, first int64) int64 {
	lead := keyColumn(p)
	if lead == s.varying {
		if _, ok := s.hasValue(first); ok {
			return 1
		}
		return 0
	}
	if first == s.fixed[lead] {
		return s.Size()
	}
	return 0
}

func (s *single) Close() error { return nil }
