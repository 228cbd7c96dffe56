package diff

import (
	"errors"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/perm"
	"github.com/hupe1980/trident/internal/tree"
)

// general indexes an arbitrary set of triples in all six permutations.
type general struct {
	triples []perm.Triple

	pairs   [perm.Count][]itr.Pair
	keys    [3]*keyIndex
	present [3]*roaring64.Bitmap

	layerStats
}

// permsLedBy returns the two permutations whose leading column is pos.
func permsLedBy(pos int) (int, int) {
	switch pos {
	case 0:
		return perm.SPO, perm.SOP
	case 1:
		return perm.POS, perm.PSO
	}
	return perm.OPS, perm.OSP
}

func newGeneral(typ Type, ts []perm.Triple, base Base, opts Options) (*general, error) {
	g := &general{triples: ts, layerStats: newLayerStats(typ)}
	for pos := 0; pos < 3; pos++ {
		if err := g.buildColumn(pos, base, opts); err != nil {
			g.Close()
			return nil, err
		}
	}
	return g, nil
}

func (g *general) buildColumn(pos int, base Base, opts Options) error {
	var (
		keys   []int64
		coords []tree.Coordinates
	)
	g.present[pos] = roaring64.New()

	p1, p2 := permsLedBy(pos)
	for i, p := range []int{p1, p2} {
		rows := sortedRows(p, g.triples)
		if err := g.count(p, rows, base); err != nil {
			return err
		}

		pairs := make([]itr.Pair, len(rows))
		for j, r := range rows {
			pairs[j] = itr.Pair{V1: r.V1, V2: r.V2}
		}
		g.pairs[p] = pairs

		n := 0
		for start := 0; start < len(rows); {
			key := rows[start].Key
			end := start + 1
			for end < len(rows) && rows[end].Key == key {
				end++
			}
			if i == 0 {
				keys = append(keys, key)
				coords = append(coords, tree.Coordinates{})
				g.present[pos].Add(uint64(key))
			}
			coords[n].Set(p, tree.Table{Mark: int64(start), NElements: int64(end - start)})
			n++
			start = end
		}
	}

	k, err := buildKeyIndex(keys, coords, opts)
	if err != nil {
		return err
	}
	g.keys[pos] = k
	return nil
}

func (g *general) Type() Type   { return g.typ }
func (g *general) Class() Class { return General }
func (g *general) Size() int64  { return int64(len(g.triples)) }

func (g *general) Triples() []perm.Triple { return g.triples }

func (g *general) table(p int, key int64) ([]itr.Pair, bool, error) {
	pos := keyColumn(p)
	if key < 0 || !g.present[pos].Contains(uint64(key)) {
		return nil, false, nil
	}
	c, ok, err := g.keys[pos].get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	t, _ := c.Get(p)
	return g.pairs[p][t.Mark : t.Mark+t.NElements], true, nil
}

func (g *general) Iterator(p int, first, second, third int64) (itr.PairItr, int64, error) {
	if first < 0 {
		return nil, 0, ErrFullScan
	}
	pairs, ok, err := g.table(p, first)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return itr.NewEmpty(), 0, nil
	}
	a := &itr.ArrayItr{}
	a.InitConstrained(first, pairs, second, third)
	if second >= 0 {
		return a, 1, nil
	}
	return a, distinctFirst(pairs), nil
}

func distinctFirst(pairs []itr.Pair) int64 {
	var n int64
	for i := range pairs {
		if i == 0 || pairs[i].V1 != pairs[i-1].V1 {
			n++
		}
	}
	return n
}

func (g *general) Scan(p int) (itr.PairItr, error) {
	c, err := g.keys[keyColumn(p)].cursor()
	if err != nil {
		return nil, err
	}
	return newScanItr(g, p, c), nil
}

func (g *general) TermList(p int) (*TermItr, error) {
	k := g.keys[keyColumn(p)]
	c, err := k.cursor()
	if err != nil {
		return nil, err
	}
	t := &TermItr{}
	t.init(p, int64(k.n), g.NUniqueKeys(p), c)
	return t, nil
}

func (g *general) Card(p int, first int64) int64 {
	pairs, _, _ := g.table(p, first)
	return int64(len(pairs))
}

func (g *general) Close() error {
	var errs []error
	for _, k := range g.keys {
		if k != nil {
			errs = append(errs, k.close())
		}
	}
	return errors.Join(errs...)
}
