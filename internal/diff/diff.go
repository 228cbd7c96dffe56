// Package diff implements update layers over an immutable knowledge base.
//
// A layer records the triples added to or removed from the view below it.
// Each layer is indexed in every permutation so that the querier can merge
// additions into, or subtract deletions from, the iterators of the base
// tables. A layer whose triples share two positions is kept in the compact
// single-column form (Single); every other layer uses General.
package diff

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/perm"
)

// Type tells whether a layer adds or removes triples.
type Type uint8

const (
	Addition Type = iota
	Deletion
)

func (t Type) String() string {
	if t == Deletion {
		return "rm"
	}
	return "add"
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "add":
		return Addition, nil
	case "rm":
		return Deletion, nil
	}
	return 0, fmt.Errorf("diff: unknown layer type %q", s)
}

// Class is the physical form of a layer.
type Class uint8

const (
	General Class = iota
	Single
)

// ErrFullScan is returned by Iterator when no first term is bound; use
// Scan instead.
var ErrFullScan = errors.New("diff: iterator needs a bound first term")

// Base is the view a layer is built against.
type Base interface {
	Exists(t perm.Triple) (bool, error)
	// Card returns the number of pairs of key in permutation p.
	Card(p int, key int64) (int64, error)
	// CardPair returns the number of rows of p starting with (key, v1).
	CardPair(p int, key, v1 int64) (int64, error)
}

// Index is an update layer.
type Index interface {
	Type() Type
	Class() Class

	// Iterator returns the pairs of first in p restricted by second and
	// third, and the number of distinct second terms it covers.
	Iterator(p int, first, second, third int64) (itr.PairItr, int64, error)
	// Scan walks every row of p.
	Scan(p int) (itr.PairItr, error)
	// TermList lists the keys of p with their pair counts.
	TermList(p int) (*TermItr, error)

	Size() int64
	Card(p int, first int64) int64
	// NUniqueKeys counts the keys of p the layer introduces (Addition) or
	// removes entirely (Deletion).
	NUniqueKeys(p int) int64
	// UniqueNFirstTerms is NUniqueKeys for (key, second term) pairs.
	UniqueNFirstTerms(p int) int64
	// NFirstTables counts the distinct (key, second term) pairs of p.
	NFirstTables(p int) int64

	// Triples returns the effective triples sorted by S, P, O.
	Triples() []perm.Triple
	Close() error
}

// DefaultTreeThreshold is the key count above which keys are indexed by a
// tree instead of a flat array.
const DefaultTreeThreshold = 1 << 16

// Options configures New.
type Options struct {
	// TreeThreshold selects tree-addressed keys for columns with more keys.
	TreeThreshold int
	// MaxElementsPerNode sizes the nodes of key trees.
	MaxElementsPerNode int
	Logger             *slog.Logger
}

func (o *Options) defaults() {
	if o.TreeThreshold <= 0 {
		o.TreeThreshold = DefaultTreeThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// New builds a layer of type typ from triples. Triples that would not change
// base (already present for an addition, absent for a deletion) are
// dropped. base may be nil when the layer starts from an empty view.
func New(typ Type, triples []perm.Triple, base Base, opts Options) (Index, error) {
	opts.defaults()
	ts := slices.Clone(triples)
	slices.SortFunc(ts, perm.Triple.Compare)
	ts = slices.Compact(ts)

	if base != nil {
		kept := ts[:0]
		for _, t := range ts {
			ok, err := base.Exists(t)
			if err != nil {
				return nil, fmt.Errorf("diff: check %v: %w", t, err)
			}
			if ok == (typ == Deletion) {
				kept = append(kept, t)
			}
		}
		ts = kept
	}

	if pos, ok := singleColumn(ts); ok {
		opts.Logger.Debug("built diff layer", "type", typ, "class", "single", "triples", len(ts))
		return newSingle(typ, ts, pos, base)
	}
	opts.Logger.Debug("built diff layer", "type", typ, "class", "general", "triples", len(ts))
	return newGeneral(typ, ts, base, opts)
}

// singleColumn reports the only position in which the triples differ.
func singleColumn(ts []perm.Triple) (int, bool) {
	if len(ts) < 2 {
		return 0, false
	}
	varying := -1
	for pos := 0; pos < 3; pos++ {
		v := ts[0].At(pos)
		for _, t := range ts[1:] {
			if t.At(pos) != v {
				if varying >= 0 {
					return 0, false
				}
				varying = pos
				break
			}
		}
	}
	return varying, varying >= 0
}

// keyColumn returns the triple position leading p.
func keyColumn(p int) int { return perm.Position(p, 0) }
