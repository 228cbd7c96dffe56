// Package perm defines the six triple permutations and the column
// reorderings between them.
package perm

import (
	"cmp"
	"fmt"
)

// Permutation indices. Permutation i and i±3 share the leading column.
const (
	SPO = 0
	OPS = 1
	POS = 2
	SOP = 3
	OSP = 4
	PSO = 5
)

// Count is the number of permutations.
const Count = 6

var names = [Count]string{"spo", "ops", "pos", "sop", "osp", "pso"}

// Name returns the lower-case name of p ("spo", "ops", ...).
func Name(p int) string {
	if !Valid(p) {
		return fmt.Sprintf("perm(%d)", p)
	}
	return names[p]
}

// Parse returns the permutation named s.
func Parse(s string) (int, error) {
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("perm: unknown permutation %q", s)
}

// Valid reports whether p is a permutation index.
func Valid(p int) bool { return p >= 0 && p < Count }

// Reverse returns the permutation sharing the leading column with p.
func Reverse(p int) int {
	if p < 3 {
		return p + 3
	}
	return p - 3
}

// Permute reorders (s, p, o) into the column order of perm.
func Permute(perm int, s, p, o int64) (int64, int64, int64) {
	switch perm {
	case SPO:
		return s, p, o
	case OPS:
		return o, p, s
	case POS:
		return p, o, s
	case SOP:
		return s, o, p
	case OSP:
		return o, s, p
	case PSO:
		return p, s, o
	}
	panic(fmt.Sprintf("perm: invalid permutation %d", perm))
}

// Unpermute maps a row in the column order of perm back to (s, p, o).
func Unpermute(perm int, a, b, c int64) (s, p, o int64) {
	switch perm {
	case SPO:
		return a, b, c
	case OPS:
		return c, b, a
	case POS:
		return c, a, b
	case SOP:
		return a, c, b
	case OSP:
		return b, c, a
	case PSO:
		return b, a, c
	}
	panic(fmt.Sprintf("perm: invalid permutation %d", perm))
}

// Position returns which triple position (0=s, 1=p, 2=o) holds column col
// of perm.
func Position(perm, col int) int {
	var cols [3]int64
	cols[0], cols[1], cols[2] = Permute(perm, 0, 1, 2)
	return int(cols[col])
}

// Triple is a (subject, predicate, object) statement of term IDs.
type Triple struct {
	S, P, O int64
}

// In returns the columns of t in the order of perm.
func (t Triple) In(perm int) (int64, int64, int64) { return Permute(perm, t.S, t.P, t.O) }

// At returns the term at triple position pos (0=s, 1=p, 2=o).
func (t Triple) At(pos int) int64 {
	switch pos {
	case 0:
		return t.S
	case 1:
		return t.P
	}
	return t.O
}

// Compare orders triples by S, P, O.
func (t Triple) Compare(o Triple) int {
	switch {
	case t.S != o.S:
		return cmp.Compare(t.S, o.S)
	case t.P != o.P:
		return cmp.Compare(t.P, o.P)
	}
	return cmp.Compare(t.O, o.O)
}
