package diff

import (
	"github.com/hupe1980/trident/internal/itr"
)

// TermItr lists the keys of one permutation of a layer. Count is the number
// of pairs of the current key.
type TermItr struct {
	itr.Base

	perm    int
	nkeys   int64
	nunique int64
	keys    keyCursor
	count   int64
}

func (t *TermItr) init(p int, nkeys, nunique int64, keys keyCursor) {
	t.InitBase()
	t.perm, t.nkeys, t.nunique, t.keys = p, nkeys, nunique, keys
	t.count = 0
}

func (*TermItr) Type() itr.Type  { return itr.TypeDiffTerm }
func (*TermItr) Value1() int64   { return 0 }
func (*TermItr) Value2() int64   { return 0 }
func (t *TermItr) Count() int64  { return t.count }
func (t *TermItr) HasNext() bool { return t.keys.HasNext() }

func (t *TermItr) Next() {
	key, c := t.keys.Next()
	t.SetKey(key)
	t.count = c.NElements(t.perm)
}

func (t *TermItr) GotoKey(k int64) error { return t.keys.GotoKey(k) }

func (t *TermItr) MoveTo(int64, int64) error { return itr.Unsupported(itr.TypeDiffTerm, "MoveTo") }
func (t *TermItr) Mark() error               { return itr.Unsupported(itr.TypeDiffTerm, "Mark") }
func (t *TermItr) Reset(int) error           { return itr.Unsupported(itr.TypeDiffTerm, "Reset") }
func (t *TermItr) IgnoreSecondColumn() error {
	return itr.Unsupported(itr.TypeDiffTerm, "IgnoreSecondColumn")
}

func (t *TermItr) Cardinality() (uint64, error) { return uint64(t.nkeys), nil }
func (t *TermItr) EstCardinality() uint64       { return uint64(t.nkeys) }

// NUniqueKeys is the number of listed keys the layer introduces or removes
// entirely.
func (t *TermItr) NUniqueKeys() int64 { return t.nunique }

func (t *TermItr) Err() error {
	if err := t.Base.Err(); err != nil {
		return err
	}
	if t.keys == nil {
		return nil
	}
	return t.keys.Err()
}

func (t *TermItr) Clear() { t.keys = nil }
