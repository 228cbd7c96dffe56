package diff

import "github.com/hupe1980/trident/internal/itr"

// ScanItr walks every row of one permutation of a general layer, key by
// key.
type ScanItr struct {
	itr.Base

	g      *general
	perm   int
	keys   keyCursor
	cur    itr.ArrayItr
	hasCur bool
	ignore bool

	v1, v2 int64
	count  int64
}

func newScanItr(g *general, p int, keys keyCursor) *ScanItr {
	s := &ScanItr{g: g, perm: p, keys: keys}
	s.InitBase()
	return s
}

func (*ScanItr) Type() itr.Type  { return itr.TypeDiffScan }
func (s *ScanItr) Value1() int64 { return s.v1 }
func (s *ScanItr) Value2() int64 { return s.v2 }
func (s *ScanItr) Count() int64  { return s.count }

func (s *ScanItr) HasNext() bool {
	for {
		if s.hasCur && s.cur.HasNext() {
			return true
		}
		if s.keys == nil || !s.keys.HasNext() {
			return false
		}
		key, c := s.keys.Next()
		t, _ := c.Get(s.perm)
		s.cur.Init(key, s.g.pairs[s.perm][t.Mark:t.Mark+t.NElements])
		if s.ignore {
			_ = s.cur.IgnoreSecondColumn()
		}
		s.hasCur = true
	}
}

func (s *ScanItr) Next() {
	s.cur.Next()
	s.SetKey(s.cur.Key())
	s.v1, s.v2, s.count = s.cur.Value1(), s.cur.Value2(), s.cur.Count()
}

// MoveTo seeks within the current key only.
func (s *ScanItr) MoveTo(c1, c2 int64) error {
	if !s.hasCur {
		return nil
	}
	return s.cur.MoveTo(c1, c2)
}

// GotoKey skips to the first key >= k.
func (s *ScanItr) GotoKey(k int64) error {
	s.hasCur = false
	return s.keys.GotoKey(k)
}

func (s *ScanItr) IgnoreSecondColumn() error {
	s.ignore = true
	if s.hasCur {
		return s.cur.IgnoreSecondColumn()
	}
	return nil
}

func (s *ScanItr) Mark() error     { return itr.Unsupported(itr.TypeDiffScan, "Mark") }
func (s *ScanItr) Reset(int) error { return itr.Unsupported(itr.TypeDiffScan, "Reset") }

func (s *ScanItr) Cardinality() (uint64, error) { return s.EstCardinality(), nil }

func (s *ScanItr) EstCardinality() uint64 {
	if s.ignore {
		return uint64(s.g.NFirstTables(s.perm))
	}
	return uint64(s.g.Size())
}

func (s *ScanItr) Err() error {
	if err := s.Base.Err(); err != nil {
		return err
	}
	if s.keys == nil {
		return nil
	}
	return s.keys.Err()
}

func (s *ScanItr) Clear() {
	s.keys = nil
	s.cur.Clear()
	s.hasCur = false
}
