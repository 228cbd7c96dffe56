package itr

// TermEntry locates the table of one key in a permutation.
type TermEntry struct {
	Key       int64
	File      uint16
	Mark      int64
	Strategy  byte
	NElements int64
}

// TermCursor is a term list that exposes where each key's table lives.
type TermCursor interface {
	PairItr
	Entry() TermEntry
}

// ScanSource provides the tables a ScanItr walks.
type ScanSource interface {
	// TermList returns the key list of p, or nil if p is not stored.
	TermList(p int) (TermCursor, error)
	// OpenTable opens the table of e in permutation p.
	OpenTable(p int, e TermEntry) (PairItr, error)
	// OpenReversed serves key in permutation p from the reverse permutation.
	OpenReversed(p int, key int64) (PairItr, error)
	Release(it PairItr)
	InputSize() uint64
	NFirstTables(p int) uint64
}

// ScanItr walks every table of a permutation in key order. When the
// permutation is not stored its keys come from the reverse permutation,
// which shares the leading column.
type ScanItr struct {
	Base

	src      ScanSource
	perm     int
	reversed bool
	terms    TermCursor
	table    PairItr
	tableKey int64
	ignore   bool

	v1, v2 int64
	count  int64

	marked    PairItr
	markKey   int64
	markTable int64
	markV1    int64
	markV2    int64
	markCount int64
	hasMark   bool
}

// NewScan opens a scan of permutation p.
func NewScan(src ScanSource, p, reverse int) (*ScanItr, error) {
	s := &ScanItr{}
	if err := s.Init(src, p, reverse); err != nil {
		return nil, err
	}
	return s, nil
}

// Init rebinds s. reverse is the permutation sharing p's leading column.
func (s *ScanItr) Init(src ScanSource, p, reverse int) error {
	s.InitBase()
	s.src, s.perm = src, p
	s.table, s.marked, s.hasMark = nil, nil, false
	s.ignore = false
	terms, err := src.TermList(p)
	if err != nil {
		return err
	}
	s.reversed = false
	if terms == nil {
		if terms, err = src.TermList(reverse); err != nil {
			return err
		}
		if terms == nil {
			return Unsupported(TypeScan, "scan of a permutation without stored tables")
		}
		s.reversed = true
	}
	s.terms = terms
	return nil
}

func (*ScanItr) Type() Type      { return TypeScan }
func (s *ScanItr) Value1() int64 { return s.v1 }
func (s *ScanItr) Value2() int64 { return s.v2 }
func (s *ScanItr) Count() int64  { return s.count }

// Perm returns the scanned permutation.
func (s *ScanItr) Perm() int { return s.perm }

func (s *ScanItr) releaseTable() {
	if s.table != nil && s.table != s.marked {
		s.src.Release(s.table)
	}
	s.table = nil
}

func (s *ScanItr) HasNext() bool {
	for {
		if s.table != nil && s.table.HasNext() {
			return true
		}
		if s.table != nil {
			if err := s.table.Err(); err != nil {
				s.SetErr(err)
				return false
			}
		}
		s.releaseTable()
		if !s.terms.HasNext() {
			return false
		}
		s.terms.Next()
		var (
			t   PairItr
			err error
		)
		if s.reversed {
			t, err = s.src.OpenReversed(s.perm, s.terms.Key())
		} else {
			t, err = s.src.OpenTable(s.perm, s.terms.Entry())
		}
		if err != nil {
			s.SetErr(err)
			return false
		}
		if s.ignore {
			if err := t.IgnoreSecondColumn(); err != nil {
				s.src.Release(t)
				s.SetErr(err)
				return false
			}
		}
		s.table = t
		s.tableKey = s.terms.Key()
	}
}

func (s *ScanItr) Next() {
	if !s.HasNext() {
		return
	}
	s.table.Next()
	s.SetKey(s.tableKey)
	s.v1, s.v2, s.count = s.table.Value1(), s.table.Value2(), s.table.Count()
}

// MoveTo seeks within the current key only.
func (s *ScanItr) MoveTo(c1, c2 int64) error {
	if s.table == nil || s.tableKey != s.Key() {
		return nil
	}
	return s.table.MoveTo(c1, c2)
}

func (s *ScanItr) Mark() error {
	if err := s.terms.Mark(); err != nil {
		return err
	}
	if s.marked != nil && s.marked != s.table {
		s.src.Release(s.marked)
	}
	s.marked = s.table
	if s.table != nil {
		if err := s.table.Mark(); err != nil {
			return err
		}
	}
	s.markKey, s.markTable = s.Key(), s.tableKey
	s.markV1, s.markV2, s.markCount = s.v1, s.v2, s.count
	s.hasMark = true
	return nil
}

func (s *ScanItr) Reset(col int) error {
	if !s.hasMark {
		return nil
	}
	if err := s.terms.Reset(col); err != nil {
		return err
	}
	if s.table != s.marked {
		s.releaseTable()
	}
	s.table = s.marked
	s.SetKey(s.markKey)
	s.tableKey = s.markTable
	s.v1, s.v2, s.count = s.markV1, s.markV2, s.markCount
	if s.table != nil {
		return s.table.Reset(col)
	}
	return nil
}

func (s *ScanItr) IgnoreSecondColumn() error {
	s.ignore = true
	if s.table != nil {
		return s.table.IgnoreSecondColumn()
	}
	return nil
}

// GotoKey skips to the first key >= k.
func (s *ScanItr) GotoKey(k int64) error {
	if s.table != nil && s.tableKey >= k {
		return nil
	}
	if err := s.terms.GotoKey(k); err != nil {
		return err
	}
	s.releaseTable()
	return nil
}

func (s *ScanItr) Cardinality() (uint64, error) {
	if s.ignore {
		return s.src.NFirstTables(s.perm), nil
	}
	return s.src.InputSize(), nil
}

func (s *ScanItr) EstCardinality() uint64 {
	n, _ := s.Cardinality()
	return n
}

func (s *ScanItr) Err() error {
	if err := s.Base.Err(); err != nil {
		return err
	}
	return s.terms.Err()
}

func (s *ScanItr) Clear() {
	s.releaseTable()
	if s.marked != nil {
		s.src.Release(s.marked)
		s.marked = nil
	}
	if s.terms != nil {
		s.src.Release(s.terms)
		s.terms = nil
	}
	s.src = nil
}
