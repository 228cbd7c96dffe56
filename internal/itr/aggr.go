package itr

// SecondOpener opens the table an aggregated row points to.
type SecondOpener interface {
	// OpenSecond returns an iterator over the table at coords restricted to
	// Value1 == c1 and, if set, Value2 == c2.
	OpenSecond(coords, c1, c2 int64) (PairItr, error)
	Release(it PairItr)
}

// PackCoordinates packs a file and mark into the second column of an
// aggregated table.
func PackCoordinates(file uint16, mark int64) int64 {
	return int64(file)<<40 | mark&(1<<40-1)
}

// UnpackCoordinates reverses PackCoordinates.
func UnpackCoordinates(c int64) (file uint16, mark int64) {
	return uint16(c >> 40), c & (1<<40 - 1)
}

// AggrItr serves an aggregated POS or PSO table. Every row of main is
// (v1, coordinates) and the coordinates locate the table in the reverse
// permutation that holds the third column for (key, v1).
type AggrItr struct {
	Base

	main   PairItr
	opener SecondOpener
	second PairItr

	group    int64
	hasGroup bool
	ignore   bool
	groupCnt int64
	pending  bool
	pendC1   int64
	pendC2   int64

	v1    int64
	v2    int64
	count int64

	marked     PairItr
	markGroup  int64
	markHas    bool
	markGCnt   int64
	markV1     int64
	markV2     int64
	markCount  int64
	markActive bool
}

// NewAggr wraps main.
func NewAggr(key int64, main PairItr, opener SecondOpener) *AggrItr {
	a := &AggrItr{}
	a.Init(key, main, opener)
	return a
}

// Init rebinds a. Constraints must be set after Init.
func (a *AggrItr) Init(key int64, main PairItr, opener SecondOpener) {
	a.InitBase()
	a.SetKey(key)
	a.main, a.opener = main, opener
	a.second, a.marked = nil, nil
	a.hasGroup, a.ignore, a.pending, a.markActive = false, false, false, false
}

func (*AggrItr) Type() Type      { return TypeAggr }
func (a *AggrItr) Value1() int64 { return a.v1 }
func (a *AggrItr) Value2() int64 { return a.v2 }
func (a *AggrItr) Count() int64  { return a.count }

func (a *AggrItr) Children() []PairItr { return []PairItr{a.main} }

func (a *AggrItr) dropSecond() {
	if a.second != nil && a.second != a.marked {
		a.opener.Release(a.second)
	}
	a.second = nil
	a.hasGroup = false
}

// openGroup advances main to its next row and opens the matching table.
// It returns false when main is exhausted.
func (a *AggrItr) openGroup() bool {
	for a.main.HasNext() {
		a.main.Next()
		sec, err := a.opener.OpenSecond(a.main.Value2(), a.Key(), a.Constraint2())
		if err != nil {
			a.SetErr(err)
			return false
		}
		a.group = a.main.Value1()
		a.hasGroup = true
		if a.ignore {
			n, err := sec.Cardinality()
			a.opener.Release(sec)
			if err != nil {
				a.SetErr(err)
				return false
			}
			a.pending = false
			a.groupCnt = int64(n)
			if n > 0 {
				return true
			}
			a.hasGroup = false
			continue
		}
		a.second = sec
		if a.pending {
			a.pending = false
			if a.group == a.pendC1 {
				if err := sec.MoveTo(a.Key(), a.pendC2); err != nil {
					a.SetErr(err)
					return false
				}
			}
		}
		if sec.HasNext() {
			return true
		}
		a.dropSecond()
	}
	return false
}

func (a *AggrItr) HasNext() bool {
	if a.hasGroup {
		if a.ignore {
			if a.groupCnt > 0 {
				return true
			}
		} else if a.second.HasNext() {
			return true
		}
		a.dropSecond()
	}
	return a.openGroup()
}

func (a *AggrItr) Next() {
	if !a.HasNext() {
		return
	}
	a.v1 = a.group
	if a.ignore {
		a.count = a.groupCnt
		a.groupCnt = 0
		return
	}
	a.second.Next()
	a.v2 = a.second.Value2()
	a.count = 1
}

func (a *AggrItr) MoveTo(c1, c2 int64) error {
	if a.hasGroup && a.group == c1 && !a.ignore {
		return a.second.MoveTo(a.Key(), c2)
	}
	if a.hasGroup && a.group >= c1 {
		return nil
	}
	a.dropSecond()
	if err := a.main.MoveTo(c1, 0); err != nil {
		return err
	}
	a.pending, a.pendC1, a.pendC2 = true, c1, c2
	return nil
}

func (a *AggrItr) Mark() error {
	if err := a.main.Mark(); err != nil {
		return err
	}
	if a.marked != nil && a.marked != a.second {
		a.opener.Release(a.marked)
	}
	a.marked = nil
	if a.hasGroup && !a.ignore {
		if err := a.second.Mark(); err != nil {
			return err
		}
		a.marked = a.second
	}
	a.markGroup, a.markHas, a.markGCnt = a.group, a.hasGroup, a.groupCnt
	a.markV1, a.markV2, a.markCount = a.v1, a.v2, a.count
	a.markActive = true
	return nil
}

func (a *AggrItr) Reset(col int) error {
	if !a.markActive {
		return nil
	}
	if err := a.main.Reset(col); err != nil {
		return err
	}
	if a.second != nil && a.second != a.marked {
		a.opener.Release(a.second)
	}
	a.second = a.marked
	a.group, a.groupCnt = a.markGroup, a.markGCnt
	a.hasGroup = a.markHas && (a.ignore || a.marked != nil)
	a.v1, a.v2, a.count = a.markV1, a.markV2, a.markCount
	a.pending = false
	if a.second != nil {
		return a.second.Reset(col)
	}
	return nil
}

// IgnoreSecondColumn reports one row per first-column value. The first
// column of the main table is already unique.
func (a *AggrItr) IgnoreSecondColumn() error {
	a.ignore = true
	return nil
}

func (a *AggrItr) GotoKey(int64) error { return Unsupported(TypeAggr, "GotoKey") }

// Cardinality is only known once the first column is fixed.
func (a *AggrItr) Cardinality() (uint64, error) {
	if a.Constraint1() == NoConstraint {
		return 0, Unsupported(TypeAggr, "Cardinality without constraint")
	}
	if !a.HasNext() {
		return 0, a.Err()
	}
	if a.ignore {
		return 1, nil
	}
	return a.second.Cardinality()
}

func (a *AggrItr) EstCardinality() uint64 {
	n := a.main.EstCardinality()
	if a.second != nil {
		if m := a.second.EstCardinality(); m > 0 {
			n *= m
		}
	}
	return n
}

func (a *AggrItr) Err() error {
	if err := a.Base.Err(); err != nil {
		return err
	}
	return a.main.Err()
}

func (a *AggrItr) Clear() {
	a.dropSecond()
	if a.marked != nil {
		a.opener.Release(a.marked)
		a.marked = nil
	}
	a.main, a.opener = nil, nil
}
