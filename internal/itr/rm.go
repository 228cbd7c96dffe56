package itr

// RmItr yields the rows of a main iterator that are not in a removal
// iterator. Both inputs must be ordered the same way.
type RmItr struct {
	Base

	main PairItr
	rm   PairItr

	rmRow    Row
	rmCount  int64
	rmValid  bool
	rmPrimed bool

	scan           bool
	ignore         bool
	delNFirstTerms int64

	ready   bool
	next    Row
	nextCnt int64
	cur     Row
	curCnt  int64

	mark rmState
}

type rmState struct {
	rmRow    Row
	rmCount  int64
	rmValid  bool
	rmPrimed bool
	ready    bool
	next     Row
	nextCnt  int64
	cur      Row
	curCnt   int64
}

// NewRm returns main minus rm. delNFirstTerms is the number of first-column
// values that rm removes entirely; it corrects Cardinality when the second
// column is ignored.
func NewRm(main, rm PairItr, delNFirstTerms int64) *RmItr {
	r := &RmItr{}
	r.Init(main, rm, delNFirstTerms)
	return r
}

// Init rebinds r.
func (r *RmItr) Init(main, rm PairItr, delNFirstTerms int64) {
	r.InitBase()
	r.cur, r.curCnt = Row{}, 0
	r.SetKey(main.Key())
	r.main, r.rm = main, rm
	r.scan = IsScanLike(main)
	r.delNFirstTerms = delNFirstTerms
	r.rmValid, r.rmPrimed = false, false
	r.ignore = false
	r.ready = false
}

func (*RmItr) Type() Type            { return TypeRm }
func (r *RmItr) ScanLike() bool      { return r.scan }
func (r *RmItr) Key() int64          { return r.cur.Key }
func (r *RmItr) Value1() int64       { return r.cur.V1 }
func (r *RmItr) Value2() int64       { return r.cur.V2 }
func (r *RmItr) Children() []PairItr { return []PairItr{r.main, r.rm} }

func (r *RmItr) SetKey(k int64) {
	r.Base.SetKey(k)
	r.cur.Key = k
}

func (r *RmItr) Count() int64 {
	if r.ignore {
		return r.curCnt
	}
	return 1
}

func (r *RmItr) cmp(a, b Row) int {
	if r.scan && a.Key != b.Key {
		if a.Key < b.Key {
			return -1
		}
		return 1
	}
	if a.V1 != b.V1 {
		if a.V1 < b.V1 {
			return -1
		}
		return 1
	}
	if r.ignore || a.V2 == b.V2 {
		return 0
	}
	if a.V2 < b.V2 {
		return -1
	}
	return 1
}

func (r *RmItr) fetchRm() {
	r.rmPrimed = true
	if !r.rm.HasNext() {
		r.rmValid = false
		return
	}
	r.rm.Next()
	r.rmRow = Row{r.rm.Key(), r.rm.Value1(), r.rm.Value2()}
	r.rmCount = r.rm.Count()
	r.rmValid = true
}

func (r *RmItr) HasNext() bool {
	if r.ready {
		return true
	}
	if !r.rmPrimed {
		r.fetchRm()
	}
	for r.main.HasNext() {
		r.main.Next()
		row := Row{r.main.Key(), r.main.Value1(), r.main.Value2()}
		cnt := r.main.Count()
		for r.rmValid && r.cmp(r.rmRow, row) < 0 {
			r.fetchRm()
		}
		if !r.rmValid || r.cmp(r.rmRow, row) > 0 {
			r.next, r.nextCnt, r.ready = row, cnt, true
			return true
		}
		if r.ignore {
			if left := cnt - r.rmCount; left > 0 {
				r.next, r.nextCnt, r.ready = row, left, true
				return true
			}
		}
	}
	return false
}

func (r *RmItr) Next() {
	if !r.HasNext() {
		return
	}
	r.cur, r.curCnt = r.next, r.nextCnt
	r.ready = false
}

func (r *RmItr) MoveTo(c1, c2 int64) error {
	target := Row{Key: r.cur.Key, V1: c1, V2: c2}
	if r.ready {
		target.Key = r.next.Key
		if r.cmp(r.next, target) >= 0 {
			return nil
		}
		r.ready = false
	}
	if err := r.main.MoveTo(c1, c2); err != nil {
		return err
	}
	if !r.rmPrimed {
		r.fetchRm()
	}
	if r.rmValid && r.cmp(r.rmRow, target) < 0 {
		if err := r.rm.MoveTo(c1, c2); err != nil {
			return err
		}
		r.fetchRm()
	}
	return nil
}

func (r *RmItr) Mark() error {
	if err := r.main.Mark(); err != nil {
		return err
	}
	if err := r.rm.Mark(); err != nil {
		return err
	}
	r.mark = rmState{
		rmRow: r.rmRow, rmCount: r.rmCount, rmValid: r.rmValid, rmPrimed: r.rmPrimed,
		ready: r.ready, next: r.next, nextCnt: r.nextCnt, cur: r.cur, curCnt: r.curCnt,
	}
	return nil
}

func (r *RmItr) Reset(col int) error {
	if err := r.main.Reset(col); err != nil {
		return err
	}
	if err := r.rm.Reset(col); err != nil {
		return err
	}
	s := r.mark
	r.rmRow, r.rmCount, r.rmValid, r.rmPrimed = s.rmRow, s.rmCount, s.rmValid, s.rmPrimed
	r.ready, r.next, r.nextCnt, r.cur, r.curCnt = s.ready, s.next, s.nextCnt, s.cur, s.curCnt
	return nil
}

func (r *RmItr) IgnoreSecondColumn() error {
	if err := r.main.IgnoreSecondColumn(); err != nil {
		return err
	}
	if err := r.rm.IgnoreSecondColumn(); err != nil {
		return err
	}
	r.ignore = true
	return nil
}

func (r *RmItr) GotoKey(int64) error { return Unsupported(TypeRm, "GotoKey") }

func (r *RmItr) Cardinality() (uint64, error) {
	m, err := r.main.Cardinality()
	if err != nil {
		return 0, err
	}
	var sub uint64
	if r.ignore {
		sub = uint64(r.delNFirstTerms)
	} else {
		if sub, err = r.rm.Cardinality(); err != nil {
			return 0, err
		}
	}
	if sub > m {
		return 0, nil
	}
	return m - sub, nil
}

func (r *RmItr) EstCardinality() uint64 { return r.main.EstCardinality() }

func (r *RmItr) Err() error {
	if err := r.Base.Err(); err != nil {
		return err
	}
	if err := r.main.Err(); err != nil {
		return err
	}
	return r.rm.Err()
}

func (r *RmItr) Clear() {
	r.main, r.rm = nil, nil
}
