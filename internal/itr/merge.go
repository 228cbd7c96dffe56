package itr

import "sort"

type head struct {
	it    PairItr
	row   Row
	count int64
}

// merger is a lazy k-way merge over child iterators. Heads are kept sorted
// in descending order so the smallest row sits at the end of the slice.
// Rows that compare equal across children are emitted once.
type merger struct {
	children []PairItr
	heads    []head
	scratch  []PairItr
	scan     bool
	ignore   bool
	started  bool
	ready    bool
	next     Row
	nextCnt  int64
	cur      Row
	curCnt   int64
}

func (m *merger) reset(children []PairItr, scan bool) {
	m.children = children
	m.heads = m.heads[:0]
	m.scan = scan
	m.ignore = false
	m.started = false
	m.ready = false
	m.cur, m.curCnt = Row{}, 0
}

func (m *merger) cmp(a, b Row) int {
	if m.scan {
		if a.Key < b.Key {
			return -1
		} else if a.Key > b.Key {
			return 1
		}
	}
	if a.V1 < b.V1 {
		return -1
	} else if a.V1 > b.V1 {
		return 1
	}
	if m.ignore {
		return 0
	}
	if a.V2 < b.V2 {
		return -1
	} else if a.V2 > b.V2 {
		return 1
	}
	return 0
}

func (m *merger) push(h head) {
	i := len(m.heads)
	m.heads = append(m.heads, h)
	for i > 0 && m.cmp(m.heads[i-1].row, h.row) < 0 {
		m.heads[i] = m.heads[i-1]
		i--
	}
	m.heads[i] = h
}

func (m *merger) advance(it PairItr) {
	if !it.HasNext() {
		return
	}
	it.Next()
	m.push(head{it: it, row: Row{it.Key(), it.Value1(), it.Value2()}, count: it.Count()})
}

func (m *merger) start() {
	m.started = true
	m.heads = m.heads[:0]
	for _, c := range m.children {
		if c.HasNext() {
			c.Next()
			m.heads = append(m.heads, head{it: c, row: Row{c.Key(), c.Value1(), c.Value2()}, count: c.Count()})
		}
	}
	sort.Slice(m.heads, func(i, j int) bool { return m.cmp(m.heads[i].row, m.heads[j].row) > 0 })
}

func (m *merger) hasNext() bool {
	if m.ready {
		return true
	}
	if !m.started {
		m.start()
	}
	if len(m.heads) == 0 {
		return false
	}
	top := m.heads[len(m.heads)-1]
	m.heads = m.heads[:len(m.heads)-1]
	m.next, m.nextCnt = top.row, top.count
	if !m.ignore {
		m.nextCnt = 1
	}
	m.advance(top.it)
	for len(m.heads) > 0 && m.cmp(m.heads[len(m.heads)-1].row, m.next) == 0 {
		h := m.heads[len(m.heads)-1]
		m.heads = m.heads[:len(m.heads)-1]
		if m.ignore {
			m.nextCnt += h.count
		}
		m.advance(h.it)
	}
	m.ready = true
	return true
}

func (m *merger) nextRow() {
	if !m.hasNext() {
		return
	}
	m.cur, m.curCnt = m.next, m.nextCnt
	m.ready = false
}

func (m *merger) moveTo(target Row) error {
	if !m.started {
		m.start()
	}
	if m.ready && m.cmp(m.next, target) >= 0 {
		return nil
	}
	m.ready = false
	n := 0
	m.scratch = m.scratch[:0]
	for _, h := range m.heads {
		if m.cmp(h.row, target) >= 0 {
			m.heads[n] = h
			n++
		} else {
			m.scratch = append(m.scratch, h.it)
		}
	}
	m.heads = m.heads[:n]
	var firstErr error
	for _, it := range m.scratch {
		if err := it.MoveTo(target.V1, target.V2); err != nil && firstErr == nil {
			firstErr = err
		}
		m.advance(it)
	}
	m.scratch = m.scratch[:0]
	return firstErr
}

func (m *merger) ignoreSecondColumn(t Type) error {
	if m.started {
		return Unsupported(t, "IgnoreSecondColumn after iteration started")
	}
	for _, c := range m.children {
		if err := c.IgnoreSecondColumn(); err != nil {
			return err
		}
	}
	m.ignore = true
	return nil
}

func (m *merger) count() int64 {
	if m.ignore {
		return m.curCnt
	}
	return 1
}

func (m *merger) childErr() error {
	for _, c := range m.children {
		if err := c.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (m *merger) estCardinality() uint64 {
	var n uint64
	for _, c := range m.children {
		n += c.EstCardinality()
	}
	return n
}

func (m *merger) clear() {
	m.children = nil
	for i := range m.heads {
		m.heads[i] = head{}
	}
	m.heads = m.heads[:0]
	m.started, m.ready = false, false
}

// CompositeItr merges the pairs of one key across several iterators, the
// base table first followed by the additions of update layers.
type CompositeItr struct {
	Base
	m           merger
	nFirstTerms int64
}

// NewComposite merges children, which must all iterate the same key.
// nFirstTerms is the number of first-column values the later children add
// on top of children[0]; it is used when the second column is ignored.
func NewComposite(key int64, children []PairItr, nFirstTerms int64) *CompositeItr {
	c := &CompositeItr{}
	c.Init(key, children, nFirstTerms)
	return c
}

// Init rebinds c to a new set of children.
func (c *CompositeItr) Init(key int64, children []PairItr, nFirstTerms int64) {
	c.InitBase()
	c.SetKey(key)
	c.m.reset(children, false)
	c.nFirstTerms = nFirstTerms
}

func (*CompositeItr) Type() Type            { return TypeComposite }
func (c *CompositeItr) Value1() int64       { return c.m.cur.V1 }
func (c *CompositeItr) Value2() int64       { return c.m.cur.V2 }
func (c *CompositeItr) Count() int64        { return c.m.count() }
func (c *CompositeItr) HasNext() bool       { return c.m.hasNext() }
func (c *CompositeItr) Next()               { c.m.nextRow() }
func (c *CompositeItr) Children() []PairItr { return c.m.children }

func (c *CompositeItr) MoveTo(c1, c2 int64) error {
	return c.m.moveTo(Row{Key: c.Key(), V1: c1, V2: c2})
}

func (c *CompositeItr) Mark() error         { return Unsupported(TypeComposite, "Mark") }
func (c *CompositeItr) Reset(int) error     { return Unsupported(TypeComposite, "Reset") }
func (c *CompositeItr) GotoKey(int64) error { return Unsupported(TypeComposite, "GotoKey") }

func (c *CompositeItr) IgnoreSecondColumn() error {
	return c.m.ignoreSecondColumn(TypeComposite)
}

func (c *CompositeItr) Cardinality() (uint64, error) {
	if len(c.m.children) == 0 {
		return 0, nil
	}
	if c.m.ignore {
		n, err := c.m.children[0].Cardinality()
		if err != nil {
			return 0, err
		}
		return n + uint64(c.nFirstTerms), nil
	}
	var total uint64
	for _, ch := range c.m.children {
		n, err := ch.Cardinality()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (c *CompositeItr) EstCardinality() uint64 { return c.m.estCardinality() }

func (c *CompositeItr) Err() error {
	if err := c.Base.Err(); err != nil {
		return err
	}
	return c.m.childErr()
}

func (c *CompositeItr) Clear() { c.m.clear() }

// CompositeScanItr merges full scans ordered by (key, v1, v2).
type CompositeScanItr struct {
	Base
	m            merger
	inputSize    uint64
	nFirstTables uint64
}

// NewCompositeScan merges scan children. inputSize and nFirstTables are the
// cardinalities reported with and without the second column.
func NewCompositeScan(children []PairItr, inputSize, nFirstTables uint64) *CompositeScanItr {
	c := &CompositeScanItr{}
	c.Init(children, inputSize, nFirstTables)
	return c
}

// Init rebinds c to a new set of children. Exhausted children are skipped
// by the merge but stay in Children, so they are released with c.
func (c *CompositeScanItr) Init(children []PairItr, inputSize, nFirstTables uint64) {
	c.InitBase()
	c.m.reset(children, true)
	c.inputSize = inputSize
	c.nFirstTables = nFirstTables
}

func (*CompositeScanItr) Type() Type            { return TypeCompositeScan }
func (c *CompositeScanItr) Key() int64          { return c.m.cur.Key }
func (c *CompositeScanItr) Value1() int64       { return c.m.cur.V1 }
func (c *CompositeScanItr) Value2() int64       { return c.m.cur.V2 }
func (c *CompositeScanItr) Count() int64        { return c.m.count() }
func (c *CompositeScanItr) HasNext() bool       { return c.m.hasNext() }
func (c *CompositeScanItr) Next()               { c.m.nextRow() }
func (c *CompositeScanItr) Children() []PairItr { return c.m.children }

func (c *CompositeScanItr) MoveTo(c1, c2 int64) error {
	return c.m.moveTo(Row{Key: c.m.cur.Key, V1: c1, V2: c2})
}

func (c *CompositeScanItr) Mark() error         { return Unsupported(TypeCompositeScan, "Mark") }
func (c *CompositeScanItr) Reset(int) error     { return Unsupported(TypeCompositeScan, "Reset") }
func (c *CompositeScanItr) GotoKey(int64) error { return Unsupported(TypeCompositeScan, "GotoKey") }

func (c *CompositeScanItr) IgnoreSecondColumn() error {
	return c.m.ignoreSecondColumn(TypeCompositeScan)
}

func (c *CompositeScanItr) Cardinality() (uint64, error) {
	if c.m.ignore {
		return c.nFirstTables, nil
	}
	return c.inputSize, nil
}

func (c *CompositeScanItr) EstCardinality() uint64 {
	n, _ := c.Cardinality()
	return n
}

func (c *CompositeScanItr) Err() error {
	if err := c.Base.Err(); err != nil {
		return err
	}
	return c.m.childErr()
}

func (c *CompositeScanItr) Clear() { c.m.clear() }
