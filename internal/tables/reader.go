package tables

import (
	"fmt"
	"sync"

	"github.com/hupe1980/trident/internal/itr"
)

// cursor is the decoding position inside a table. Its meaning per field
// depends on the layout; it is copied to implement Mark.
type cursor struct {
	pos   int
	pos2  int
	row   int64
	base1 int64
	base2 int64
	group int64
	left  int64
}

// codec decodes one table layout.
type codec interface {
	open(s Strategy, data []byte) error
	start() cursor
	more(c *cursor) bool
	read(c *cursor) (v1, v2 int64)
	// seek advances c so that the next read yields the first pair not
	// below (c1, c2).
	seek(c *cursor, c1, c2 int64)
	// size returns the number of pairs, or -1 if it is not stored.
	size() int64
}

// runSkipper is implemented by layouts that know the length of a group.
type runSkipper interface {
	skipRun(c *cursor, v1 int64) int64
}

func less(a1, a2, b1, b2 int64) bool {
	return a1 < b1 || (a1 == b1 && a2 < b2)
}

// linearSeek reads forward until the next pair is not below (c1, c2).
func linearSeek(cd codec, c *cursor, c1, c2 int64) {
	for cd.more(c) {
		save := *c
		v1, v2 := cd.read(c)
		if !less(v1, v2, c1, c2) {
			*c = save
			return
		}
	}
}

// Table iterates the pairs of one binary table. It serves every layout and
// is obtained from Open.
type Table struct {
	itr.Base

	strat Strategy
	typ   itr.Type
	cd    codec
	data  []byte

	first cursor
	cur   cursor
	done  bool
	ready bool
	n1    int64
	n2    int64

	v1, v2 int64
	count  int64
	ignore bool
	card   int64

	mark tableMark
}

type tableMark struct {
	cur   cursor
	done  bool
	ready bool
	n1    int64
	n2    int64
	v1    int64
	v2    int64
	count int64
}

var tablePool = sync.Pool{New: func() any { return &Table{} }}

// Open returns a pooled reader over data, a table stored with strategy s,
// restricted to the given constraints (itr.NoConstraint for none).
func Open(s Strategy, key int64, data []byte, c1, c2 int64) (*Table, error) {
	t := tablePool.Get().(*Table)
	t.Revive()
	if err := t.Init(s, key, data, c1, c2); err != nil {
		t.Release()
		return nil, err
	}
	t.SetOwnership(itr.OwnedByPool)
	return t, nil
}

// Release returns t to the pool. It reports false if t was already released.
func (t *Table) Release() bool {
	if !t.MarkReleased() {
		return false
	}
	t.Clear()
	tablePool.Put(t)
	return true
}

func newCodec(s Strategy) (codec, error) {
	switch s.StorageType() {
	case Row:
		return &rowCodec{}, nil
	case Cluster:
		return &clusterCodec{}, nil
	case Column:
		return &columnCodec{}, nil
	case NewColumn:
		return &newColumnCodec{}, nil
	case NewRow:
		return &newRowCodec{}, nil
	case NewCluster:
		return &newClusterCodec{}, nil
	}
	return nil, corrupt(s, "unknown storage type %d", s.StorageType())
}

// Init binds t to a table.
func (t *Table) Init(s Strategy, key int64, data []byte, c1, c2 int64) (err error) {
	t.InitBase()
	t.SetKey(key)
	t.SetConstraint1(c1)
	t.SetConstraint2(c2)
	if t.cd == nil || t.strat.StorageType() != s.StorageType() {
		if t.cd, err = newCodec(s); err != nil {
			return err
		}
	}
	t.strat = s
	t.typ = itr.Type(s.StorageType())
	t.data = data
	t.ready, t.done, t.ignore = false, false, false
	t.card = -1
	t.v1, t.v2, t.count = 0, 0, 0
	t.mark = tableMark{}
	defer func() {
		if r := recover(); r != nil {
			err = corrupt(s, "%v", r)
		}
	}()
	if err := t.cd.open(s, data); err != nil {
		return err
	}
	t.cur = t.cd.start()
	if c1 != itr.NoConstraint {
		t.cd.seek(&t.cur, c1, c2)
	}
	t.first = t.cur
	return nil
}

// Strategy returns the strategy of the bound table.
func (t *Table) Strategy() Strategy { return t.strat }

func (t *Table) Type() itr.Type   { return t.typ }
func (t *Table) Value1() int64    { return t.v1 }
func (t *Table) Value2() int64    { return t.v2 }
func (t *Table) Count() int64     { return t.count }
func (t *Table) AllowMerge() bool { return true }

func (t *Table) inRange(v1, v2 int64) bool {
	if c := t.Constraint1(); c != itr.NoConstraint && v1 != c {
		return false
	}
	if c := t.Constraint2(); c != itr.NoConstraint && v2 != c {
		return false
	}
	return true
}

func (t *Table) HasNext() (ok bool) {
	if t.ready {
		return true
	}
	if t.done || t.data == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			t.SetErr(corrupt(t.strat, "%v", r))
			t.done = true
			ok = false
		}
	}()
	if !t.cd.more(&t.cur) {
		t.done = true
		return false
	}
	save := t.cur
	v1, v2 := t.cd.read(&t.cur)
	if !t.inRange(v1, v2) {
		t.cur = save
		t.done = true
		return false
	}
	t.n1, t.n2 = v1, v2
	t.ready = true
	return true
}

func (t *Table) Next() {
	if !t.HasNext() {
		return
	}
	t.ready = false
	t.v1, t.v2, t.count = t.n1, t.n2, 1
	if t.ignore {
		t.count += t.skipRun(t.v1)
	}
}

func (t *Table) skipRun(v1 int64) (n int64) {
	defer func() {
		if r := recover(); r != nil {
			t.SetErr(corrupt(t.strat, "%v", r))
			t.done = true
		}
	}()
	if s, ok := t.cd.(runSkipper); ok {
		return s.skipRun(&t.cur, v1)
	}
	for t.cd.more(&t.cur) {
		save := t.cur
		a, _ := t.cd.read(&t.cur)
		if a != v1 {
			t.cur = save
			break
		}
		n++
	}
	return n
}

func (t *Table) MoveTo(c1, c2 int64) (err error) {
	if t.ignore {
		c2 = 0
	}
	if t.ready {
		if !less(t.n1, t.n2, c1, c2) {
			return nil
		}
		t.ready = false
	}
	if t.done {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = corrupt(t.strat, "%v", r)
			t.SetErr(err)
			t.done = true
		}
	}()
	t.cd.seek(&t.cur, c1, c2)
	return nil
}

func (t *Table) Mark() error {
	t.mark = tableMark{cur: t.cur, done: t.done, ready: t.ready, n1: t.n1, n2: t.n2, v1: t.v1, v2: t.v2, count: t.count}
	return nil
}

func (t *Table) Reset(int) error {
	m := t.mark
	t.cur, t.done, t.ready, t.n1, t.n2 = m.cur, m.done, m.ready, m.n1, m.n2
	t.v1, t.v2, t.count = m.v1, m.v2, m.count
	return nil
}

func (t *Table) IgnoreSecondColumn() error {
	t.ignore = true
	t.card = -1
	return nil
}

func (t *Table) GotoKey(int64) error { return itr.Unsupported(t.typ, "GotoKey") }

// Cardinality counts the pairs, or the distinct first terms when the
// second column is ignored, within the constraints.
func (t *Table) Cardinality() (n uint64, err error) {
	if t.card >= 0 {
		return uint64(t.card), nil
	}
	if t.data == nil {
		return 0, nil
	}
	unconstrained := t.Constraint1() == itr.NoConstraint && t.Constraint2() == itr.NoConstraint
	if !t.ignore && unconstrained {
		if sz := t.cd.size(); sz >= 0 {
			t.card = sz
			return uint64(sz), nil
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = corrupt(t.strat, "%v", r)
		}
	}()
	c := t.first
	var count int64
	prev := int64(-1)
	for t.cd.more(&c) {
		v1, v2 := t.cd.read(&c)
		if !t.inRange(v1, v2) {
			break
		}
		if t.ignore && v1 == prev {
			continue
		}
		prev = v1
		count++
	}
	t.card = count
	return uint64(count), nil
}

func (t *Table) EstCardinality() uint64 {
	if sz := t.cd.size(); sz >= 0 && t.Constraint1() == itr.NoConstraint {
		return uint64(sz)
	}
	n, err := t.Cardinality()
	if err != nil {
		return 0
	}
	return n
}

func (t *Table) Clear() {
	t.data = nil
	t.ready, t.done = false, true
}

func (t *Table) String() string {
	return fmt.Sprintf("table(%s key=%d)", t.strat, t.Key())
}
