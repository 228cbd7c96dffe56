package itr

// CompositeTermItr merges the key lists of several term iterators. A key
// present in more than one child is emitted once with the counts summed.
type CompositeTermItr struct {
	Base

	children []PairItr
	heads    []termHead
	started  bool
	ready    bool
	nextKey  int64
	nextCnt  int64
	count    int64
}

type termHead struct {
	it    PairItr
	key   int64
	count int64
}

// NewCompositeTerm merges children.
func NewCompositeTerm(children []PairItr) *CompositeTermItr {
	c := &CompositeTermItr{}
	c.InitBase()
	c.children = children
	return c
}

func (*CompositeTermItr) Type() Type            { return TypeCompositeTerm }
func (*CompositeTermItr) Value1() int64         { return 0 }
func (*CompositeTermItr) Value2() int64         { return 0 }
func (c *CompositeTermItr) Count() int64        { return c.count }
func (c *CompositeTermItr) Children() []PairItr { return c.children }

func (c *CompositeTermItr) pull(it PairItr) {
	if !it.HasNext() {
		return
	}
	it.Next()
	h := termHead{it: it, key: it.Key(), count: it.Count()}
	// heads are kept descending so the smallest key is last
	i := len(c.heads)
	c.heads = append(c.heads, h)
	for i > 0 && c.heads[i-1].key < h.key {
		c.heads[i] = c.heads[i-1]
		i--
	}
	c.heads[i] = h
}

func (c *CompositeTermItr) HasNext() bool {
	if c.ready {
		return true
	}
	if !c.started {
		c.started = true
		for _, ch := range c.children {
			c.pull(ch)
		}
	}
	if len(c.heads) == 0 {
		return false
	}
	top := c.heads[len(c.heads)-1]
	c.heads = c.heads[:len(c.heads)-1]
	c.nextKey, c.nextCnt = top.key, top.count
	c.pull(top.it)
	for len(c.heads) > 0 && c.heads[len(c.heads)-1].key == c.nextKey {
		h := c.heads[len(c.heads)-1]
		c.heads = c.heads[:len(c.heads)-1]
		c.nextCnt += h.count
		c.pull(h.it)
	}
	c.ready = true
	return true
}

func (c *CompositeTermItr) Next() {
	if !c.HasNext() {
		return
	}
	c.SetKey(c.nextKey)
	c.count = c.nextCnt
	c.ready = false
}

func (c *CompositeTermItr) MoveTo(int64, int64) error {
	return Unsupported(TypeCompositeTerm, "MoveTo")
}
func (c *CompositeTermItr) Mark() error     { return Unsupported(TypeCompositeTerm, "Mark") }
func (c *CompositeTermItr) Reset(int) error { return Unsupported(TypeCompositeTerm, "Reset") }
func (c *CompositeTermItr) IgnoreSecondColumn() error {
	return Unsupported(TypeCompositeTerm, "IgnoreSecondColumn")
}
func (c *CompositeTermItr) GotoKey(int64) error {
	return Unsupported(TypeCompositeTerm, "GotoKey")
}

// Cardinality sums the children and may count a shared key more than once.
func (c *CompositeTermItr) Cardinality() (uint64, error) {
	var n uint64
	for _, ch := range c.children {
		k, err := ch.Cardinality()
		if err != nil {
			return 0, err
		}
		n += k
	}
	return n, nil
}

func (c *CompositeTermItr) EstCardinality() uint64 {
	n, err := c.Cardinality()
	if err != nil {
		return 0
	}
	return n
}

func (c *CompositeTermItr) Err() error {
	if err := c.Base.Err(); err != nil {
		return err
	}
	for _, ch := range c.children {
		if err := ch.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompositeTermItr) Clear() {
	c.children = nil
	c.heads = c.heads[:0]
	c.started, c.ready = false, false
}

// RmCompositeTermItr yields the keys of main whose rows are not all
// removed by rm. The count of a surviving key is reduced by the rows rm
// drops for it.
type RmCompositeTermItr struct {
	Base

	main PairItr
	rm   PairItr

	rmKey    int64
	rmCount  int64
	rmValid  bool
	rmPrimed bool

	ready   bool
	nextKey int64
	nextCnt int64
	count   int64
}

// NewRmCompositeTerm returns main minus the keys fully covered by rm.
func NewRmCompositeTerm(main, rm PairItr) *RmCompositeTermItr {
	r := &RmCompositeTermItr{main: main, rm: rm}
	r.InitBase()
	return r
}

func (*RmCompositeTermItr) Type() Type            { return TypeRmCompositeTerm }
func (*RmCompositeTermItr) Value1() int64         { return 0 }
func (*RmCompositeTermItr) Value2() int64         { return 0 }
func (r *RmCompositeTermItr) Count() int64        { return r.count }
func (r *RmCompositeTermItr) Children() []PairItr { return []PairItr{r.main, r.rm} }

func (r *RmCompositeTermItr) fetchRm() {
	r.rmPrimed = true
	r.rmValid = r.rm.HasNext()
	if r.rmValid {
		r.rm.Next()
		r.rmKey, r.rmCount = r.rm.Key(), r.rm.Count()
	}
}

func (r *RmCompositeTermItr) HasNext() bool {
	if r.ready {
		return true
	}
	if !r.rmPrimed {
		r.fetchRm()
	}
	for r.main.HasNext() {
		r.main.Next()
		k, cnt := r.main.Key(), r.main.Count()
		for r.rmValid && r.rmKey < k {
			r.fetchRm()
		}
		if r.rmValid && r.rmKey == k {
			if r.rmCount >= cnt {
				continue
			}
			cnt -= r.rmCount
		}
		r.nextKey, r.nextCnt, r.ready = k, cnt, true
		return true
	}
	return false
}

func (r *RmCompositeTermItr) Next() {
	if !r.HasNext() {
		return
	}
	r.SetKey(r.nextKey)
	r.count = r.nextCnt
	r.ready = false
}

func (r *RmCompositeTermItr) MoveTo(int64, int64) error {
	return Unsupported(TypeRmCompositeTerm, "MoveTo")
}
func (r *RmCompositeTermItr) Mark() error     { return Unsupported(TypeRmCompositeTerm, "Mark") }
func (r *RmCompositeTermItr) Reset(int) error { return Unsupported(TypeRmCompositeTerm, "Reset") }
func (r *RmCompositeTermItr) IgnoreSecondColumn() error {
	return Unsupported(TypeRmCompositeTerm, "IgnoreSecondColumn")
}
func (r *RmCompositeTermItr) GotoKey(int64) error {
	return Unsupported(TypeRmCompositeTerm, "GotoKey")
}
func (r *RmCompositeTermItr) Cardinality() (uint64, error) {
	return 0, Unsupported(TypeRmCompositeTerm, "Cardinality")
}
func (r *RmCompositeTermItr) EstCardinality() uint64 { return r.main.EstCardinality() }

func (r *RmCompositeTermItr) Err() error {
	if err := r.Base.Err(); err != nil {
		return err
	}
	if err := r.main.Err(); err != nil {
		return err
	}
	return r.rm.Err()
}

func (r *RmCompositeTermItr) Clear() { r.main, r.rm = nil, nil }
