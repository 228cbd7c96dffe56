package itr

// PairItr iterates the pairs of a table or of a merged view of tables.
type PairItr interface {
	Type() Type

	Key() int64
	SetKey(k int64)
	Value1() int64
	Value2() int64
	// Count is the number of rows folded into the current row when the
	// second column is ignored, 1 otherwise.
	Count() int64

	HasNext() bool
	Next()

	Constraint1() int64
	Constraint2() int64
	SetConstraint1(c int64)
	SetConstraint2(c int64)

	// MoveTo positions the iterator so that the following Next yields the
	// first pair >= (c1, c2) that is after the current one.
	MoveTo(c1, c2 int64) error
	Mark() error
	Reset(col int) error
	IgnoreSecondColumn() error
	GotoKey(k int64) error

	Cardinality() (uint64, error)
	EstCardinality() uint64

	// AllowMerge reports whether the iterator may be used as a merge-join input.
	AllowMerge() bool

	Ownership() Ownership
	SetOwnership(o Ownership)

	// Err returns the first error hit while iterating.
	Err() error

	// Clear drops references to children and buffers before pooling.
	Clear()
}

// Parent is implemented by iterators that own child iterators. Releasing
// a parent releases its children.
type Parent interface {
	Children() []PairItr
}

// Base holds the state every iterator shares. Embed it and override what
// differs.
type Base struct {
	key         int64
	constraint1 int64
	constraint2 int64
	owner       Ownership
	released    bool
	err         error
}

// InitBase resets the shared state and clears the constraints.
func (b *Base) InitBase() {
	owner := b.owner
	*b = Base{constraint1: NoConstraint, constraint2: NoConstraint, owner: owner}
}

func (b *Base) Key() int64               { return b.key }
func (b *Base) SetKey(k int64)           { b.key = k }
func (b *Base) Constraint1() int64       { return b.constraint1 }
func (b *Base) Constraint2() int64       { return b.constraint2 }
func (b *Base) SetConstraint1(c int64)   { b.constraint1 = c }
func (b *Base) SetConstraint2(c int64)   { b.constraint2 = c }
func (b *Base) AllowMerge() bool         { return true }
func (b *Base) Ownership() Ownership     { return b.owner }
func (b *Base) SetOwnership(o Ownership) { b.owner = o }
func (b *Base) Err() error               { return b.err }

// SetErr records err unless an earlier error is already recorded.
func (b *Base) SetErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// MarkReleased flags the iterator as released. It returns false if the
// iterator was already released.
func (b *Base) MarkReleased() bool {
	if b.released {
		return false
	}
	b.released = true
	return true
}

// Revive clears the released flag of a pooled iterator being reused.
func (b *Base) Revive() { b.released = false }

// Releaser is implemented by iterators pooled through Base.
type Releaser interface {
	MarkReleased() bool
	Revive()
}

// Drain counts the remaining rows of it.
func Drain(it PairItr) int64 {
	var n int64
	for it.HasNext() {
		it.Next()
		n++
	}
	return n
}

// Collect returns the remaining pairs of it.
func Collect(it PairItr) []Pair {
	var out []Pair
	for it.HasNext() {
		it.Next()
		out = append(out, Pair{it.Value1(), it.Value2()})
	}
	return out
}

// CollectRows returns the remaining rows of it including the key.
func CollectRows(it PairItr) []Row {
	var out []Row
	for it.HasNext() {
		it.Next()
		out = append(out, Row{it.Key(), it.Value1(), it.Value2()})
	}
	return out
}
