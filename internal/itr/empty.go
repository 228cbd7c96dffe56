package itr

// EmptyItr never yields a pair.
type EmptyItr struct {
	Base
}

// NewEmpty returns an exhausted iterator.
func NewEmpty() *EmptyItr {
	e := &EmptyItr{}
	e.InitBase()
	return e
}

func (*EmptyItr) Type() Type                   { return TypeEmpty }
func (*EmptyItr) Value1() int64                { return 0 }
func (*EmptyItr) Value2() int64                { return 0 }
func (*EmptyItr) Count() int64                 { return 0 }
func (*EmptyItr) HasNext() bool                { return false }
func (*EmptyItr) Next()                        {}
func (*EmptyItr) MoveTo(int64, int64) error    { return nil }
func (*EmptyItr) Mark() error                  { return nil }
func (*EmptyItr) Reset(int) error              { return nil }
func (*EmptyItr) IgnoreSecondColumn() error    { return nil }
func (*EmptyItr) GotoKey(int64) error          { return nil }
func (*EmptyItr) Cardinality() (uint64, error) { return 0, nil }
func (*EmptyItr) EstCardinality() uint64       { return 0 }
func (*EmptyItr) Clear()                       {}
