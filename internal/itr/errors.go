package itr

import (
	"errors"
	"fmt"
)

// ErrUnsupported is matched by every *UnsupportedError.
var ErrUnsupported = errors.New("operation not supported by iterator")

// ErrDoubleRelease is reported when an iterator is released twice.
var ErrDoubleRelease = errors.New("iterator released twice")

// UnsupportedError reports an operation that an iterator variant does not
// implement.
type UnsupportedError struct {
	Type Type
	Op   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s iterator: %s not supported", e.Type, e.Op)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// Unsupported builds an *UnsupportedError.
func Unsupported(t Type, op string) error {
	return &UnsupportedError{Type: t, Op: op}
}
