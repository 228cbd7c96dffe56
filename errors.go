package trident

import (
	"errors"
	"fmt"

	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/loader"
	"github.com/hupe1980/trident/internal/manifest"
	"github.com/hupe1980/trident/internal/perm"
	"github.com/hupe1980/trident/internal/tables"
	"github.com/hupe1980/trident/internal/tree"
)

var (
	// ErrClosed is returned when using a closed knowledge base.
	ErrClosed = errors.New("knowledge base is closed")

	// ErrNotFound is returned when a directory holds no knowledge base.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported is matched by every error of an iterator asked for an
	// operation its type does not implement.
	ErrUnsupported = itr.ErrUnsupported

	// ErrInvalidPermutation is returned for a permutation outside [0, 6).
	ErrInvalidPermutation = errors.New("invalid permutation")

	// ErrCorrupt is returned when on-disk data cannot be decoded.
	ErrCorrupt = errors.New("corrupt data")

	// ErrReadOnly is returned when updating a knowledge base opened read-only.
	ErrReadOnly = errors.New("knowledge base is read-only")

	// ErrExists is returned by Build when the directory already holds a
	// knowledge base.
	ErrExists = errors.New("knowledge base already exists")

	// ErrTermRange is returned for a term that is negative or does not fit
	// in 40 bits.
	ErrTermRange = errors.New("term out of range")
)

// UnsupportedError reports an operation an iterator type does not implement.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type UnsupportedError struct {
	Iterator  string
	Operation string
	cause     error
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Iterator, e.Operation)
}

func (e *UnsupportedError) Unwrap() []error { return []error{ErrUnsupported, e.cause} }

// CorruptTableError reports a table that could not be decoded.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type CorruptTableError struct {
	Strategy byte
	Reason   string
	cause    error
}

func (e *CorruptTableError) Error() string {
	return fmt.Sprintf("corrupt table (strategy 0x%02x): %s", e.Strategy, e.Reason)
}

func (e *CorruptTableError) Unwrap() []error { return []error{ErrCorrupt, e.cause} }

// ErrInvalidPattern indicates a pattern a permutation cannot answer, such
// as a bound third term with an unbound second term.
type ErrInvalidPattern struct {
	Perm    int
	S, P, O int64
}

func (e *ErrInvalidPattern) Error() string {
	return fmt.Sprintf("invalid pattern (%d, %d, %d) for permutation %s", e.S, e.P, e.O, perm.Name(e.Perm))
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var ue *itr.UnsupportedError
	if errors.As(err, &ue) {
		return &UnsupportedError{Iterator: ue.Type.String(), Operation: ue.Op, cause: err}
	}
	var ce *tables.CorruptTableError
	if errors.As(err, &ce) {
		return &CorruptTableError{Strategy: byte(ce.Strategy), Reason: ce.Reason, cause: err}
	}

	switch {
	case errors.Is(err, manifest.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, manifest.ErrCorrupt), errors.Is(err, manifest.ErrIncompatibleVersion):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, tree.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	case errors.Is(err, loader.ErrExists):
		return fmt.Errorf("%w: %w", ErrExists, err)
	case errors.Is(err, loader.ErrTermRange):
		return fmt.Errorf("%w: %w", ErrTermRange, err)
	}
	return err
}
