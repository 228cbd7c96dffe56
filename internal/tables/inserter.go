package tables

import (
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/trident/internal/compress"
)

// DefaultThresholdToOffload is the number of buffered column values above
// which column inserters spill to a temporary file.
const DefaultThresholdToOffload = 500_000_000

// smallGroupLimit is the number of pairs a cluster inserter buffers before
// it streams groups with reserved size slots.
const smallGroupLimit = 4096

// ErrValueTooWide is returned when a value does not fit the widths of a
// fixed-width strategy.
var ErrValueTooWide = errors.New("value exceeds the width of the table strategy")

// Inserter serializes the sorted pairs of one table.
type Inserter interface {
	// StartAppend binds the inserter to w. Nothing is written until the
	// first pair arrives.
	StartAppend(w Writer) error
	Append(t1, t2 int64) error
	// StopAppend completes the table. An empty table writes nothing.
	StopAppend() error
	Strategy() Strategy
}

// InserterOptions configures column spilling.
type InserterOptions struct {
	TmpDir             string
	ThresholdToOffload int
}

func (o InserterOptions) threshold() int {
	if o.ThresholdToOffload <= 0 {
		return DefaultThresholdToOffload
	}
	return o.ThresholdToOffload
}

// NewInserter returns the inserter for s.
func NewInserter(s Strategy, opts InserterOptions) (Inserter, error) {
	switch s.StorageType() {
	case Row:
		return &rowInserter{strat: s}, nil
	case Cluster:
		return &clusterInserter{strat: s}, nil
	case Column:
		return &columnInserter{strat: s, opts: opts}, nil
	case NewColumn:
		return &newColumnInserter{strat: s, opts: opts}, nil
	case NewRow:
		return &newRowInserter{strat: s}, nil
	case NewCluster:
		return &newClusterInserter{strat: s}, nil
	}
	return nil, corrupt(s, "unknown storage type %d", s.StorageType())
}

// spillList buffers values in memory and moves them to a compressed
// temporary file once threshold values are held.
type spillList struct {
	dir       string
	pattern   string
	threshold int
	mem       []int64
	spill     *compress.SpillWriter
}

func newSpillList(opts InserterOptions, pattern string) *spillList {
	return &spillList{dir: opts.TmpDir, pattern: pattern, threshold: opts.threshold()}
}

func (l *spillList) add(v int64) error {
	l.mem = append(l.mem, v)
	if len(l.mem) < l.threshold {
		return nil
	}
	if l.spill == nil {
		w, err := compress.NewSpillWriter(l.dir, l.pattern)
		if err != nil {
			return fmt.Errorf("open spill file: %w", err)
		}
		l.spill = w
	}
	if err := l.spill.Write(l.mem...); err != nil {
		return fmt.Errorf("spill: %w", err)
	}
	l.mem = l.mem[:0]
	return nil
}

func (l *spillList) len() int64 {
	n := int64(len(l.mem))
	if l.spill != nil {
		n += l.spill.Len()
	}
	return n
}

// each visits the spilled values and then the buffered ones, releasing
// the spill file.
func (l *spillList) each(fn func(v int64) error) error {
	if l.spill != nil {
		r, err := l.spill.Finish()
		l.spill = nil
		if err != nil {
			return err
		}
		for {
			v, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				r.Close()
				return err
			}
			if err := fn(v); err != nil {
				r.Close()
				return err
			}
		}
		if err := r.Close(); err != nil {
			return err
		}
	}
	for _, v := range l.mem {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func (l *spillList) discard() {
	if l.spill != nil {
		l.spill.Discard()
		l.spill = nil
	}
	l.mem = l.mem[:0]
}
