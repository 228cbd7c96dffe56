package mmap

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned by accessors of a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for a negative file size or a zero-sized
	// writable mapping.
	ErrInvalidSize = errors.New("mmap: invalid file size")
	// ErrOutOfBounds is returned by Slice for a range past the end.
	ErrOutOfBounds = errors.New("mmap: out of bounds")
	// ErrInvalidOffset is returned by ReadAt for a negative offset.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)

// Mapping is a read-only view of a finished table, marks or node file.
type Mapping struct {
	data   []byte
	closed atomic.Bool
	unmap  func([]byte) error
}

// Open maps the file at path read-only. An empty file yields an empty
// mapping without a kernel mapping behind it.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	switch size := fi.Size(); {
	case size < 0:
		return nil, ErrInvalidSize
	case size == 0:
		return &Mapping{}, nil
	default:
		data, unmap, err := osMap(f, int(size), false)
		if err != nil {
			return nil, err
		}
		return &Mapping{data: data, unmap: unmap}, nil
	}
}

// Close unmaps the file. Calling it again is a no-op.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.data == nil {
		return nil
	}
	return m.unmap(m.data)
}

// Bytes returns the mapped bytes, or nil once closed.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Slice returns the bytes in [off, off+n).
func (m *Mapping) Slice(off, n int) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 || off+n > len(m.data) {
		return nil, ErrOutOfBounds
	}
	return m.data[off : off+n], nil
}

// Size returns the mapped length.
func (m *Mapping) Size() int { return len(m.data) }

// AdviseRandom tells the kernel that table lookups jump around the file,
// which disables read-ahead.
func (m *Mapping) AdviseRandom() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osAdviseRandom(m.data)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
