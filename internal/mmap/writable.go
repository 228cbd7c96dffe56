package mmap

import (
	"os"
)

// Writable is a read-write shared mapping of a file that can grow.
type Writable struct {
	f      *os.File
	data   []byte
	unmap  func([]byte) error
	closed bool
}

// OpenWritable opens or creates the file at path and maps it read-write.
// The file is extended to at least minSize bytes.
func OpenWritable(path string, minSize int) (*Writable, error) {
	if minSize <= 0 {
		return nil, ErrInvalidSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := int(fi.Size())
	if size < minSize {
		if err := f.Truncate(int64(minSize)); err != nil {
			f.Close()
			return nil, err
		}
		size = minSize
	}

	w := &Writable{f: f}
	if err := w.remap(size); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writable) remap(size int) error {
	data, unmapFunc, err := osMap(w.f, size, true)
	if err != nil {
		return err
	}
	w.data = data
	w.unmap = unmapFunc
	return nil
}

// Bytes returns the mapped bytes. The slice is invalidated by Grow and Close.
func (w *Writable) Bytes() []byte {
	return w.data
}

// Size returns the current mapped size.
func (w *Writable) Size() int {
	return len(w.data)
}

// Grow extends the file to newSize bytes and remaps it.
func (w *Writable) Grow(newSize int) error {
	if w.closed {
		return ErrClosed
	}
	if newSize <= len(w.data) {
		return nil
	}
	if err := w.unmap(w.data); err != nil {
		return err
	}
	w.data = nil
	if err := w.f.Truncate(int64(newSize)); err != nil {
		return err
	}
	return w.remap(newSize)
}

// Sync flushes dirty pages to the file.
func (w *Writable) Sync() error {
	if w.closed {
		return ErrClosed
	}
	return osSync(w.data)
}

// Close unmaps the file and truncates it to used bytes. A negative used
// leaves the size unchanged.
func (w *Writable) Close(used int64) error {
	if w.closed {
		return nil
	}
	w.closed = true
	var err error
	if w.data != nil {
		err = w.unmap(w.data)
		w.data = nil
	}
	if used >= 0 && err == nil {
		err = w.f.Truncate(used)
	}
	if cerr := w.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
