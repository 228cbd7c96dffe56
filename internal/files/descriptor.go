package files

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/mmap"
	"github.com/hupe1980/trident/internal/resource"
)

const (
	// InitialFileSize is the mapped size of a newly created file.
	InitialFileSize = 1 << 20
	// SmallestIncrement is the minimum growth of a mapped file.
	SmallestIncrement = 16 << 20
)

var (
	// ErrReadOnly is returned when writing to a read-only descriptor.
	ErrReadOnly = errors.New("files: descriptor is read-only")
	// ErrOutOfRange is returned for accesses beyond the written size.
	ErrOutOfRange = errors.New("files: offset out of range")
	// ErrClosed is returned when using a closed descriptor.
	ErrClosed = errors.New("files: descriptor is closed")
)

// Descriptor is an append-only memory-mapped file.
type Descriptor struct {
	path     string
	w        *mmap.Writable
	ro       *mmap.Mapping
	size     int64
	mapped   int64
	readOnly bool
	closed   bool
	rc       *resource.Controller
}

// Create opens the file at path for appending, creating it if needed.
// Existing content is kept and appends continue at its end.
func Create(path string, rc *resource.Controller) (*Descriptor, error) {
	var existing int64
	if fi, err := os.Stat(path); err == nil {
		existing = fi.Size()
	}
	initial := max(int64(InitialFileSize), existing)
	if err := rc.AcquireMemory(initial); err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	w, err := mmap.OpenWritable(path, int(initial))
	if err != nil {
		rc.ReleaseMemory(initial)
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	return &Descriptor{
		path:   path,
		w:      w,
		size:   existing,
		mapped: int64(w.Size()),
		rc:     rc,
	}, nil
}

// OpenReadOnly maps an existing file read-only.
func OpenReadOnly(path string) (*Descriptor, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	return &Descriptor{
		path:     path,
		ro:       m,
		size:     int64(m.Size()),
		readOnly: true,
	}, nil
}

// Path returns the file path.
func (d *Descriptor) Path() string { return d.path }

// Size returns the number of bytes written.
func (d *Descriptor) Size() int64 { return d.size }

// ReadOnly reports whether the descriptor rejects writes.
func (d *Descriptor) ReadOnly() bool { return d.readOnly }

func (d *Descriptor) ensure(n int64) error {
	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return ErrReadOnly
	}
	needed := d.size + n
	if needed <= d.mapped {
		return nil
	}
	incr := max(int64(SmallestIncrement), n, d.mapped)
	if err := d.rc.AcquireMemory(incr); err != nil {
		return fmt.Errorf("grow %s: %w", d.path, err)
	}
	if err := d.w.Grow(int(d.mapped + incr)); err != nil {
		d.rc.ReleaseMemory(incr)
		return fmt.Errorf("grow %s: %w", d.path, err)
	}
	d.mapped += incr
	return nil
}

// Append writes b at the end of the file and returns its offset.
func (d *Descriptor) Append(b []byte) (int64, error) {
	if err := d.ensure(int64(len(b))); err != nil {
		return 0, err
	}
	pos := d.size
	copy(d.w.Bytes()[pos:], b)
	d.size += int64(len(b))
	return pos, nil
}

// AppendVLong appends v as VLong.
func (d *Descriptor) AppendVLong(v int64) error {
	if err := d.ensure(binenc.MaxVLongLen); err != nil {
		return err
	}
	n := binenc.PutVLong(d.w.Bytes(), int(d.size), v)
	d.size += int64(n)
	return nil
}

// AppendVLong2 appends v as VLong2.
func (d *Descriptor) AppendVLong2(v int64) error {
	if err := d.ensure(binenc.MaxVLong2Len); err != nil {
		return err
	}
	n, err := binenc.PutVLong2(d.w.Bytes(), int(d.size), v)
	if err != nil {
		return err
	}
	d.size += int64(n)
	return nil
}

// ReserveBytes advances the cursor by n zero bytes and returns the offset
// of the reserved region.
func (d *Descriptor) ReserveBytes(n int) (int64, error) {
	if err := d.ensure(int64(n)); err != nil {
		return 0, err
	}
	pos := d.size
	clear(d.w.Bytes()[pos : pos+int64(n)])
	d.size += int64(n)
	return pos, nil
}

// ReserveVLong2 reserves a slot wide enough for any VLong2 value.
func (d *Descriptor) ReserveVLong2() (int64, error) {
	return d.ReserveBytes(binenc.MaxVLong2Len)
}

// OverwriteAt replaces already written bytes at pos.
func (d *Descriptor) OverwriteAt(pos int64, b []byte) error {
	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return ErrReadOnly
	}
	if pos < 0 || pos+int64(len(b)) > d.size {
		return ErrOutOfRange
	}
	copy(d.w.Bytes()[pos:], b)
	return nil
}

// OverwriteVLong2At writes v into a slot obtained from ReserveVLong2.
func (d *Descriptor) OverwriteVLong2At(pos, v int64) error {
	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return ErrReadOnly
	}
	if pos < 0 || pos+binenc.MaxVLong2Len > d.size {
		return ErrOutOfRange
	}
	return binenc.PutVLong2Fixed(d.w.Bytes(), int(pos), v, binenc.MaxVLong2Len)
}

// Bytes returns a view of n bytes at pos. The view is invalidated by any
// subsequent write that grows the file.
func (d *Descriptor) Bytes(pos int64, n int) ([]byte, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if pos < 0 || n < 0 || pos+int64(n) > d.size {
		return nil, ErrOutOfRange
	}
	return d.data()[pos : pos+int64(n)], nil
}

// All returns the written bytes.
func (d *Descriptor) All() []byte {
	if d.closed {
		return nil
	}
	return d.data()[:d.size]
}

func (d *Descriptor) data() []byte {
	if d.readOnly {
		return d.ro.Bytes()
	}
	return d.w.Bytes()
}

// Flush syncs dirty pages to disk.
func (d *Descriptor) Flush() error {
	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return nil
	}
	return d.w.Sync()
}

// Close unmaps the file. Writable files are truncated to the written size
// and removed when nothing was written.
func (d *Descriptor) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.readOnly {
		return d.ro.Close()
	}
	err := d.w.Close(d.size)
	d.rc.ReleaseMemory(d.mapped)
	if err != nil {
		return err
	}
	if d.size == 0 {
		return os.Remove(d.path)
	}
	return nil
}
