package binenc

import "errors"

// MaxVLongLen is the longest VLong encoding of a non-negative int64.
const MaxVLongLen = 9

// MaxVLong2Len is the longest VLong2 encoding and the size of a reserved slot.
const MaxVLong2Len = 8

// MaxVLong2Value is the largest value representable as VLong2 (61 bits).
const MaxVLong2Value = 1<<61 - 1

var (
	// ErrNegative is returned when a negative value is passed to a varint writer.
	ErrNegative = errors.New("binenc: negative value")
	// ErrTooLarge is returned when a value exceeds the range of the encoding.
	ErrTooLarge = errors.New("binenc: value too large")
	// ErrSlotTooSmall is returned when a value does not fit a reserved slot.
	ErrSlotTooSmall = errors.New("binenc: value does not fit reserved slot")
)

// VLongLen returns the encoded size of v as VLong.
func VLongLen(v int64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// PutVLong writes v at off and returns the number of bytes written.
func PutVLong(b []byte, off int, v int64) int {
	i := off
	for v >= 0x80 {
		b[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	b[i] = byte(v)
	return i - off + 1
}

// AppendVLong appends the VLong encoding of v.
func AppendVLong(dst []byte, v int64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// ReadVLong decodes a VLong at off and returns the value and the offset
// just past it.
func ReadVLong(b []byte, off int) (int64, int) {
	var v int64
	var shift uint
	for {
		c := b[off]
		off++
		v |= int64(c&0x7f) << shift
		if c < 0x80 {
			return v, off
		}
		shift += 7
	}
}

// VLong2Len returns the encoded size of v as VLong2.
func VLong2Len(v int64) int {
	n := 1
	for v >= 32 {
		v >>= 8
		n++
	}
	return n
}

// PutVLong2 writes v at off using the minimal width and returns the number
// of bytes written.
func PutVLong2(b []byte, off int, v int64) (int, error) {
	if v < 0 {
		return 0, ErrNegative
	}
	if v > MaxVLong2Value {
		return 0, ErrTooLarge
	}
	n := VLong2Len(v)
	putVLong2(b, off, v, n)
	return n, nil
}

// PutVLong2Fixed writes v at off using exactly width bytes. Reserved slots
// are rewritten with this function so that the encoded size never changes.
func PutVLong2Fixed(b []byte, off int, v int64, width int) error {
	if v < 0 {
		return ErrNegative
	}
	if width < 1 || width > MaxVLong2Len {
		return ErrSlotTooSmall
	}
	if VLong2Len(v) > width {
		return ErrSlotTooSmall
	}
	putVLong2(b, off, v, width)
	return nil
}

func putVLong2(b []byte, off int, v int64, n int) {
	extra := n - 1
	b[off] = byte(extra<<5) | byte(v>>(8*uint(extra)))&0x1f
	for i := 1; i <= extra; i++ {
		b[off+i] = byte(v >> (8 * uint(extra-i)))
	}
}

// AppendVLong2 appends the minimal VLong2 encoding of v.
func AppendVLong2(dst []byte, v int64) ([]byte, error) {
	if v < 0 {
		return dst, ErrNegative
	}
	if v > MaxVLong2Value {
		return dst, ErrTooLarge
	}
	n := VLong2Len(v)
	start := len(dst)
	for i := 0; i < n; i++ {
		dst = append(dst, 0)
	}
	putVLong2(dst, start, v, n)
	return dst, nil
}

// ReadVLong2 decodes a VLong2 at off and returns the value and the offset
// just past it.
func ReadVLong2(b []byte, off int) (int64, int) {
	first := b[off]
	extra := int(first >> 5)
	v := int64(first & 0x1f)
	for i := 1; i <= extra; i++ {
		v = v<<8 | int64(b[off+i])
	}
	return v, off + extra + 1
}
