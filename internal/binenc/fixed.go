package binenc

// MaxFixedWidth is the widest fixed-width integer supported by ReadN/PutN.
const MaxFixedWidth = 8

// Read1 reads one unsigned byte.
func Read1(b []byte, off int) int64 { return int64(b[off]) }

// Read2 reads a big-endian 16-bit unsigned integer.
func Read2(b []byte, off int) int64 {
	_ = b[off+1]
	return int64(b[off])<<8 | int64(b[off+1])
}

// Read4 reads a big-endian 32-bit unsigned integer.
func Read4(b []byte, off int) int64 {
	_ = b[off+3]
	return int64(b[off])<<24 | int64(b[off+1])<<16 | int64(b[off+2])<<8 | int64(b[off+3])
}

// Read5 reads a big-endian 40-bit unsigned integer.
func Read5(b []byte, off int) int64 {
	_ = b[off+4]
	return int64(b[off])<<32 | int64(b[off+1])<<24 | int64(b[off+2])<<16 |
		int64(b[off+3])<<8 | int64(b[off+4])
}

// Read8 reads a big-endian 64-bit integer.
func Read8(b []byte, off int) int64 {
	_ = b[off+7]
	return int64(b[off])<<56 | int64(b[off+1])<<48 | int64(b[off+2])<<40 |
		int64(b[off+3])<<32 | int64(b[off+4])<<24 | int64(b[off+5])<<16 |
		int64(b[off+6])<<8 | int64(b[off+7])
}

// ReadN reads a big-endian unsigned integer of width n (1..8).
func ReadN(b []byte, off, n int) int64 {
	switch n {
	case 1:
		return Read1(b, off)
	case 2:
		return Read2(b, off)
	case 4:
		return Read4(b, off)
	case 5:
		return Read5(b, off)
	case 8:
		return Read8(b, off)
	}
	var v int64
	for i := 0; i < n; i++ {
		v = v<<8 | int64(b[off+i])
	}
	return v
}

// PutN writes the n least significant bytes of v at off, big-endian.
func PutN(b []byte, off int, v int64, n int) {
	_ = b[off+n-1]
	for i := n - 1; i >= 0; i-- {
		b[off+i] = byte(v)
		v >>= 8
	}
}

// AppendN appends the n least significant bytes of v, big-endian.
func AppendN(dst []byte, v int64, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}

// BytesFor returns the minimal number of bytes (at least 1) needed to
// store the non-negative value v.
func BytesFor(v int64) int {
	n := 1
	for v >= 256 {
		v >>= 8
		n++
	}
	return n
}
