package tree

import (
	"cmp"
	"strings"

	"github.com/hupe1980/trident/internal/binenc"
)

// KeyCodec orders and serializes tree keys.
type KeyCodec[K any] interface {
	Compare(a, b K) int
	Append(dst []byte, k K) []byte
	Read(b []byte, off int) (K, int)
}

// ValueCodec serializes tree values.
type ValueCodec[V any] interface {
	Append(dst []byte, v V) []byte
	Read(b []byte, off int) (V, int)
}

// Int64Key stores numeric term ids as 8 big-endian bytes.
type Int64Key struct{}

func (Int64Key) Compare(a, b int64) int              { return cmp.Compare(a, b) }
func (Int64Key) Append(dst []byte, k int64) []byte   { return binenc.AppendN(dst, k, 8) }
func (Int64Key) Read(b []byte, off int) (int64, int) { return binenc.Read8(b, off), off + 8 }

// StringKey stores textual keys prefixed with their VLong length.
type StringKey struct{}

func (StringKey) Compare(a, b string) int { return strings.Compare(a, b) }

func (StringKey) Append(dst []byte, k string) []byte {
	dst = binenc.AppendVLong(dst, int64(len(k)))
	return append(dst, k...)
}

func (StringKey) Read(b []byte, off int) (string, int) {
	n, off := binenc.ReadVLong(b, off)
	return string(b[off : off+int(n)]), off + int(n)
}

// Int64Value stores numeric values as VLong.
type Int64Value struct{}

func (Int64Value) Append(dst []byte, v int64) []byte   { return binenc.AppendVLong(dst, v) }
func (Int64Value) Read(b []byte, off int) (int64, int) { return binenc.ReadVLong(b, off) }
