package tables

import (
	"errors"

	"github.com/hupe1980/trident/internal/binenc"
)

var errTruncatedIndex = errors.New("truncated file index")

// valueCodec selects the integer encoding of one column in an old-format table.
type valueCodec uint8

const (
	codecVLong valueCodec = iota
	codecVLong2
	codecRaw
)

func codecs(s Strategy) (first, second valueCodec) {
	if s.Raw() {
		return codecRaw, codecRaw
	}
	first, second = codecVLong, codecVLong
	if s.VLong2First() {
		first = codecVLong2
	}
	if s.VLong2Second() {
		second = codecVLong2
	}
	return first, second
}

func appendValue(dst []byte, v int64, c valueCodec) ([]byte, error) {
	switch c {
	case codecVLong2:
		return binenc.AppendVLong2(dst, v)
	case codecRaw:
		return binenc.AppendN(dst, v, 8), nil
	}
	if v < 0 {
		return dst, binenc.ErrNegative
	}
	return binenc.AppendVLong(dst, v), nil
}

func readValue(b []byte, off int, c valueCodec) (int64, int) {
	switch c {
	case codecVLong2:
		return binenc.ReadVLong2(b, off)
	case codecRaw:
		return binenc.Read8(b, off), off + 8
	}
	return binenc.ReadVLong(b, off)
}

// Writer is the append-only sink tables are written to. It is implemented
// by files.Descriptor.
type Writer interface {
	Append(b []byte) (int64, error)
	ReserveBytes(n int) (int64, error)
	OverwriteAt(pos int64, b []byte) error
	OverwriteVLong2At(pos, v int64) error
	Size() int64
}

// oldHeaderSize is [flags 1][index offset slot].
const oldHeaderSize = 1 + binenc.MaxVLong2Len

// columnHeaderSize adds the second column offset and the row count slots.
const columnHeaderSize = oldHeaderSize + 2*binenc.MaxVLong2Len

// Cluster header flags.
const (
	clusterCount1 = 0x1
	clusterCount4 = 0x2
)
