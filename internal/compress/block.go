package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores blocks raw.
	None Type = 0
	// LZ4 is fast block compression for hot node data.
	LZ4 Type = 1
	// ZSTD has a better ratio and is used for spill files.
	ZSTD Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compress.Type(%d)", uint8(t))
	}
}

// ParseType parses the textual form returned by Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	}
	return None, fmt.Errorf("compress: unknown type %q", s)
}

// HeaderSize is the size of the block header.
const HeaderSize = 8

// ErrCorrupt is returned for malformed blocks.
var ErrCorrupt = errors.New("compress: corrupt block")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Block compresses data with t and prepends the block header.
func Block(data []byte, t Type) ([]byte, error) {
	var compressed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("compress: unknown type %d", t)
	}

	if len(compressed) == 0 || len(compressed) >= len(data) {
		out := make([]byte, HeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[HeaderSize:], data)
		return out, nil
	}

	out := make([]byte, HeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[HeaderSize:], compressed)
	return out, nil
}

// BlockLen returns the total encoded length of the block starting at data.
func BlockLen(data []byte) (int, error) {
	if len(data) < HeaderSize {
		return 0, ErrCorrupt
	}
	raw := binary.LittleEndian.Uint32(data[0:])
	comp := binary.LittleEndian.Uint32(data[4:])
	if comp == 0 {
		return HeaderSize + int(raw), nil
	}
	return HeaderSize + int(comp), nil
}

// Unblock decodes a block produced by Block with the same type.
func Unblock(data []byte, t Type) ([]byte, error) {
	if len(data) < HeaderSize {
		return nil, ErrCorrupt
	}
	raw := binary.LittleEndian.Uint32(data[0:])
	comp := binary.LittleEndian.Uint32(data[4:])

	if comp == 0 {
		if uint32(len(data)) < HeaderSize+raw {
			return nil, ErrCorrupt
		}
		return data[HeaderSize : HeaderSize+raw], nil
	}
	if uint32(len(data)) < HeaderSize+comp {
		return nil, ErrCorrupt
	}
	payload := data[HeaderSize : HeaderSize+comp]
	out := make([]byte, raw)

	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != raw {
			return nil, ErrCorrupt
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(payload, out[:0])
		if err != nil {
			return nil, err
		}
		if uint32(len(decoded)) != raw {
			return nil, ErrCorrupt
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: compressed payload with type %s", ErrCorrupt, t)
	}
}
