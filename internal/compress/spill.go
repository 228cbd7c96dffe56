package compress

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// SpillWriter streams int64 values into a ZSTD-compressed temporary file.
type SpillWriter struct {
	f   *os.File
	enc *zstd.Encoder
	buf [binary.MaxVarintLen64]byte
	n   int64
}

// NewSpillWriter creates a spill file in dir ("" uses the OS default).
func NewSpillWriter(dir, pattern string) (*SpillWriter, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &SpillWriter{f: f, enc: enc}, nil
}

// Write appends values to the spill file.
func (s *SpillWriter) Write(values ...int64) error {
	for _, v := range values {
		n := binary.PutVarint(s.buf[:], v)
		if _, err := s.enc.Write(s.buf[:n]); err != nil {
			return err
		}
	}
	s.n += int64(len(values))
	return nil
}

// Len returns the number of values written.
func (s *SpillWriter) Len() int64 { return s.n }

// Finish flushes the encoder and returns a reader over the written values.
// The writer must not be used afterwards.
func (s *SpillWriter) Finish() (*SpillReader, error) {
	if err := s.enc.Close(); err != nil {
		s.discard()
		return nil, err
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		s.discard()
		return nil, err
	}
	dec, err := zstd.NewReader(s.f)
	if err != nil {
		s.discard()
		return nil, err
	}
	return &SpillReader{f: s.f, dec: dec, r: bufio.NewReader(dec), remaining: s.n}, nil
}

// Discard removes the spill file without reading it.
func (s *SpillWriter) Discard() {
	_ = s.enc.Close()
	s.discard()
}

func (s *SpillWriter) discard() {
	s.f.Close()
	os.Remove(s.f.Name())
}

// SpillReader reads back the values of a finished spill file.
type SpillReader struct {
	f         *os.File
	dec       *zstd.Decoder
	r         *bufio.Reader
	remaining int64
}

// Next returns the next value, or io.EOF once all values were read.
func (s *SpillReader) Next() (int64, error) {
	if s.remaining == 0 {
		return 0, io.EOF
	}
	v, err := binary.ReadVarint(s.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	s.remaining--
	return v, nil
}

// Close releases the decoder and removes the spill file.
func (s *SpillReader) Close() error {
	s.dec.Close()
	err := s.f.Close()
	if rerr := os.Remove(s.f.Name()); rerr != nil && err == nil {
		err = rerr
	}
	return err
}
