package manifest

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/hupe1980/trident/internal/perm"
)

const (
	binaryMagic   = 0x54524944 // "TRID"
	binaryVersion = 1
	headerSize    = 16
)

// Marshal encodes the manifest.
// Format:
// Magic (4 bytes)
// Version (4 bytes)
// Checksum (4 bytes) - CRC32 of payload
// PayloadLength (4 bytes)
// Payload:
//
//	ID (8 bytes)
//	CreatedAt (8 bytes) - UnixNano
//	NTriples (8 bytes)
//	NTerms (8 bytes)
//	Flags (1 byte) - bit0 aggregated, bit1 flat tree
//	MaxElementsPerNode (4 bytes)
//	NodeCompression (1 byte)
//	Perms (6 entries)
//	  Materialized (1 byte)
//	  Tables (8 bytes)
//	  NFirstTables (8 bytes)
//	  Aggregated (8 bytes)
//	  Files (4 bytes)
//	NextDiffSeq (8 bytes)
//	NumDiffs (4 bytes)
//	Diffs...
//	  Seq (8 bytes)
//	  Size (8 bytes)
//	  Type (string)
//	  Path (string)
func (m *Manifest) Marshal() ([]byte, error) {
	pb := newPayloadBuffer(make([]byte, 0, 256+len(m.Diffs)*64))

	pb.writeUint64(m.ID)
	pb.writeUint64(uint64(m.CreatedAt.UnixNano()))
	pb.writeUint64(uint64(m.NTriples))
	pb.writeUint64(uint64(m.NTerms))
	var flags byte
	if m.Aggregated {
		flags |= 1
	}
	if m.FlatTree {
		flags |= 2
	}
	pb.writeByte(flags)
	pb.writeUint32(uint32(m.MaxElementsPerNode))
	pb.writeByte(m.NodeCompression)
	for _, p := range m.Perms {
		pb.writeBool(p.Materialized)
		pb.writeUint64(uint64(p.Tables))
		pb.writeUint64(uint64(p.NFirstTables))
		pb.writeUint64(uint64(p.Aggregated))
		pb.writeUint32(p.Files)
	}
	pb.writeUint64(m.NextDiffSeq)
	pb.writeUint32(uint32(len(m.Diffs)))
	for _, d := range m.Diffs {
		pb.writeUint64(d.Seq)
		pb.writeUint64(uint64(d.Size))
		pb.writeString(d.Type)
		pb.writeString(d.Path)
	}
	if pb.err != nil {
		return nil, pb.err
	}

	payload := pb.buf
	out := make([]byte, headerSize, headerSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(out[4:8], binaryVersion)
	binary.LittleEndian.PutUint32(out[8:12], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(payload)))
	return append(out, payload...), nil
}

// WriteBinary writes the encoded manifest to w.
func (m *Manifest) WriteBinary(w io.Writer) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Unmarshal decodes a manifest written by Marshal.
func Unmarshal(b []byte) (*Manifest, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	if magic := binary.LittleEndian.Uint32(b[0:4]); magic != binaryMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	version := binary.LittleEndian.Uint32(b[4:8])
	if version != binaryVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, version)
	}
	checksum := binary.LittleEndian.Uint32(b[8:12])
	length := binary.LittleEndian.Uint32(b[12:16])
	if uint64(len(b)-headerSize) < uint64(length) {
		return nil, fmt.Errorf("%w: truncated payload", ErrCorrupt)
	}
	payload := b[headerSize : headerSize+int(length)]
	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	pb := newPayloadBuffer(payload)
	m := &Manifest{Version: int(version)}
	m.ID = pb.readUint64()
	m.CreatedAt = time.Unix(0, int64(pb.readUint64()))
	m.NTriples = int64(pb.readUint64())
	m.NTerms = int64(pb.readUint64())
	flags := pb.readByte()
	m.Aggregated = flags&1 != 0
	m.FlatTree = flags&2 != 0
	m.MaxElementsPerNode = int(pb.readUint32())
	m.NodeCompression = pb.readByte()
	for i := 0; i < perm.Count; i++ {
		p := &m.Perms[i]
		p.Materialized = pb.readByte() != 0
		p.Tables = int64(pb.readUint64())
		p.NFirstTables = int64(pb.readUint64())
		p.Aggregated = int64(pb.readUint64())
		p.Files = pb.readUint32()
	}
	m.NextDiffSeq = pb.readUint64()
	n := pb.readUint32()
	if pb.err == nil && int(n) > len(payload) {
		return nil, fmt.Errorf("%w: %d diff layers", ErrCorrupt, n)
	}
	m.Diffs = make([]DiffInfo, n)
	for i := range m.Diffs {
		m.Diffs[i].Seq = pb.readUint64()
		m.Diffs[i].Size = int64(pb.readUint64())
		m.Diffs[i].Type = pb.readString()
		m.Diffs[i].Path = pb.readString()
	}
	if pb.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, pb.err)
	}
	return m, nil
}

// ReadBinary reads a manifest from r.
func ReadBinary(r io.Reader) (*Manifest, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(b)
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeByte(v byte) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, v)
}

func (p *payloadBuffer) writeBool(v bool) {
	if v {
		p.writeByte(1)
	} else {
		p.writeByte(0)
	}
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > 65535 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) need(n int) bool {
	if p.err != nil {
		return false
	}
	if p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (p *payloadBuffer) readUint64() uint64 {
	if !p.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readByte() byte {
	if !p.need(1) {
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *payloadBuffer) readString() string {
	if !p.need(2) {
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if !p.need(l) {
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}
