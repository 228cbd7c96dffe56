package tree

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/compress"
	"github.com/hupe1980/trident/internal/fs"
	"github.com/hupe1980/trident/internal/mmap"
)

const (
	nodesFile = "nodes"
	idxFile   = "idx"
	idxMagic  = "TRT1"
	// DefaultNodeMinSize is the smallest slot reserved for a node.
	DefaultNodeMinSize = 12000
)

var errNodeNotStored = errors.New("tree: node not stored")

type slot struct {
	pos   int64
	size  int32
	avail int32
}

// meta is the tree state persisted with the node index.
type meta struct {
	root   int64
	nextID int64
	size   int64
}

// nodeManager keeps serialized nodes in slots of one data file. A node
// that outgrows its slot is relocated to the end of the file.
type nodeManager struct {
	dir      string
	fsys     fs.FileSystem
	readOnly bool
	minSize  int
	comp     compress.Type

	f   fs.File
	ro  *mmap.Mapping
	end int64

	slots []slot
	meta  meta

	writes, relocations int64
}

func openNodeManager(dir string, fsys fs.FileSystem, readOnly bool, minSize int, comp compress.Type) (*nodeManager, error) {
	if minSize <= 0 {
		minSize = DefaultNodeMinSize
	}
	m := &nodeManager{dir: dir, fsys: fsys, readOnly: readOnly, minSize: minSize, comp: comp, meta: meta{root: -1}}
	raw, err := fs.ReadFile(fsys, filepath.Join(dir, idxFile))
	switch {
	case err == nil:
		if err := m.parseIdx(raw); err != nil {
			return nil, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read tree index: %w", err)
	}

	path := filepath.Join(dir, nodesFile)
	if readOnly {
		if _, err := fsys.Stat(path); err == nil {
			if m.ro, err = mmap.Open(path); err != nil {
				return nil, fmt.Errorf("map tree nodes: %w", err)
			}
			_ = m.ro.AdviseRandom()
		}
		return m, nil
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if m.f, err = fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644); err != nil {
		return nil, fmt.Errorf("open tree nodes: %w", err)
	}
	st, err := m.f.Stat()
	if err != nil {
		m.f.Close()
		return nil, err
	}
	m.end = st.Size()
	return m, nil
}

func (m *nodeManager) parseIdx(b []byte) error {
	const header = 4 + 8 + 8 + 8 + 4
	if len(b) < header || string(b[:4]) != idxMagic {
		return fmt.Errorf("%w: bad tree index header", errCorruptNode)
	}
	m.meta = meta{root: binenc.Read8(b, 4), nextID: binenc.Read8(b, 12), size: binenc.Read8(b, 20)}
	n := int(binenc.Read4(b, 28))
	if len(b) != header+n*16 {
		return fmt.Errorf("%w: tree index holds %d bytes for %d nodes", errCorruptNode, len(b), n)
	}
	m.slots = make([]slot, n)
	for i := range m.slots {
		off := header + i*16
		m.slots[i] = slot{
			pos:   binenc.Read8(b, off),
			size:  int32(binenc.Read4(b, off+8)),
			avail: int32(binenc.Read4(b, off+12)),
		}
	}
	return nil
}

func (m *nodeManager) read(id int64) ([]byte, error) {
	if id < 0 || id >= int64(len(m.slots)) || m.slots[id].avail == 0 {
		return nil, fmt.Errorf("%w: %d", errNodeNotStored, id)
	}
	s := m.slots[id]
	var b []byte
	if m.ro != nil {
		var err error
		if b, err = m.ro.Slice(int(s.pos), int(s.size)); err != nil {
			return nil, err
		}
	} else {
		if m.f == nil {
			return nil, fmt.Errorf("%w: %d", errNodeNotStored, id)
		}
		b = make([]byte, s.size)
		if _, err := m.f.ReadAt(b, s.pos); err != nil {
			return nil, fmt.Errorf("read node %d: %w", id, err)
		}
	}
	return compress.Unblock(b, m.comp)
}

func (m *nodeManager) write(id int64, data []byte) error {
	if m.readOnly {
		return errors.New("tree: read-only")
	}
	b, err := compress.Block(data, m.comp)
	if err != nil {
		return err
	}
	for int64(len(m.slots)) <= id {
		m.slots = append(m.slots, slot{})
	}
	s := m.slots[id]
	if int(s.avail) < len(b) {
		if s.avail > 0 {
			m.relocations++
		}
		s.pos = m.end
		s.avail = int32(max(m.minSize, len(b)))
		m.end += int64(s.avail)
		if err := m.fsys.Truncate(filepath.Join(m.dir, nodesFile), m.end); err != nil {
			return err
		}
	}
	s.size = int32(len(b))
	if _, err := m.f.Seek(s.pos, io.SeekStart); err != nil {
		return err
	}
	if _, err := m.f.Write(b); err != nil {
		return fmt.Errorf("write node %d: %w", id, err)
	}
	m.slots[id] = s
	m.writes++
	return nil
}

// flush persists the slot table together with md.
func (m *nodeManager) flush(md meta) error {
	if m.readOnly {
		return nil
	}
	m.meta = md
	buf := make([]byte, 0, 32+len(m.slots)*16)
	buf = append(buf, idxMagic...)
	buf = binenc.AppendN(buf, md.root, 8)
	buf = binenc.AppendN(buf, md.nextID, 8)
	buf = binenc.AppendN(buf, md.size, 8)
	buf = binenc.AppendN(buf, int64(len(m.slots)), 4)
	for _, s := range m.slots {
		buf = binenc.AppendN(buf, s.pos, 8)
		buf = binenc.AppendN(buf, int64(s.size), 4)
		buf = binenc.AppendN(buf, int64(s.avail), 4)
	}
	if err := m.f.Sync(); err != nil {
		return err
	}
	return fs.WriteFileAtomic(m.fsys, filepath.Join(m.dir, idxFile), buf)
}

func (m *nodeManager) close() error {
	if m.ro != nil {
		return m.ro.Close()
	}
	if m.f != nil {
		return m.f.Close()
	}
	return nil
}
