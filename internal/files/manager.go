package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/hupe1980/trident/internal/mmap"
	"github.com/hupe1980/trident/internal/resource"
)

// DefaultMaxFileSize is the size after which a new data file is started.
const DefaultMaxFileSize = 64 << 20

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	ReadOnly    bool
	MaxFileSize int64
	Resources   *resource.Controller
}

// Manager owns the numbered data files of a directory.
type Manager struct {
	dir  string
	opts ManagerOptions

	mu       sync.Mutex
	current  *Descriptor
	curIdx   int
	nfiles   int
	mappings map[int]*mmap.Mapping
}

// NewManager opens the data files in dir. In write mode the last file is
// reopened for appending, or file 0 is created.
func NewManager(dir string, opts ManagerOptions) (*Manager, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	m := &Manager{
		dir:      dir,
		opts:     opts,
		mappings: make(map[int]*mmap.Mapping),
	}
	for {
		if _, err := os.Stat(m.path(m.nfiles)); err != nil {
			break
		}
		m.nfiles++
	}
	if opts.ReadOnly {
		return m, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	idx := m.nfiles - 1
	if idx < 0 {
		idx = 0
	}
	d, err := Create(m.path(idx), opts.Resources)
	if err != nil {
		return nil, err
	}
	m.current, m.curIdx = d, idx
	m.nfiles = idx + 1
	return m, nil
}

func (m *Manager) path(i int) string {
	return filepath.Join(m.dir, strconv.Itoa(i))
}

// Dir returns the managed directory.
func (m *Manager) Dir() string { return m.dir }

// NFiles returns the number of data files.
func (m *Manager) NFiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nfiles
}

// Current returns the file being appended to and its index.
func (m *Manager) Current() (*Descriptor, int, error) {
	if m.opts.ReadOnly {
		return nil, 0, ErrReadOnly
	}
	return m.current, m.curIdx, nil
}

// CreateNewFile closes the current file and starts the next one.
func (m *Manager) CreateNewFile() (int, error) {
	if m.opts.ReadOnly {
		return 0, ErrReadOnly
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.current.Close(); err != nil {
		return 0, err
	}
	next := m.curIdx + 1
	d, err := Create(m.path(next), m.opts.Resources)
	if err != nil {
		return 0, err
	}
	m.current, m.curIdx = d, next
	m.nfiles = next + 1
	return next, nil
}

// RollIfNeeded starts a new file when the current one exceeds the maximum
// file size.
func (m *Manager) RollIfNeeded() (int, error) {
	if m.opts.ReadOnly {
		return 0, ErrReadOnly
	}
	if m.current.Size() > m.opts.MaxFileSize {
		return m.CreateNewFile()
	}
	return m.curIdx, nil
}

// Buffer returns the written bytes of file i.
func (m *Manager) Buffer(i int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && i == m.curIdx {
		return m.current.All(), nil
	}
	if i < 0 || i >= m.nfiles {
		return nil, fmt.Errorf("%w: file %d of %d", ErrOutOfRange, i, m.nfiles)
	}
	if mp, ok := m.mappings[i]; ok {
		return mp.Bytes(), nil
	}
	mp, err := mmap.Open(m.path(i))
	if err != nil {
		return nil, err
	}
	_ = mp.AdviseRandom()
	m.mappings[i] = mp
	return mp.Bytes(), nil
}

// SizeFile returns the written size of file i.
func (m *Manager) SizeFile(i int) (int64, error) {
	b, err := m.Buffer(i)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// Close releases the current file and all mappings.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	if m.current != nil {
		size := m.current.Size()
		if err := m.current.Close(); err != nil {
			firstErr = err
		}
		if size == 0 && m.curIdx == m.nfiles-1 {
			m.nfiles--
		}
		m.current = nil
	}
	for i, mp := range m.mappings {
		if err := mp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.mappings, i)
	}
	return firstErr
}
