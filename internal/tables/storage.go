package tables

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/hupe1980/trident/internal/binenc"
	"github.com/hupe1980/trident/internal/files"
	"github.com/hupe1980/trident/internal/fs"
	"github.com/hupe1980/trident/internal/resource"
)

// markSize is the serialized size of one mark: [pos 5][key 5][strategy 1].
const markSize = 11

// ErrNoTable is returned when a (file, mark) pair does not address a table.
var ErrNoTable = errors.New("table not found")

type mark struct {
	pos   int64
	key   int64
	strat Strategy
}

// StorageOptions configures a Storage.
type StorageOptions struct {
	ReadOnly    bool
	MaxFileSize int64
	Resources   *resource.Controller
	FS          fs.FileSystem
	Inserter    InserterOptions
	Logger      *slog.Logger
}

// Storage holds the tables of one permutation: numbered data files and
// one marks file N.idx per data file listing where each table starts.
type Storage struct {
	dir    string
	opts   StorageOptions
	fsys   fs.FileSystem
	logger *slog.Logger
	mgr    *files.Manager

	mu    sync.RWMutex
	marks map[int][]mark
	dirty map[int]bool

	ins     Inserter
	insFile int
	insMark int64
}

// OpenStorage opens or creates the table directory dir.
func OpenStorage(dir string, opts StorageOptions) (*Storage, error) {
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mgr, err := files.NewManager(dir, files.ManagerOptions{
		ReadOnly:    opts.ReadOnly,
		MaxFileSize: opts.MaxFileSize,
		Resources:   opts.Resources,
	})
	if err != nil {
		return nil, fmt.Errorf("open table files %s: %w", dir, err)
	}
	return &Storage{
		dir:    dir,
		opts:   opts,
		fsys:   opts.FS,
		logger: logger,
		mgr:    mgr,
		marks:  make(map[int][]mark),
		dirty:  make(map[int]bool),
	}, nil
}

func (s *Storage) marksPath(file int) string {
	return filepath.Join(s.dir, strconv.Itoa(file)+".idx")
}

// NFiles returns the number of data files.
func (s *Storage) NFiles() int { return s.mgr.NFiles() }

// StartAppend begins the table of key with strategy strat and returns the
// coordinates it will be stored at.
func (s *Storage) StartAppend(key int64, strat Strategy) (file int, mk int64, err error) {
	if s.ins != nil {
		return 0, 0, errors.New("tables: append already in progress")
	}
	prev, err := s.currentFile()
	if err != nil {
		return 0, 0, err
	}
	if file, err = s.mgr.RollIfNeeded(); err != nil {
		return 0, 0, err
	}
	if file != prev {
		if err := s.storeMarks(prev); err != nil {
			return 0, 0, err
		}
	}
	d, _, err := s.mgr.Current()
	if err != nil {
		return 0, 0, err
	}
	ins, err := NewInserter(strat, s.opts.Inserter)
	if err != nil {
		return 0, 0, err
	}
	if err := ins.StartAppend(d); err != nil {
		return 0, 0, err
	}
	ms, err := s.fileMarks(file)
	if err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	s.marks[file] = append(ms, mark{pos: d.Size(), key: key, strat: strat})
	s.dirty[file] = true
	mk = int64(len(s.marks[file]) - 1)
	s.mu.Unlock()
	s.ins, s.insFile, s.insMark = ins, file, mk
	return file, mk, nil
}

func (s *Storage) currentFile() (int, error) {
	_, idx, err := s.mgr.Current()
	return idx, err
}

// Append adds a pair to the table being written.
func (s *Storage) Append(t1, t2 int64) error {
	if s.ins == nil {
		return errors.New("tables: append without StartAppend")
	}
	return s.ins.Append(t1, t2)
}

// StopAppend completes the table being written.
func (s *Storage) StopAppend() error {
	if s.ins == nil {
		return nil
	}
	err := s.ins.StopAppend()
	s.ins = nil
	return err
}

// StopInsert persists the marks of every file written to.
func (s *Storage) StopInsert() error {
	if err := s.StopAppend(); err != nil {
		return err
	}
	s.mu.RLock()
	var pending []int
	for f := range s.dirty {
		pending = append(pending, f)
	}
	s.mu.RUnlock()
	for _, f := range pending {
		if err := s.storeMarks(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) storeMarks(file int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty[file] {
		return nil
	}
	ms := s.marks[file]
	buf := make([]byte, 8, 8+len(ms)*markSize)
	binenc.PutN(buf, 0, int64(len(ms)), 8)
	for _, m := range ms {
		buf = binenc.AppendN(buf, m.pos, 5)
		buf = binenc.AppendN(buf, m.key, 5)
		buf = append(buf, byte(m.strat))
	}
	if err := fs.WriteFileAtomic(s.fsys, s.marksPath(file), buf); err != nil {
		return fmt.Errorf("store marks of file %d: %w", file, err)
	}
	delete(s.dirty, file)
	s.logger.Debug("stored table marks", "dir", s.dir, "file", file, "marks", len(ms))
	return nil
}

// fileMarks returns the marks of file, loading them on first use. A file
// without a marks file has no tables.
func (s *Storage) fileMarks(file int) ([]mark, error) {
	s.mu.RLock()
	ms, ok := s.marks[file]
	s.mu.RUnlock()
	if ok {
		return ms, nil
	}
	raw, err := fs.ReadFile(s.fsys, s.marksPath(file))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read marks of file %d: %w", file, err)
	}
	if err == nil {
		if ms, err = parseMarks(raw); err != nil {
			return nil, fmt.Errorf("marks of file %d: %w", file, err)
		}
	}
	s.mu.Lock()
	if cur, ok := s.marks[file]; ok {
		ms = cur
	} else {
		s.marks[file] = ms
	}
	s.mu.Unlock()
	return ms, nil
}

func parseMarks(raw []byte) ([]mark, error) {
	if len(raw) < 8 {
		return nil, errors.New("truncated marks header")
	}
	n := binenc.Read8(raw, 0)
	if n < 0 || int64(len(raw)-8) != n*markSize {
		return nil, fmt.Errorf("marks size mismatch: %d entries in %d bytes", n, len(raw))
	}
	ms := make([]mark, n)
	for i := range ms {
		off := 8 + i*markSize
		ms[i] = mark{
			pos:   binenc.Read5(raw, off),
			key:   binenc.Read5(raw, off+5),
			strat: Strategy(raw[off+10]),
		}
	}
	return ms, nil
}

// Table returns the bytes and strategy of the table at (file, mk). The
// bytes of the file being appended to are invalidated by further writes.
func (s *Storage) Table(file int, mk int64) ([]byte, Strategy, error) {
	ms, err := s.fileMarks(file)
	if err != nil {
		return nil, 0, err
	}
	if mk < 0 || mk >= int64(len(ms)) {
		return nil, 0, fmt.Errorf("%w: file %d mark %d", ErrNoTable, file, mk)
	}
	buf, err := s.mgr.Buffer(file)
	if err != nil {
		return nil, 0, err
	}
	start := ms[mk].pos
	end := int64(len(buf))
	if mk+1 < int64(len(ms)) {
		end = ms[mk+1].pos
	}
	if start > end || end > int64(len(buf)) {
		return nil, 0, corrupt(ms[mk].strat, "table bounds [%d, %d) outside file %d", start, end, file)
	}
	return buf[start:end], ms[mk].strat, nil
}

// Open returns a table reader over the table at (file, mk).
func (s *Storage) Open(file int, mk int64, key, c1, c2 int64) (*Table, error) {
	data, strat, err := s.Table(file, mk)
	if err != nil {
		return nil, err
	}
	return Open(strat, key, data, c1, c2)
}

// NTables returns the number of tables in all files.
func (s *Storage) NTables() (int64, error) {
	var n int64
	for f := 0; f < s.NFiles(); f++ {
		ms, err := s.fileMarks(f)
		if err != nil {
			return 0, err
		}
		n += int64(len(ms))
	}
	return n, nil
}

// Terms returns a TermItr over the keys of the storage. count supplies the
// number of pairs of a key and may be nil.
func (s *Storage) Terms(count func(key int64) int64) (*TermItr, error) {
	var all [][]mark
	for f := 0; f < s.NFiles(); f++ {
		ms, err := s.fileMarks(f)
		if err != nil {
			return nil, err
		}
		all = append(all, ms)
	}
	t := &TermItr{}
	t.init(all, count)
	return t, nil
}

// Close flushes pending marks and releases the data files.
func (s *Storage) Close() error {
	var err error
	if !s.opts.ReadOnly {
		err = s.StopInsert()
	}
	if cerr := s.mgr.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
