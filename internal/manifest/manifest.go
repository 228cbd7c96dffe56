package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/trident/internal/fs"
	"github.com/hupe1980/trident/internal/perm"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

// Manifest describes a knowledge base at a specific point in time.
type Manifest struct {
	Version   int
	ID        uint64
	CreatedAt time.Time

	NTriples int64
	NTerms   int64
	Perms    [perm.Count]PermInfo

	// Aggregated is set when POS and PSO tables may be aggregated.
	Aggregated         bool
	FlatTree           bool
	MaxElementsPerNode int
	NodeCompression    uint8

	NextDiffSeq uint64
	Diffs       []DiffInfo
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{
		Version:     CurrentVersion,
		CreatedAt:   time.Now(),
		NextDiffSeq: 1,
	}
}

// PermInfo describes the tables of one permutation.
type PermInfo struct {
	Materialized bool
	Tables       int64
	NFirstTables int64
	Aggregated   int64
	Files        uint32
}

// DiffInfo describes one diff layer. Layers apply in Seq order.
type DiffInfo struct {
	Seq  uint64
	Type string
	Size int64
	Path string // relative to the KB directory
}

// Materialized returns the permutations that have tables.
func (m *Manifest) Materialized() []int {
	var out []int
	for p, pi := range m.Perms {
		if pi.Materialized {
			out = append(out, p)
		}
	}
	return out
}

// AddDiff appends a layer and assigns its sequence number.
func (m *Manifest) AddDiff(typ string, size int64, path string) DiffInfo {
	d := DiffInfo{Seq: m.NextDiffSeq, Type: typ, Size: size, Path: path}
	m.NextDiffSeq++
	m.Diffs = append(m.Diffs, d)
	return d
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Diffs = slices.Clone(m.Diffs)
	return &c
}

// Store manages the manifest files of a KB directory.
type Store struct {
	fsys fs.FileSystem
	dir  string
	mu   sync.Mutex
}

// NewStore creates a manifest store over dir. A nil fsys uses the local
// file system.
func NewStore(fsys fs.FileSystem, dir string) *Store {
	if fsys == nil {
		fsys = fs.Default
	}
	return &Store{fsys: fsys, dir: dir}
}

func fileName(id uint64) string {
	return fmt.Sprintf("%s-%06d.bin", ManifestFileName, id)
}

// Load loads the current manifest.
func (s *Store) Load() (*Manifest, error) {
	return s.LoadVersion(0)
}

// LoadVersion loads a specific version ID. 0 means latest.
func (s *Store) LoadVersion(versionID uint64) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fileName(versionID)
	if versionID == 0 {
		content, err := fs.ReadFile(s.fsys, filepath.Join(s.dir, CurrentFileName))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		name = strings.TrimSpace(string(content))
	}

	data, err := fs.ReadFile(s.fsys, filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open manifest %s: %w", name, err)
	}
	m, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", name, err)
	}
	return m, nil
}

// ListVersions returns the IDs of the stored manifests in ascending order.
func (s *Store) ListVersions() ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.fsys.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, e := range entries {
		rest, ok := strings.CutPrefix(e.Name(), ManifestFileName+"-")
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(rest, ".bin"), 10, 64)
		if err != nil || !strings.HasSuffix(rest, ".bin") {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Save writes m as a new version and makes it current. It assigns the
// next ID and the creation time.
func (s *Store) Save(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.ID++
	m.CreatedAt = time.Now()

	data, err := m.Marshal()
	if err != nil {
		return err
	}
	name := fileName(m.ID)
	if err := fs.WriteFileAtomic(s.fsys, filepath.Join(s.dir, name), data); err != nil {
		return err
	}
	return fs.WriteFileAtomic(s.fsys, filepath.Join(s.dir, CurrentFileName), []byte(name))
}

// DeleteVersion deletes the manifest file of versionID.
func (s *Store) DeleteVersion(versionID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsys.Remove(filepath.Join(s.dir, fileName(versionID)))
}

// Prune deletes every version except the newest keep ones.
func (s *Store) Prune(keep int) error {
	ids, err := s.ListVersions()
	if err != nil {
		return err
	}
	for len(ids) > max(keep, 1) {
		if err := s.DeleteVersion(ids[0]); err != nil {
			return err
		}
		ids = ids[1:]
	}
	return nil
}
