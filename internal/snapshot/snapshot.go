package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/trident/blobstore"
	"github.com/hupe1980/trident/internal/resource"
)

// IndexName is the blob listing the files of a snapshot. It is written
// last, so a snapshot without it is incomplete.
const IndexName = "SNAPSHOT"

// CurrentVersion is the version of the index format.
const CurrentVersion = 1

var (
	// ErrChecksum is returned when a transferred file does not match the
	// checksum recorded in the index.
	ErrChecksum = errors.New("snapshot: checksum mismatch")
	// ErrNoSnapshot is returned when the store holds no index.
	ErrNoSnapshot = errors.New("snapshot: no index in store")
	// ErrTargetNotEmpty is returned when pulling into a directory that
	// already holds files.
	ErrTargetNotEmpty = errors.New("snapshot: target directory is not empty")
)

// Entry is one file of a snapshot.
type Entry struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Checksum uint64 `json:"xxh3"`
}

// Index lists the files of a snapshot.
type Index struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Files     []Entry   `json:"files"`
}

// Bytes returns the total size of the files.
func (idx *Index) Bytes() int64 {
	var n int64
	for _, e := range idx.Files {
		n += e.Size
	}
	return n
}

// Options configures Push and Pull.
type Options struct {
	// Resources throttles the transfers and bounds their parallelism.
	Resources *resource.Controller
	// Concurrency is the number of files transferred at once.
	Concurrency int
	Logger      *slog.Logger
}

func (o *Options) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// skip reports whether a file is transient: temporary files written
// before an atomic rename, and badger lock files.
func skip(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(base, ".") || base == "LOCK" || strings.HasSuffix(base, ".tmp")
}

// Push uploads the files below dir to store and writes the index. The
// knowledge base must not be modified while it is pushed.
func Push(ctx context.Context, dir string, store blobstore.BlobStore, opts Options) (*Index, error) {
	opts.defaults()

	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if name == IndexName || skip(name) {
			return nil
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(names)

	entries := make([]Entry, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			if err := opts.Resources.AcquireBackground(gctx); err != nil {
				return err
			}
			defer opts.Resources.ReleaseBackground()
			e, err := upload(gctx, filepath.Join(dir, filepath.FromSlash(name)), name, store, opts.Resources)
			if err != nil {
				return fmt.Errorf("upload %s: %w", name, err)
			}
			opts.Logger.DebugContext(gctx, "uploaded", "name", name, "bytes", e.Size)
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := &Index{Version: CurrentVersion, CreatedAt: time.Now().UTC(), Files: entries}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, IndexName, data); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}
	return idx, nil
}

func upload(ctx context.Context, src, name string, store blobstore.BlobStore, rc *resource.Controller) (Entry, error) {
	f, err := os.Open(src)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	w, err := store.Create(ctx, name)
	if err != nil {
		return Entry{}, err
	}
	h := xxh3.New()
	r := resource.NewRateLimitedReader(ctx, io.TeeReader(f, h), rc)
	n, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		return Entry{}, err
	}
	if err := w.Close(); err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Size: n, Checksum: h.Sum64()}, nil
}

// ReadIndex loads the index of the snapshot in store.
func ReadIndex(ctx context.Context, store blobstore.BlobStore) (*Index, error) {
	b, err := store.Open(ctx, IndexName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	defer b.Close()
	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if idx.Version != CurrentVersion {
		return nil, fmt.Errorf("snapshot: unsupported index version %d", idx.Version)
	}
	return &idx, nil
}

// Pull downloads the snapshot in store into dir, which must be empty or
// missing. Every file is verified against its checksum. On failure the
// partially written directory is removed.
func Pull(ctx context.Context, store blobstore.BlobStore, dir string, opts Options) (_ *Index, err error) {
	opts.defaults()

	if entries, rerr := os.ReadDir(dir); rerr == nil && len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotEmpty, dir)
	}
	idx, err := ReadIndex(ctx, store)
	if err != nil {
		return nil, err
	}
	for _, e := range idx.Files {
		if e.Name == "" || strings.Contains(e.Name, "..") || path.IsAbs(e.Name) {
			return nil, fmt.Errorf("snapshot: invalid file name %q", e.Name)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, e := range idx.Files {
		g.Go(func() error {
			if err := opts.Resources.AcquireBackground(gctx); err != nil {
				return err
			}
			defer opts.Resources.ReleaseBackground()
			if err := download(gctx, store, e, filepath.Join(dir, filepath.FromSlash(e.Name)), opts.Resources); err != nil {
				return fmt.Errorf("download %s: %w", e.Name, err)
			}
			opts.Logger.DebugContext(gctx, "downloaded", "name", e.Name, "bytes", e.Size, "done", done.Add(1))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return idx, nil
}

func download(ctx context.Context, store blobstore.BlobStore, e Entry, dst string, rc *resource.Controller) error {
	b, err := store.Open(ctx, e.Name)
	if err != nil {
		return err
	}
	defer b.Close()
	if b.Size() != e.Size {
		return fmt.Errorf("%w: size %d, expected %d", ErrChecksum, b.Size(), e.Size)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var src io.Reader = strings.NewReader("")
	if e.Size > 0 {
		body, err := b.ReadRange(ctx, 0, e.Size)
		if err != nil {
			return err
		}
		defer body.Close()
		src = body
	}
	h := xxh3.New()
	w := resource.NewRateLimitedWriter(ctx, io.MultiWriter(f, h), rc)
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	if sum := h.Sum64(); sum != e.Checksum {
		return fmt.Errorf("%w: %016x, expected %016x", ErrChecksum, sum, e.Checksum)
	}
	return f.Sync()
}

// Verify recomputes the checksums of the files of idx below dir.
func Verify(dir string, idx *Index) error {
	for _, e := range idx.Files {
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(e.Name)))
		if err != nil {
			return err
		}
		h := xxh3.New()
		n, err := io.Copy(h, f)
		f.Close()
		if err != nil {
			return err
		}
		if n != e.Size || h.Sum64() != e.Checksum {
			return fmt.Errorf("%w: %s", ErrChecksum, e.Name)
		}
	}
	return nil
}
