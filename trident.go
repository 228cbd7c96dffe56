package trident

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/trident/internal/cacheidx"
	"github.com/hupe1980/trident/internal/compress"
	"github.com/hupe1980/trident/internal/diff"
	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/loader"
	"github.com/hupe1980/trident/internal/manifest"
	"github.com/hupe1980/trident/internal/perm"
	"github.com/hupe1980/trident/internal/resource"
	"github.com/hupe1980/trident/internal/tables"
	"github.com/hupe1980/trident/internal/tree"
	"github.com/hupe1980/trident/internal/tree/flat"
)

// Triple is a statement of three term IDs.
type Triple = perm.Triple

// PairItr iterates the pairs of a table or of a merged view of tables.
type PairItr = itr.PairItr

// Pair is one (Value1, Value2) row of a table.
type Pair = itr.Pair

// TermCoordinates locates the tables a term leads in each permutation.
type TermCoordinates = tree.Coordinates

// Permutations. The reverse of a permutation is at distance three and
// shares its leading column.
const (
	SPO = perm.SPO
	OPS = perm.OPS
	POS = perm.POS
	SOP = perm.SOP
	OSP = perm.OSP
	PSO = perm.PSO
)

const (
	// Any marks an unbound position of a pattern.
	Any = itr.NoConstraint
	// Join marks an unbound position that takes part in a join. It only
	// influences the permutation chosen by Querier.Index.
	Join = -2
	// MaxTerm is the largest term ID a knowledge base can store.
	MaxTerm = loader.MaxTerm
)

// KB is an opened knowledge base: the permutation tables, the term tree
// and the update layers listed by the current manifest.
//
// A KB is safe for concurrent use. Queries run through a Querier, which
// is bound to one goroutine.
type KB struct {
	dir    string
	opts   options
	mstore *manifest.Store
	res    *resource.Controller

	storages [perm.Count]*tables.Storage
	tree     *tree.Tree[int64, tree.Coordinates]
	flat     *flat.Tree
	caches   [perm.Count]*cacheidx.CacheIdx

	mu       sync.RWMutex
	manifest *manifest.Manifest
	diffs    []diff.Index
	closed   bool

	// tree cache counters already reported to the metrics collector
	reportedHits, reportedMisses atomic.Int64
}

// Open opens the knowledge base in dir.
//
// Example:
//
//	kb, err := trident.Open("./kb", trident.WithLogLevel(slog.LevelDebug))
//	if err != nil {
//	    return err
//	}
//	defer kb.Close()
//	q, err := kb.NewQuerier()
func Open(dir string, optFns ...Option) (*KB, error) {
	o := applyOptions(optFns)
	ctx := context.Background()

	kb, err := open(dir, o)
	if err != nil {
		o.logger.LogOpen(ctx, dir, 0, err)
		return nil, translateError(err)
	}
	o.logger.LogOpen(ctx, dir, len(kb.diffs), nil)
	return kb, nil
}

func open(dir string, o options) (*KB, error) {
	mstore := manifest.NewStore(o.fs, dir)
	m, err := mstore.Load()
	if err != nil {
		return nil, err
	}

	kb := &KB{
		dir:      dir,
		opts:     o,
		mstore:   mstore,
		manifest: m,
		res: resource.NewController(resource.Config{
			MemoryLimitBytes:     o.memoryLimit,
			MaxBackgroundWorkers: o.backgroundWorkers,
		}),
	}
	if err := kb.openTables(); err != nil {
		return nil, errors.Join(err, kb.close())
	}
	if err := kb.loadDiffs(); err != nil {
		return nil, errors.Join(err, kb.close())
	}
	return kb, nil
}

func (kb *KB) openTables() error {
	logger := kb.opts.logger.WithDir(kb.dir)
	for p, pi := range kb.manifest.Perms {
		if !pi.Materialized {
			continue
		}
		st, err := tables.OpenStorage(loader.TablesDir(kb.dir, p), tables.StorageOptions{
			ReadOnly:  true,
			Resources: kb.res,
			FS:        kb.opts.fs,
			Logger:    logger.WithPerm(perm.Name(p)).Logger,
		})
		if err != nil {
			return fmt.Errorf("open %s tables: %w", perm.Name(p), err)
		}
		kb.storages[p] = st
	}

	t, err := tree.Open(tree.Config{
		Dir:                filepath.Join(kb.dir, loader.TreeDir),
		ReadOnly:           true,
		MaxElementsPerNode: kb.manifest.MaxElementsPerNode,
		MaxNodesInCache:    kb.opts.maxNodesInCache,
		Compression:        compress.Type(kb.manifest.NodeCompression),
		Concurrent:         kb.opts.concurrent,
		FS:                 kb.opts.fs,
		Logger:             logger.WithComponent("tree").Logger,
	}, tree.Int64Key{}, tree.CoordinatesCodec{})
	if err != nil {
		return fmt.Errorf("open term tree: %w", err)
	}
	kb.tree = t

	if kb.opts.flatTree && kb.manifest.FlatTree {
		ft, err := flat.Open(filepath.Join(kb.dir, loader.FlatFile), false)
		if err != nil {
			return fmt.Errorf("open flat tree: %w", err)
		}
		kb.flat = ft
	}

	if kb.opts.cacheIdxCapacity >= 0 {
		for p := range kb.caches {
			if kb.storages[p] != nil || kb.storages[perm.Reverse(p)] == nil {
				continue
			}
			c, err := cacheidx.New(kb.opts.cacheIdxCapacity)
			if err != nil {
				return err
			}
			kb.caches[p] = c
		}
	}
	return nil
}

// loadDiffs rebuilds the update layers of the manifest in sequence order.
// Each layer is indexed against the view formed by the base and the layers
// before it. Layer directories the manifest does not list are left over
// from interrupted updates and are removed.
func (kb *KB) loadDiffs() error {
	listed := make(map[string]bool, len(kb.manifest.Diffs))
	for _, d := range kb.manifest.Diffs {
		listed[filepath.Join(kb.dir, d.Path)] = true
		typ, err := diff.ParseType(d.Type)
		if err != nil {
			return err
		}
		path := filepath.Join(kb.dir, d.Path)
		ts, err := diff.Load(path, kb.opts.readOnly)
		if err != nil {
			return err
		}
		idx, err := diff.New(typ, ts, kb.newQuerier(kb.manifest, kb.diffs).view(), kb.diffOptions())
		if err != nil {
			return fmt.Errorf("diff layer %d: %w", d.Seq, err)
		}
		kb.diffs = append(kb.diffs, idx)
		kb.opts.logger.LogDiffLayer(context.Background(), d.Seq, d.Type, idx.Size(), nil)
	}

	if kb.opts.readOnly {
		return nil
	}
	layers, err := diff.ListLayers(kb.dir)
	if err != nil {
		return err
	}
	for _, l := range layers {
		if listed[l.Path] {
			continue
		}
		kb.opts.logger.Warn("removing unlisted diff layer", "path", l.Path)
		if err := kb.opts.fs.RemoveAll(l.Path); err != nil {
			return err
		}
	}
	return nil
}

func (kb *KB) diffOptions() diff.Options {
	return diff.Options{
		TreeThreshold:      kb.opts.diffTreeThresh,
		MaxElementsPerNode: kb.manifest.MaxElementsPerNode,
		Logger:             kb.opts.logger.WithComponent("diff").Logger,
	}
}

// coords returns the table coordinates of key.
func (kb *KB) coords(key int64) (tree.Coordinates, bool, error) {
	if key < 0 {
		return tree.Coordinates{}, false, nil
	}
	if kb.flat != nil {
		c, ok := kb.flat.Get(key)
		return c, ok, nil
	}
	return kb.tree.Get(key)
}

// WalkTerms calls fn for every term of the term tree in ascending order.
// Terms only present in update layers are not visited.
func (kb *KB) WalkTerms(fn func(term int64, c TermCoordinates) error) error {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if kb.closed {
		return ErrClosed
	}
	it, err := kb.tree.Iterator()
	if err != nil {
		return translateError(err)
	}
	for it.HasNext() {
		it.Next()
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return translateError(it.Err())
}

// Dir returns the directory of the knowledge base.
func (kb *KB) Dir() string { return kb.dir }

// NewQuerier returns a querier over the current state of the knowledge
// base. Updates applied later are not visible to it.
func (kb *KB) NewQuerier() (*Querier, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if kb.closed {
		return nil, ErrClosed
	}
	return kb.newQuerier(kb.manifest, kb.diffs), nil
}

// Stats describes a knowledge base.
type Stats struct {
	NTriples   int64
	NTerms     int64
	Perms      [perm.Count]PermStats
	Aggregated bool
	DiffLayers int
	// DiffTriples is the number of triples held by additions minus those
	// held by deletions.
	DiffTriples int64
	Tree        tree.Stats
	CacheIdx    [perm.Count]cacheidx.Counters
	MemoryUsage int64
}

// Stats returns the size of the knowledge base and its cache counters.
func (kb *KB) Stats() (Stats, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if kb.closed {
		return Stats{}, ErrClosed
	}

	m := kb.manifest
	s := Stats{
		NTriples:    m.NTriples,
		NTerms:      m.NTerms,
		Aggregated:  m.Aggregated,
		DiffLayers:  len(kb.diffs),
		Tree:        kb.tree.Stats(),
		MemoryUsage: kb.res.MemoryUsage(),
	}
	for p, pi := range m.Perms {
		s.Perms[p] = PermStats{
			Materialized: pi.Materialized,
			Tables:       pi.Tables,
			NFirstTables: pi.NFirstTables,
			Aggregated:   pi.Aggregated,
			Files:        int(pi.Files),
		}
		if c := kb.caches[p]; c != nil {
			s.CacheIdx[p] = c.Counters()
		}
	}
	for _, d := range kb.diffs {
		if d.Type() == diff.Addition {
			s.DiffTriples += d.Size()
		} else {
			s.DiffTriples -= d.Size()
		}
	}
	kb.reportTreeCache(s.Tree)
	return s, nil
}

func (kb *KB) reportTreeCache(ts tree.Stats) {
	hits := ts.CacheHits - kb.reportedHits.Swap(ts.CacheHits)
	misses := ts.CacheMisses - kb.reportedMisses.Swap(ts.CacheMisses)
	if hits > 0 || misses > 0 {
		kb.opts.metricsCollector.RecordTreeCache(hits, misses)
	}
}

// ClearCaches drops the cached tables of permutations served from their
// reverse.
func (kb *KB) ClearCaches() {
	for p, c := range kb.caches {
		if c == nil {
			continue
		}
		n := c.Counters()
		c.Clear()
		kb.opts.logger.LogCacheEviction(context.Background(), perm.Name(p), n.Hits, n.Misses)
	}
}

// Close releases the files of the knowledge base. Queriers must not be
// used afterwards.
func (kb *KB) Close() error {
	if kb == nil {
		return nil
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.closed {
		return nil
	}
	kb.closed = true
	if kb.tree != nil {
		kb.reportTreeCache(kb.tree.Stats())
	}
	return kb.close()
}

func (kb *KB) close() error {
	var errs []error
	for _, d := range kb.diffs {
		errs = append(errs, d.Close())
	}
	kb.diffs = nil
	for _, c := range kb.caches {
		if c != nil {
			c.Close()
		}
	}
	if kb.flat != nil {
		errs = append(errs, kb.flat.Close())
	}
	if kb.tree != nil {
		errs = append(errs, kb.tree.Close())
	}
	for _, st := range kb.storages {
		if st != nil {
			errs = append(errs, st.Close())
		}
	}
	return errors.Join(errs...)
}

// snapshotDiffs returns the layers with spare capacity removed so that an
// append made for a new layer never writes into a slice a querier holds.
func snapshotDiffs(d []diff.Index) []diff.Index { return slices.Clip(d) }
