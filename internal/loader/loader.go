// Package loader bulk-loads a set of triples into the on-disk layout of a
// knowledge base: one table storage per permutation plus the tree that maps
// every term to the coordinates of its tables.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/trident/internal/compress"
	"github.com/hupe1980/trident/internal/fs"
	"github.com/hupe1980/trident/internal/itr"
	"github.com/hupe1980/trident/internal/perm"
	"github.com/hupe1980/trident/internal/resource"
	"github.com/hupe1980/trident/internal/tables"
	"github.com/hupe1980/trident/internal/tree"
	"github.com/hupe1980/trident/internal/tree/flat"
)

// ErrExists is returned when the target directory already holds a KB.
var ErrExists = errors.New("loader: directory already holds a knowledge base")

// ErrTermRange is returned for a term outside [0, MaxTerm].
var ErrTermRange = errors.New("loader: term out of range")

// MaxTerm is the largest term a table mark can hold.
const MaxTerm = 1<<40 - 1

func validTerm(t int64) bool { return t >= 0 && t <= MaxTerm }

const (
	// TreeDir is the directory of the term tree inside a KB.
	TreeDir = "tree"
	// FlatFile is the optional flat snapshot of the term tree.
	FlatFile = "tree.flat"
)

// TablesDir returns the table directory of permutation p inside kbDir.
func TablesDir(kbDir string, p int) string {
	return filepath.Join(kbDir, perm.Name(p))
}

// Options configures a build.
type Options struct {
	// SkipReversed materializes SPO, OPS and POS only. The other three
	// permutations are served by reordering their reverse at query time.
	SkipReversed bool
	// Aggregate stores POS and PSO tables aggregated when their first
	// column repeats enough.
	Aggregate bool
	// OldFormats selects among Row, Cluster and Column instead of the
	// fixed-width layouts.
	OldFormats           bool
	ClusterColumnTerms   int
	UseRowForLargeTables bool
	MaxFileSize          int64
	Inserter             tables.InserterOptions

	MaxElementsPerNode int
	MaxNodesInCache    int
	NodeCompression    compress.Type
	// FlatTree also writes the flat snapshot of the term tree.
	FlatTree bool

	FS        fs.FileSystem
	Resources *resource.Controller
	Logger    *slog.Logger
}

func (o *Options) defaults() {
	if o.ClusterColumnTerms <= 0 {
		o.ClusterColumnTerms = tables.DefaultClusterColumnTerms
	}
	if o.FS == nil {
		o.FS = fs.Default
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// PermStats describes the tables written for one permutation.
type PermStats struct {
	Materialized bool
	Tables       int64
	// NFirstTables counts the distinct (key, first value) pairs.
	NFirstTables int64
	Aggregated   int64
	Files        int
}

// Result summarizes a build.
type Result struct {
	NTriples int64
	NTerms   int64
	Perms    [perm.Count]PermStats
	Strategy tables.Stats
	Duration time.Duration
}

// Materialized returns the permutations a build with opts writes.
func Materialized(opts Options) []int {
	if opts.SkipReversed {
		return []int{perm.SPO, perm.OPS, perm.POS}
	}
	return []int{perm.SPO, perm.OPS, perm.POS, perm.SOP, perm.OSP, perm.PSO}
}

// keyTable is the table of one key in one permutation.
type keyTable struct {
	key int64
	t   tree.Table
}

type builder struct {
	dir  string
	opts Options
	rows []perm.Triple

	mu    sync.Mutex
	stats tables.Stats

	keys [perm.Count][]keyTable
	res  Result
}

// Build writes triples into the empty directory dir. Duplicate triples
// are stored once.
func Build(ctx context.Context, dir string, triples []perm.Triple, opts Options) (*Result, error) {
	opts.defaults()
	start := time.Now()

	rows := slices.Clone(triples)
	slices.SortFunc(rows, perm.Triple.Compare)
	rows = slices.Compact(rows)
	for _, t := range rows {
		if !validTerm(t.S) || !validTerm(t.P) || !validTerm(t.O) {
			return nil, fmt.Errorf("%w: %v", ErrTermRange, t)
		}
	}

	if _, err := opts.FS.Stat(filepath.Join(dir, TreeDir)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, dir)
	}
	if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}

	b := &builder{dir: dir, opts: opts, rows: rows}
	b.res.NTriples = int64(len(rows))

	// Aggregated POS and PSO rows point into OPS and SPO, so those are
	// written first.
	var first, second []int
	for _, p := range Materialized(opts) {
		if p == perm.POS || p == perm.PSO {
			second = append(second, p)
		} else {
			first = append(first, p)
		}
	}
	for _, phase := range [][]int{first, second} {
		if err := b.runPhase(ctx, phase); err != nil {
			return nil, err
		}
	}
	// Permutations served from their reverse still report how many
	// (key, first value) groups they hold.
	for p := range b.res.Perms {
		if !b.res.Perms[p].Materialized {
			b.res.Perms[p].NFirstTables = countGroups(b.sortedRows(p))
		}
	}

	n, err := b.writeTree()
	if err != nil {
		return nil, err
	}
	b.res.NTerms = n
	b.res.Strategy = b.stats
	b.res.Duration = time.Since(start)

	opts.Logger.Info("built knowledge base",
		"dir", dir, "triples", b.res.NTriples, "terms", n, "duration", b.res.Duration)
	return &b.res, nil
}

func (b *builder) runPhase(ctx context.Context, perms []int) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range perms {
		g.Go(func() error {
			if err := b.opts.Resources.AcquireBackground(ctx); err != nil {
				return err
			}
			defer b.opts.Resources.ReleaseBackground()
			if err := b.buildPerm(ctx, p); err != nil {
				return fmt.Errorf("loader: permutation %s: %w", perm.Name(p), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// sortedRows returns the triples permuted into the column order of p.
func (b *builder) sortedRows(p int) []itr.Row {
	out := make([]itr.Row, len(b.rows))
	for i, t := range b.rows {
		k, v1, v2 := t.In(p)
		out[i] = itr.Row{Key: k, V1: v1, V2: v2}
	}
	slices.SortFunc(out, itr.Row.Compare)
	return out
}

func (b *builder) buildPerm(ctx context.Context, p int) (err error) {
	st, err := tables.OpenStorage(TablesDir(b.dir, p), tables.StorageOptions{
		MaxFileSize: b.opts.MaxFileSize,
		Resources:   b.opts.Resources,
		FS:          b.opts.FS,
		Inserter:    b.opts.Inserter,
		Logger:      b.opts.Logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var (
		stats  tables.Stats
		ps     = PermStats{Materialized: true}
		keys   []keyTable
		pairs  []itr.Pair
		source []keyTable
	)
	if b.opts.Aggregate {
		switch p {
		case perm.POS:
			source = b.keys[perm.OPS]
		case perm.PSO:
			source = b.keys[perm.SPO]
		}
	}

	rows := b.sortedRows(p)
	for i := 0; i < len(rows); {
		if err := ctx.Err(); err != nil {
			return err
		}
		j := i
		pairs = pairs[:0]
		for ; j < len(rows) && rows[j].Key == rows[i].Key; j++ {
			pairs = append(pairs, itr.Pair{V1: rows[j].V1, V2: rows[j].V2})
		}
		key := rows[i].Key
		i = j

		firsts := countFirsts(pairs)
		ps.NFirstTables += firsts

		content, strat, aggr, err := b.layout(pairs, source, &stats)
		if err != nil {
			return fmt.Errorf("key %d: %w", key, err)
		}
		if aggr {
			ps.Aggregated++
		}
		file, mk, err := st.StartAppend(key, strat)
		if err != nil {
			return err
		}
		for _, pr := range content {
			if err := st.Append(pr.V1, pr.V2); err != nil {
				return err
			}
		}
		if err := st.StopAppend(); err != nil {
			return err
		}
		keys = append(keys, keyTable{key: key, t: tree.Table{
			File:      uint16(file),
			Mark:      mk,
			Strategy:  byte(strat),
			NElements: int64(len(pairs)),
		}})
	}
	if err := st.StopInsert(); err != nil {
		return err
	}
	ps.Tables = int64(len(keys))
	ps.Files = st.NFiles()

	b.mu.Lock()
	b.keys[p] = keys
	b.res.Perms[p] = ps
	mergeStats(&b.stats, &stats)
	b.mu.Unlock()

	b.opts.Logger.Debug("built permutation",
		"perm", perm.Name(p), "tables", ps.Tables, "aggregated", ps.Aggregated, "files", ps.Files)
	return nil
}

// layout chooses the strategy of a table and returns the pairs to store.
// With a source permutation the table may be stored as (first value,
// coordinates of the source table holding the rest) rows.
func (b *builder) layout(pairs []itr.Pair, source []keyTable, stats *tables.Stats) ([]itr.Pair, tables.Strategy, bool, error) {
	if source != nil && tables.DetermineAggregated(pairs, stats) {
		content, err := aggregate(pairs, source)
		if err != nil {
			return nil, 0, false, err
		}
		s := b.strategy(content, stats)
		if s.StorageType() == tables.NewCluster {
			s = tables.NewStrategy(tables.NewRow, s.Width1(), s.Width2(), false)
		}
		return content, s.WithAggregated(), true, nil
	}
	return pairs, b.strategy(pairs, stats), false, nil
}

func (b *builder) strategy(pairs []itr.Pair, stats *tables.Stats) tables.Strategy {
	if b.opts.OldFormats {
		return tables.DetermineStrategyOld(pairs, len(pairs), b.opts.ClusterColumnTerms, stats)
	}
	return tables.DetermineStrategy(pairs, len(pairs), b.opts.ClusterColumnTerms, b.opts.UseRowForLargeTables, stats)
}

// aggregate collapses each run of equal first values into one row holding
// the packed coordinates of the source table keyed by that value.
func aggregate(pairs []itr.Pair, source []keyTable) ([]itr.Pair, error) {
	var out []itr.Pair
	for i, pr := range pairs {
		if i > 0 && pairs[i-1].V1 == pr.V1 {
			continue
		}
		j, ok := slices.BinarySearchFunc(source, pr.V1, func(kt keyTable, k int64) int {
			switch {
			case kt.key < k:
				return -1
			case kt.key > k:
				return 1
			}
			return 0
		})
		if !ok {
			return nil, fmt.Errorf("no source table for term %d", pr.V1)
		}
		t := source[j].t
		out = append(out, itr.Pair{V1: pr.V1, V2: itr.PackCoordinates(t.File, t.Mark)})
	}
	return out, nil
}

func countFirsts(pairs []itr.Pair) int64 {
	var n int64
	for i := range pairs {
		if i == 0 || pairs[i-1].V1 != pairs[i].V1 {
			n++
		}
	}
	return n
}

func countGroups(rows []itr.Row) int64 {
	var n int64
	for i := range rows {
		if i == 0 || rows[i-1].Key != rows[i].Key || rows[i-1].V1 != rows[i].V1 {
			n++
		}
	}
	return n
}

// writeTree merges the key lists of every permutation into the term tree.
func (b *builder) writeTree() (int64, error) {
	t, err := tree.Open(tree.Config{
		Dir:                filepath.Join(b.dir, TreeDir),
		MaxElementsPerNode: b.opts.MaxElementsPerNode,
		MaxNodesInCache:    b.opts.MaxNodesInCache,
		Compression:        b.opts.NodeCompression,
		FS:                 b.opts.FS,
		Logger:             b.opts.Logger,
	}, tree.Int64Key{}, tree.CoordinatesCodec{})
	if err != nil {
		return 0, fmt.Errorf("loader: open tree: %w", err)
	}

	var pos [perm.Count]int
	var n int64
	for {
		next, found := int64(0), false
		for p := range b.keys {
			if pos[p] < len(b.keys[p]) {
				if k := b.keys[p][pos[p]].key; !found || k < next {
					next, found = k, true
				}
			}
		}
		if !found {
			break
		}
		var c tree.Coordinates
		for p := range b.keys {
			if pos[p] < len(b.keys[p]) && b.keys[p][pos[p]].key == next {
				c.Set(p, b.keys[p][pos[p]].t)
				pos[p]++
			}
		}
		if err := t.Append(next, c); err != nil {
			t.Close()
			return 0, fmt.Errorf("loader: tree append %d: %w", next, err)
		}
		n++
	}

	if b.opts.FlatTree {
		if _, err := flat.Write(b.opts.FS, filepath.Join(b.dir, FlatFile), t, false); err != nil {
			t.Close()
			return 0, fmt.Errorf("loader: flat tree: %w", err)
		}
	}
	if err := t.Close(); err != nil {
		return 0, fmt.Errorf("loader: close tree: %w", err)
	}
	return n, nil
}

func mergeStats(dst, src *tables.Stats) {
	dst.Exact += src.Exact
	dst.Approximate += src.Approximate
	dst.Lists += src.Lists
	dst.Groups += src.Groups
	dst.Columns += src.Columns
	dst.Aggregated += src.Aggregated
	dst.NotAggregated += src.NotAggregated
	dst.Diff += src.Diff
	dst.NoDiff += src.NoDiff
	dst.FirstVLong2 += src.FirstVLong2
	dst.FirstVLong += src.FirstVLong
	dst.SecondVLong2 += src.SecondVLong2
	dst.SecondVLong += src.SecondVLong
	dst.Overflow += src.Overflow
}
