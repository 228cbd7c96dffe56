package trident

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/trident/internal/loader"
	"github.com/hupe1980/trident/internal/manifest"
	"github.com/hupe1980/trident/internal/perm"
	"github.com/hupe1980/trident/internal/resource"
	"github.com/hupe1980/trident/internal/tables"
)

// PermStats describes the tables of one permutation.
type PermStats struct {
	Materialized bool
	Tables       int64
	// NFirstTables counts the distinct (key, first value) pairs.
	NFirstTables int64
	Aggregated   int64
	Files        int
}

// BuildResult summarizes a bulk load.
type BuildResult struct {
	NTriples int64
	NTerms   int64
	Perms    [perm.Count]PermStats
	// Layouts counts the strategy decisions taken while writing tables.
	Layouts  map[string]int64
	Duration time.Duration
}

// Build bulk-loads triples into dir, which must not already hold a
// knowledge base. Duplicate triples are stored once. Terms must lie in
// [0, MaxTerm].
//
// Example:
//
//	res, err := trident.Build(ctx, "./kb", triples,
//	    trident.WithAggregation(true),
//	    trident.WithFlatTree(true))
func Build(ctx context.Context, dir string, triples []Triple, optFns ...Option) (*BuildResult, error) {
	o := applyOptions(optFns)
	start := time.Now()

	res, err := build(ctx, dir, triples, o)
	o.metricsCollector.RecordBuild(int64(len(triples)), time.Since(start), err)
	if err != nil {
		o.logger.LogBuild(ctx, dir, 0, 0, 0, err)
		return nil, translateError(err)
	}
	o.logger.LogBuild(ctx, dir, res.NTriples, res.NTerms, res.Duration, nil)
	return res, nil
}

func build(ctx context.Context, dir string, triples []Triple, o options) (*BuildResult, error) {
	res, err := loader.Build(ctx, dir, triples, loader.Options{
		SkipReversed:         o.skipReversed,
		Aggregate:            o.aggregate,
		OldFormats:           o.oldFormats,
		ClusterColumnTerms:   o.clusterColumnTerms,
		UseRowForLargeTables: o.useRowForLargeTables,
		MaxFileSize:          o.maxFileSize,
		Inserter: tables.InserterOptions{
			TmpDir:             o.tmpDir,
			ThresholdToOffload: o.offloadThreshold,
		},
		MaxElementsPerNode: o.maxElementsPerNode,
		MaxNodesInCache:    o.maxNodesInCache,
		NodeCompression:    o.nodeCompression,
		FlatTree:           o.flatTree,
		FS:                 o.fs,
		Resources: resource.NewController(resource.Config{
			MemoryLimitBytes:     o.memoryLimit,
			MaxBackgroundWorkers: o.backgroundWorkers,
		}),
		Logger: o.logger.WithComponent("loader").Logger,
	})
	if err != nil {
		return nil, err
	}

	m := manifest.New()
	m.NTriples, m.NTerms = res.NTriples, res.NTerms
	m.Aggregated = o.aggregate
	m.FlatTree = o.flatTree
	m.MaxElementsPerNode = o.maxElementsPerNode
	m.NodeCompression = uint8(o.nodeCompression)
	for p, ps := range res.Perms {
		m.Perms[p] = manifest.PermInfo{
			Materialized: ps.Materialized,
			Tables:       ps.Tables,
			NFirstTables: ps.NFirstTables,
			Aggregated:   ps.Aggregated,
			Files:        uint32(ps.Files),
		}
	}
	if err := manifest.NewStore(o.fs, dir).Save(m); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	out := &BuildResult{
		NTriples: res.NTriples,
		NTerms:   res.NTerms,
		Layouts:  layoutCounts(res.Strategy),
		Duration: res.Duration,
	}
	for p, ps := range res.Perms {
		out.Perms[p] = PermStats(ps)
	}
	return out, nil
}

func layoutCounts(s tables.Stats) map[string]int64 {
	return map[string]int64{
		"row":         s.Lists,
		"cluster":     s.Groups,
		"column":      s.Columns,
		"aggregated":  s.Aggregated,
		"exact":       s.Exact,
		"approximate": s.Approximate,
	}
}
