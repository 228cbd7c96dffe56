package trident

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/trident/internal/itr"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordQuery is called after an iterator has been built for a pattern.
	RecordQuery(perm int, duration time.Duration, err error)

	// RecordIterator is called for the outermost iterator of each query.
	RecordIterator(typ string)

	// RecordTreeCache reports the node cache counters of the term tree
	// accumulated since the previous call.
	RecordTreeCache(hits, misses int64)

	// RecordCacheIdx reports a reverse-table cache hit or miss.
	RecordCacheIdx(hit bool)

	// RecordBuild is called after a bulk load.
	RecordBuild(triples int64, duration time.Duration, err error)

	// RecordDiffLayer is called after an update layer has been written.
	RecordDiffLayer(size int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordIterator(string)                       {}
func (NoopMetricsCollector) RecordTreeCache(int64, int64)                {}
func (NoopMetricsCollector) RecordCacheIdx(bool)                         {}
func (NoopMetricsCollector) RecordBuild(int64, time.Duration, error)     {}
func (NoopMetricsCollector) RecordDiffLayer(int64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	QueryCount      atomic.Int64
	QueryErrors     atomic.Int64
	QueryTotalNanos atomic.Int64
	PermQueries     [6]atomic.Int64
	Iterators       [itr.NumTypes]atomic.Int64
	TreeCacheHits   atomic.Int64
	TreeCacheMisses atomic.Int64
	CacheIdxHits    atomic.Int64
	CacheIdxMisses  atomic.Int64
	BuildCount      atomic.Int64
	BuildTriples    atomic.Int64
	BuildTotalNanos atomic.Int64
	DiffLayers      atomic.Int64
	DiffTriples     atomic.Int64
	DiffErrors      atomic.Int64
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(perm int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
	if perm >= 0 && perm < len(b.PermQueries) {
		b.PermQueries[perm].Add(1)
	}
}

// RecordIterator implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIterator(typ string) {
	if t, ok := itr.ParseType(typ); ok {
		b.Iterators[t].Add(1)
	}
}

// RecordTreeCache implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTreeCache(hits, misses int64) {
	b.TreeCacheHits.Add(hits)
	b.TreeCacheMisses.Add(misses)
}

// RecordCacheIdx implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheIdx(hit bool) {
	if hit {
		b.CacheIdxHits.Add(1)
	} else {
		b.CacheIdxMisses.Add(1)
	}
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(triples int64, duration time.Duration, err error) {
	if err != nil {
		return
	}
	b.BuildCount.Add(1)
	b.BuildTriples.Add(triples)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
}

// RecordDiffLayer implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDiffLayer(size int64, _ time.Duration, err error) {
	if err != nil {
		b.DiffErrors.Add(1)
		return
	}
	b.DiffLayers.Add(1)
	b.DiffTriples.Add(size)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		QueryCount:      b.QueryCount.Load(),
		QueryErrors:     b.QueryErrors.Load(),
		QueryAvgNanos:   b.getAvgQueryNanos(),
		Iterators:       make(map[string]int64),
		TreeCacheHits:   b.TreeCacheHits.Load(),
		TreeCacheMisses: b.TreeCacheMisses.Load(),
		CacheIdxHits:    b.CacheIdxHits.Load(),
		CacheIdxMisses:  b.CacheIdxMisses.Load(),
		BuildCount:      b.BuildCount.Load(),
		BuildTriples:    b.BuildTriples.Load(),
		BuildTotalNanos: b.BuildTotalNanos.Load(),
		DiffLayers:      b.DiffLayers.Load(),
		DiffTriples:     b.DiffTriples.Load(),
		DiffErrors:      b.DiffErrors.Load(),
	}
	for i := range b.PermQueries {
		s.PermQueries[i] = b.PermQueries[i].Load()
	}
	for i := range b.Iterators {
		if n := b.Iterators[i].Load(); n > 0 {
			s.Iterators[itr.Type(i).String()] = n
		}
	}
	return s
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	QueryCount      int64
	QueryErrors     int64
	QueryAvgNanos   int64
	PermQueries     [6]int64
	Iterators       map[string]int64
	TreeCacheHits   int64
	TreeCacheMisses int64
	CacheIdxHits    int64
	CacheIdxMisses  int64
	BuildCount      int64
	BuildTriples    int64
	BuildTotalNanos int64
	DiffLayers      int64
	DiffTriples     int64
	DiffErrors      int64
}
