package trident

import (
	"log/slog"

	"github.com/hupe1980/trident/internal/cacheidx"
	"github.com/hupe1980/trident/internal/compress"
	"github.com/hupe1980/trident/internal/diff"
	"github.com/hupe1980/trident/internal/fs"
	"github.com/hupe1980/trident/internal/tables"
)

// Compression selects how term tree nodes are stored.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	fs               fs.FileSystem

	// open
	readOnly         bool
	concurrent       bool
	maxNodesInCache  int
	cacheIdxCapacity int64
	memoryLimit      int64
	flatTree         bool
	diffTreeThresh   int

	// build
	maxElementsPerNode   int
	nodeCompression      Compression
	skipReversed         bool
	aggregate            bool
	oldFormats           bool
	useRowForLargeTables bool
	clusterColumnTerms   int
	maxFileSize          int64
	backgroundWorkers    int64
	tmpDir               string
	offloadThreshold     int

	// snapshot
	ioLimit         int64
	transferWorkers int
}

// Option configures Open and Build.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &trident.BasicMetricsCollector{}
//	kb, _ := trident.Open(dir, trident.WithMetricsCollector(metrics))
//	// ... query kb ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.QueryCount, stats.QueryAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithReadOnly opens the knowledge base without allowing updates.
func WithReadOnly(readOnly bool) Option {
	return func(o *options) {
		o.readOnly = readOnly
	}
}

// WithConcurrent makes the term tree safe for queriers running on
// different goroutines. It is on by default. Term lookups take no lock of
// the knowledge base, so turning it off is only safe while a single
// goroutine queries.
func WithConcurrent(concurrent bool) Option {
	return func(o *options) {
		o.concurrent = concurrent
	}
}

// WithMaxNodesInCache bounds the term tree nodes kept in memory.
func WithMaxNodesInCache(n int) Option {
	return func(o *options) {
		o.maxNodesInCache = n
	}
}

// WithCacheIdxCapacity bounds the number of pairs cached for permutations
// served from their reverse. A negative capacity disables the cache; such
// tables are then re-sorted on every access.
func WithCacheIdxCapacity(pairs int64) Option {
	return func(o *options) {
		o.cacheIdxCapacity = pairs
	}
}

// WithMemoryLimit sets a hard limit on the bytes of mapped table files and
// build buffers. 0 tracks usage without a limit.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithFlatTree writes the flat snapshot of the term tree when building and
// answers term lookups from it when opening.
func WithFlatTree(enabled bool) Option {
	return func(o *options) {
		o.flatTree = enabled
	}
}

// WithDiffTreeThreshold sets the key count above which update layers index
// their keys with a tree.
func WithDiffTreeThreshold(n int) Option {
	return func(o *options) {
		o.diffTreeThresh = n
	}
}

// WithMaxElementsPerNode bounds the entries of a term tree node.
func WithMaxElementsPerNode(n int) Option {
	return func(o *options) {
		o.maxElementsPerNode = n
	}
}

// WithNodeCompression selects the compression of term tree nodes.
func WithNodeCompression(c Compression) Option {
	return func(o *options) {
		o.nodeCompression = c
	}
}

// WithSkipReversed builds only SPO, OPS and POS. The other permutations are
// answered by re-sorting the table of their reverse.
func WithSkipReversed(skip bool) Option {
	return func(o *options) {
		o.skipReversed = skip
	}
}

// WithAggregation stores POS and PSO tables with few distinct first values
// as pointers into OPS and SPO.
func WithAggregation(enabled bool) Option {
	return func(o *options) {
		o.aggregate = enabled
	}
}

// WithOldFormats builds Row, Cluster and Column tables instead of the
// fixed-width layouts.
func WithOldFormats(enabled bool) Option {
	return func(o *options) {
		o.oldFormats = enabled
	}
}

// WithRowForLargeTables prefers the row layout for tables above the
// cluster/column threshold.
func WithRowForLargeTables(enabled bool) Option {
	return func(o *options) {
		o.useRowForLargeTables = enabled
	}
}

// WithClusterColumnTerms sets the number of pairs from which a table is
// stored as a column instead of a cluster.
func WithClusterColumnTerms(n int) Option {
	return func(o *options) {
		o.clusterColumnTerms = n
	}
}

// WithMaxFileSize bounds the size of each table file.
func WithMaxFileSize(bytes int64) Option {
	return func(o *options) {
		o.maxFileSize = bytes
	}
}

// WithBackgroundWorkers bounds how many permutations are built at once.
func WithBackgroundWorkers(n int) Option {
	return func(o *options) {
		o.backgroundWorkers = int64(n)
	}
}

// WithSpill configures where column inserters offload large tables, and
// from how many pairs.
func WithSpill(tmpDir string, threshold int) Option {
	return func(o *options) {
		o.tmpDir = tmpDir
		o.offloadThreshold = threshold
	}
}

// WithIOLimit throttles snapshot uploads and downloads to bytesPerSec.
// 0 means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithTransferConcurrency sets how many files Push and Pull move at once.
func WithTransferConcurrency(n int) Option {
	return func(o *options) {
		o.transferWorkers = n
	}
}

func withFS(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector:   NoopMetricsCollector{},
		logger:             NoopLogger(),
		fs:                 fs.Default,
		concurrent:         true,
		cacheIdxCapacity:   cacheidx.DefaultCapacity,
		diffTreeThresh:     diff.DefaultTreeThreshold,
		clusterColumnTerms: tables.DefaultClusterColumnTerms,
		backgroundWorkers:  2,
		transferWorkers:    4,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
