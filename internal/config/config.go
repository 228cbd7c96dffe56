// Package config loads the configuration of the trident command from
// defaults, a YAML file and TRIDENT_ environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/trident/internal/compress"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "TRIDENT"

// FileName is the base name of the configuration file searched for.
const FileName = "trident"

// Config is the configuration of the trident command.
type Config struct {
	Dir       string          `mapstructure:"dir" yaml:"dir"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Tree      TreeConfig      `mapstructure:"tree" yaml:"tree"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Build     BuildConfig     `mapstructure:"build" yaml:"build"`
	Resources ResourcesConfig `mapstructure:"resources" yaml:"resources"`
	Blob      BlobConfig      `mapstructure:"blob" yaml:"blob"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TreeConfig controls the term tree.
type TreeConfig struct {
	MaxElementsPerNode int    `mapstructure:"max_elements_per_node" yaml:"max_elements_per_node"`
	MaxNodesInCache    int    `mapstructure:"max_nodes_in_cache" yaml:"max_nodes_in_cache"`
	Compression        string `mapstructure:"compression" yaml:"compression"`
	Flat               bool   `mapstructure:"flat" yaml:"flat"`
	Concurrent         bool   `mapstructure:"concurrent" yaml:"concurrent"`
}

// CacheConfig controls the cache of permutations served from their reverse.
type CacheConfig struct {
	Capacity int64 `mapstructure:"capacity" yaml:"capacity"`
	// DiffTreeThreshold is the key count above which update layers index
	// their keys with a tree.
	DiffTreeThreshold int `mapstructure:"diff_tree_threshold" yaml:"diff_tree_threshold"`
}

// BuildConfig controls bulk loading.
type BuildConfig struct {
	SkipReversed       bool   `mapstructure:"skip_reversed" yaml:"skip_reversed"`
	Aggregate          bool   `mapstructure:"aggregate" yaml:"aggregate"`
	OldFormats         bool   `mapstructure:"old_formats" yaml:"old_formats"`
	RowForLargeTables  bool   `mapstructure:"row_for_large_tables" yaml:"row_for_large_tables"`
	ClusterColumnTerms int    `mapstructure:"cluster_column_terms" yaml:"cluster_column_terms"`
	MaxFileSize        int64  `mapstructure:"max_file_size" yaml:"max_file_size"`
	TmpDir             string `mapstructure:"tmp_dir" yaml:"tmp_dir"`
	OffloadThreshold   int    `mapstructure:"offload_threshold" yaml:"offload_threshold"`
}

// ResourcesConfig bounds memory, parallelism and transfer throughput.
type ResourcesConfig struct {
	MemoryLimit         int64 `mapstructure:"memory_limit" yaml:"memory_limit"`
	Workers             int   `mapstructure:"workers" yaml:"workers"`
	IOLimit             int64 `mapstructure:"io_limit" yaml:"io_limit"`
	TransferConcurrency int   `mapstructure:"transfer_concurrency" yaml:"transfer_concurrency"`
}

// BlobConfig selects the object store used by push and pull.
type BlobConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Path      string `mapstructure:"path" yaml:"path"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// Blob backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendMinio = "minio"
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dir", "./kb")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tree.max_elements_per_node", 2048)
	v.SetDefault("tree.max_nodes_in_cache", 1000)
	v.SetDefault("tree.compression", "none")
	v.SetDefault("tree.flat", false)
	v.SetDefault("tree.concurrent", true)
	v.SetDefault("cache.capacity", 64<<20)
	v.SetDefault("cache.diff_tree_threshold", 1<<16)
	v.SetDefault("build.skip_reversed", false)
	v.SetDefault("build.aggregate", false)
	v.SetDefault("build.old_formats", false)
	v.SetDefault("build.row_for_large_tables", false)
	v.SetDefault("build.cluster_column_terms", 20)
	v.SetDefault("build.max_file_size", 64<<20)
	v.SetDefault("build.tmp_dir", "")
	v.SetDefault("build.offload_threshold", 500_000_000)
	v.SetDefault("resources.memory_limit", 0)
	v.SetDefault("resources.workers", 2)
	v.SetDefault("resources.io_limit", 0)
	v.SetDefault("resources.transfer_concurrency", 4)
	v.SetDefault("blob.backend", BackendLocal)
	v.SetDefault("blob.path", "./snapshots")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.prefix", "")
	v.SetDefault("blob.region", "")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.access_key", "")
	v.SetDefault("blob.secret_key", "")
	v.SetDefault("blob.use_ssl", true)
}

// SetupEnv binds TRIDENT_ variables, with dots in keys replaced by
// underscores (TRIDENT_TREE_MAX_NODES_IN_CACHE).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from path (or defaults only when path is
// empty) with environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Default returns the configuration made of the defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks the configuration for logical errors and returns every
// problem found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Dir == "" {
		errs = append(errs, errors.New("config: dir must not be empty"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("config: log.format must be one of [text, json], got %q", f))
	}
	if c.Tree.MaxElementsPerNode < 2 {
		errs = append(errs, fmt.Errorf("config: tree.max_elements_per_node must be at least 2, got %d", c.Tree.MaxElementsPerNode))
	}
	if c.Tree.MaxNodesInCache < 2 {
		errs = append(errs, fmt.Errorf("config: tree.max_nodes_in_cache must be at least 2, got %d", c.Tree.MaxNodesInCache))
	}
	if t, err := compress.ParseType(c.Tree.Compression); err != nil {
		errs = append(errs, fmt.Errorf("config: tree.compression: %w", err))
	} else if t == compress.ZSTD {
		errs = append(errs, errors.New("config: tree.compression must be one of [none, lz4]"))
	}
	if c.Build.ClusterColumnTerms <= 0 {
		errs = append(errs, fmt.Errorf("config: build.cluster_column_terms must be positive, got %d", c.Build.ClusterColumnTerms))
	}
	if c.Build.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("config: build.max_file_size must be positive, got %d", c.Build.MaxFileSize))
	}
	if c.Resources.MemoryLimit < 0 || c.Resources.IOLimit < 0 {
		errs = append(errs, errors.New("config: resources limits must not be negative"))
	}
	if c.Resources.Workers <= 0 {
		errs = append(errs, fmt.Errorf("config: resources.workers must be positive, got %d", c.Resources.Workers))
	}
	errs = append(errs, c.validateBlob()...)

	return errs
}

func (c *Config) validateBlob() []error {
	var errs []error
	switch c.Blob.Backend {
	case BackendLocal:
		if c.Blob.Path == "" {
			errs = append(errs, errors.New("config: blob.path is required for the local backend"))
		}
	case BackendS3, BackendMinio:
		if c.Blob.Bucket == "" {
			errs = append(errs, fmt.Errorf("config: blob.bucket is required for the %s backend", c.Blob.Backend))
		}
		if c.Blob.Backend == BackendMinio && c.Blob.Endpoint == "" {
			errs = append(errs, errors.New("config: blob.endpoint is required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: blob.backend must be one of [local, s3, minio], got %q", c.Blob.Backend))
	}
	return errs
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return lvl, nil
}

// WriteFile writes c as YAML to path. An existing file is only replaced
// when overwrite is set.
func (c *Config) WriteFile(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists", path)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}
