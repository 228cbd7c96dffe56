package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/trident/internal/config"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "./kb", cfg.Dir)
	assert.Equal(t, 2048, cfg.Tree.MaxElementsPerNode)
	assert.Equal(t, 1000, cfg.Tree.MaxNodesInCache)
	assert.True(t, cfg.Tree.Concurrent)
	assert.Equal(t, int64(64<<20), cfg.Cache.Capacity)
	assert.Equal(t, 20, cfg.Build.ClusterColumnTerms)
	assert.Equal(t, config.BackendLocal, cfg.Blob.Backend)

	lvl, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestLoad_FromFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "trident.yaml")
	content := `
dir: /data/kb
tree:
  compression: lz4
  flat: true
build:
  aggregate: true
blob:
  backend: s3
  bucket: kb-snapshots
  prefix: prod
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/data/kb", cfg.Dir)
	assert.Equal(t, "lz4", cfg.Tree.Compression)
	assert.True(t, cfg.Tree.Flat)
	assert.True(t, cfg.Build.Aggregate)
	assert.Equal(t, "kb-snapshots", cfg.Blob.Bucket)
	// untouched keys keep their defaults
	assert.Equal(t, 2048, cfg.Tree.MaxElementsPerNode)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRIDENT_TREE_MAX_NODES_IN_CACHE", "64")
	t.Setenv("TRIDENT_DIR", "/tmp/other")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Tree.MaxNodesInCache)
	assert.Equal(t, "/tmp/other", cfg.Dir)
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "trident.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("blob:\n  backend: ftp\n"), 0o644))

	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob.backend")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty dir", func(c *config.Config) { c.Dir = "" }, "dir must not be empty"},
		{"bad level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"tiny nodes", func(c *config.Config) { c.Tree.MaxElementsPerNode = 1 }, "max_elements_per_node"},
		{"zstd nodes", func(c *config.Config) { c.Tree.Compression = "zstd" }, "tree.compression"},
		{"unknown compression", func(c *config.Config) { c.Tree.Compression = "gzip" }, "tree.compression"},
		{"s3 without bucket", func(c *config.Config) { c.Blob.Backend = config.BackendS3 }, "blob.bucket"},
		{"minio without endpoint", func(c *config.Config) {
			c.Blob.Backend = config.BackendMinio
			c.Blob.Bucket = "b"
		}, "blob.endpoint"},
		{"negative io limit", func(c *config.Config) { c.Resources.IOLimit = -1 }, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			require.Empty(t, cfg.Validate())
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.want)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Dir = ""
	cfg.Resources.Workers = 0
	cfg.Blob.Backend = "ftp"
	assert.Len(t, cfg.Validate(), 3)
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "trident.yaml")
	cfg := config.Default()
	cfg.Dir = "/srv/kb"
	cfg.Tree.Flat = true
	require.NoError(t, cfg.WriteFile(path, false))

	err := cfg.WriteFile(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, cfg.WriteFile(path, true))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
