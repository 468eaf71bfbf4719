package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "granite.yaml")
	content := `
app_name: granite-test
storage:
  workdir: /tmp/granite-test
  pool_size: 16
  replacer_k: 3
index:
  header_max_depth: 1
  directory_max_depth: 5
  bucket_max_size: 32
shell:
  prompt: "test> "
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "granite-test", cfg.AppName)
	assert.Equal(t, "/tmp/granite-test", cfg.Storage.Workdir)
	assert.Equal(t, 16, cfg.Storage.PoolSize)
	assert.Equal(t, 3, cfg.Storage.ReplacerK)
	assert.Equal(t, 1, cfg.Index.HeaderMaxDepth)
	assert.Equal(t, 5, cfg.Index.DirectoryMaxDepth)
	assert.Equal(t, 32, cfg.Index.BucketMaxSize)
	assert.Equal(t, "test> ", cfg.Shell.Prompt)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "granite.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: partial\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "partial", cfg.AppName)
	assert.Equal(t, 128, cfg.Storage.PoolSize)
	assert.Equal(t, 2, cfg.Storage.ReplacerK)
	assert.Equal(t, 9, cfg.Index.DirectoryMaxDepth)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "granitedb", cfg.AppName)
	assert.Equal(t, 128, cfg.Storage.PoolSize)
	assert.Equal(t, 255, cfg.Index.BucketMaxSize)
}
