package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "./data", cfg.Storage.Badger.Path)
	assert.Equal(t, 3, cfg.Queue.MaxReceive)
	assert.Equal(t, "linuxfirst-docscan/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Fetch.RequestTimeout)
	assert.Equal(t, 5, cfg.Classify.BatchSize)
	assert.False(t, cfg.LLMEnabled())
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
environment = "production"

[[targets]]
url = "https://docs.example.com/en-us/azure"
kind = "web"

[crawl]
max_pages = 100

[classify]
batch_size = 10
`), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[crawl]
max_pages = 250
`), 0644))

	cfg, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "https://docs.example.com/en-us/azure", cfg.Targets[0].URL)
	// Later file overrides earlier file
	assert.Equal(t, 250, cfg.Crawl.MaxPages)
	assert.Equal(t, 10, cfg.Classify.BatchSize)
	// Untouched values keep defaults
	assert.Equal(t, "500ms", cfg.Queue.PollInterval)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/docscan.toml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOCSCAN_BADGER_PATH", "/tmp/docscan-test")
	t.Setenv("DOCSCAN_CRAWL_MAX_PAGES", "42")
	t.Setenv("DOCSCAN_CLASSIFY_RPM", "10")
	t.Setenv("DOCSCAN_CLAUDE_API_KEY", "sk-test")
	t.Setenv("DOCSCAN_LOG_OUTPUT", "stdout, file")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/docscan-test", cfg.Storage.Badger.Path)
	assert.Equal(t, 42, cfg.Crawl.MaxPages)
	assert.Equal(t, 10, cfg.Classify.RequestsPerMinute)
	assert.Equal(t, "sk-test", cfg.Claude.APIKey)
	assert.True(t, cfg.LLMEnabled())
	assert.Equal(t, []string{"stdout", "file"}, cfg.Logging.Output)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()

	ApplyFlagOverrides(cfg, "/custom/path", true)
	assert.Equal(t, "/custom/path", cfg.Storage.Badger.Path)
	assert.True(t, cfg.Scan.ForceRescan)

	// Empty flags leave config alone
	ApplyFlagOverrides(cfg, "", false)
	assert.Equal(t, "/custom/path", cfg.Storage.Badger.Path)
	assert.True(t, cfg.Scan.ForceRescan)
}

func TestValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.NoError(t, cfg.Validate())

	bad := NewDefaultConfig()
	bad.Queue.PollInterval = "not-a-duration"
	assert.Error(t, bad.Validate())

	badTarget := NewDefaultConfig()
	badTarget.Targets = []TargetConfig{{URL: "https://example.com", Kind: "svn"}}
	assert.Error(t, badTarget.Validate())

	badBudget := NewDefaultConfig()
	badBudget.Scan.FailureBudget = 1.5
	assert.Error(t, badBudget.Validate())
}
