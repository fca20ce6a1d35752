package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("SITECHECK_DEBUGGER_URL sets the control url", func(t *testing.T) {
		t.Setenv("SITECHECK_DEBUGGER_URL", "ws://127.0.0.1:9222/devtools/browser/x")
		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/x", cfg.Browser.DebuggerURL)
	})

	t.Run("SITECHECK_HEADLESS parses booleans", func(t *testing.T) {
		t.Setenv("SITECHECK_HEADLESS", "false")
		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.False(t, cfg.Browser.Headless)
	})

	t.Run("SITECHECK_HEADLESS rejects garbage", func(t *testing.T) {
		t.Setenv("SITECHECK_HEADLESS", "maybe")
		cfg := DefaultConfig()
		assert.ErrorIs(t, cfg.applyEnvOverrides(), ErrInvalidConfig)
	})

	t.Run("SITECHECK_CHROME_BIN replaces only the binary", func(t *testing.T) {
		t.Setenv("SITECHECK_CHROME_BIN", "/opt/chrome")
		cfg := DefaultConfig()
		cfg.Browser.Launch = []string{"chromium", "--no-sandbox"}
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, []string{"/opt/chrome", "--no-sandbox"}, cfg.Browser.Launch)

		empty := DefaultConfig()
		require.NoError(t, empty.applyEnvOverrides())
		assert.Equal(t, []string{"/opt/chrome"}, empty.Browser.Launch)
	})

	t.Run("run and logging overrides", func(t *testing.T) {
		t.Setenv("SITECHECK_CATALOG", "/data/products.yaml")
		t.Setenv("SITECHECK_MODE", "full")
		t.Setenv("SITECHECK_LOG_LEVEL", "debug")
		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, "/data/products.yaml", cfg.Run.Catalog)
		assert.Equal(t, "full", cfg.Run.Mode)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitecheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  mode: quick\n  catalog: file.yaml\n"), 0o644))
	t.Setenv("SITECHECK_MODE", "full")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "full", cfg.Run.Mode)
	assert.Equal(t, "file.yaml", cfg.Run.Catalog)
}
