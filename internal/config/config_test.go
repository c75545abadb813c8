package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndelage/parlor/internal/config"
)

// chdir changes the working directory for the duration of the test,
// restoring the original directory on cleanup. (testing.T.Chdir requires
// Go 1.24; this keeps the tests runnable on Go 1.21.)
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			t.Errorf("restoring working directory: %v", err)
		}
	})
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "dev")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_ENV", "test")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "config", "config.test.yaml"),
		[]byte("port: 9999\nhistory_limit: 10\n"), 0o644))

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 10, cfg.HistoryLimit)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_ENV", "test")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "config", "config.test.yaml"),
		[]byte("port: [unterminated\n"), 0o644))

	_, err := config.Load()
	assert.Error(t, err, "a present but unparseable file must not silently fall back to defaults")
}
