package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
backend: postgres
dsn: postgres://u:p@localhost/backlog
server:
  addr: ":9090"
reorder:
  debounce: 500ms
log:
  level: debug
  format: json
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.BackendPostgres, cfg.Backend)
	assert.Equal(t, "postgres://u:p@localhost/backlog", cfg.DSN)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Reorder.Debounce)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "server:\n  addr: \":9090\"\n")
	t.Setenv("BACKLOG_SERVER_ADDR", ":7070")
	t.Setenv("BACKLOG_REORDER_DEBOUNCE", "2s")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Reorder.Debounce)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero debounce", "reorder:\n  debounce: 0s\n"},
		{"unknown level", "log:\n  level: loud\n"},
		{"unknown format", "log:\n  format: xml\n"},
		{"malformed yaml", "backend: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")

	written, err := WriteDefault(dir, "/data/backlog")
	require.NoError(t, err)
	assert.True(t, written)

	written, err = WriteDefault(dir, "/elsewhere")
	require.NoError(t, err)
	assert.False(t, written, "existing file is kept")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/data/backlog", cfg.DataDir)
	assert.Equal(t, DefaultDebounce, cfg.Reorder.Debounce)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
}

func TestStoreConfig(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/configured"

	sc, err := cfg.StoreConfig("")
	require.NoError(t, err)
	assert.Equal(t, types.Config{Backend: types.BackendSQLite, DataDir: "/configured"}, sc)

	sc, err = cfg.StoreConfig("/flag")
	require.NoError(t, err)
	assert.Equal(t, "/flag", sc.DataDir)

	cfg.Backend = types.BackendPostgres
	_, err = cfg.StoreConfig("")
	assert.ErrorIs(t, err, types.ErrDSNRequired)

	cfg.Backend = "mysql"
	_, err = cfg.StoreConfig("")
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "sprint_id", "s1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"sprint_id":"s1"`)
}
