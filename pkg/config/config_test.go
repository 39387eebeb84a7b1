package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidYAML(t *testing.T) {
	path := writeTempYAML(t, `
snaplen: 128
buffer_format: hex
max_thread_table_size: 4096
max_n_proc_lookups: 100
cycle_writer:
  base_name: /var/log/capture.scap
  rollover_mb: 50
  file_limit: 3
  do_cycle: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Snaplen)
	assert.Equal(t, BufferHex, cfg.BufferFormat)
	assert.Equal(t, 4096, cfg.MaxThreadTableSize)
	assert.Equal(t, 100, cfg.MaxNProcLookups)
	assert.Equal(t, "/var/log/capture.scap", cfg.CycleWriter.BaseName)
	assert.True(t, cfg.CycleWriter.DoCycle)
}

func TestLoadRejectsBadBufferFormat(t *testing.T) {
	path := writeTempYAML(t, `
buffer_format: not-a-real-format
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup error")
}

func TestLoadRejectsNegativeThreadTableSize(t *testing.T) {
	path := writeTempYAML(t, `
max_thread_table_size: -1
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}
