package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig points CONFIG_FILE at a YAML file holding content, or at a
// missing file when content is empty.
func writeConfig(t *testing.T, content string) {
	t.Helper()
	if content == "" {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
		return
	}
	path := filepath.Join(t.TempDir(), "shelfsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
}

func TestNew_Defaults(t *testing.T) {
	writeConfig(t, "")
	t.Setenv("DATABASE_FILE_PATH", "/tmp/shelfsync.db")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 3690, cfg.ServerPort)
	assert.Equal(t, 60, cfg.SyncIntervalMinutes)
	assert.Equal(t, 30*time.Second, cfg.CatalogTimeout)
	assert.Equal(t, 3, cfg.CatalogMaxRetries)
	assert.Equal(t, 1024, cfg.IDBatchSize)
	assert.Equal(t, 100, cfg.FetchBatchSize)
	assert.Equal(t, 16, cfg.FetchRetryBatches)
	assert.Equal(t, 8, cfg.FetchMaxRounds)
	assert.Equal(t, 10*time.Minute, cfg.SessionRecencyWindow)
	assert.Empty(t, cfg.CatalogCredentials)
}

func TestNew_FileThenEnv(t *testing.T) {
	writeConfig(t, `
database_file_path: /data/from-file.db
server_port: 8080
fetch_max_rounds: 3
session_recency_window: 90s
catalog_credentials:
  0b5c8f1e-srv: hunter2
`)
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/data/from-file.db", cfg.DatabaseFilePath)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 3, cfg.FetchMaxRounds)
	assert.Equal(t, 90*time.Second, cfg.SessionRecencyWindow)
	assert.Equal(t, map[string]string{"0b5c8f1e-srv": "hunter2"}, cfg.CatalogCredentials)
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		unset bool
		want  []string
	}{
		{
			name:  "missing database path",
			yaml:  "server_port: 8080\n",
			unset: true,
			want:  []string{"missing required config", "DATABASE_FILE_PATH", "database_file_path"},
		},
		{
			name: "zero batch size",
			yaml: "database_file_path: /tmp/x.db\nfetch_batch_size: 0\n",
			want: []string{"invalid config", "fetch_batch_size must be at least 1"},
		},
		{
			name: "single retry batch",
			yaml: "database_file_path: /tmp/x.db\nfetch_retry_batches: 1\n",
			want: []string{"fetch_retry_batches must be at least 2"},
		},
		{
			name: "port out of range",
			yaml: "database_file_path: /tmp/x.db\nserver_port: 70000\n",
			want: []string{"server_port must be at most 65535"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.yaml)
			if tt.unset {
				t.Setenv("DATABASE_FILE_PATH", "")
			}

			cfg, err := New()
			require.Error(t, err)
			assert.Nil(t, cfg)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestNewForTest(t *testing.T) {
	cfg := NewForTest()
	assert.Equal(t, ":memory:", cfg.DatabaseFilePath)
	assert.Equal(t, "127.0.0.1", cfg.ServerHost)
	assert.Equal(t, 100, cfg.FetchBatchSize)
	assert.NoError(t, checkRanges(cfg))
}
