package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./eventscout_db", cfg.DBPath)
	assert.Equal(t, "neurips_papers", cfg.Collection)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "all-minilm", cfg.EmbeddingModel)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 10000, cfg.ScanCap)
	assert.Equal(t, 5, cfg.OverfetchFactor)
	assert.Zero(t, cfg.WideningRounds)
	assert.Zero(t, cfg.EmbedRate)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("EVENTSCOUT_DB_PATH", "/tmp/events")
	t.Setenv("EVENTSCOUT_COLLECTION", "talks")
	t.Setenv("EVENTSCOUT_BATCH_SIZE", "25")
	t.Setenv("EVENTSCOUT_EMBED_RATE", "2.5")
	t.Setenv("EVENTSCOUT_RETRY_DELAY", "250ms")
	t.Setenv("EVENTSCOUT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/events", cfg.DBPath)
	assert.Equal(t, "talks", cfg.Collection)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.InDelta(t, 2.5, cfg.EmbedRate, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "talks", Getenv("COLLECTION"))
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EVENTSCOUT_EMBEDDING_MODEL=nomic-embed-text\nEVENTSCOUT_POOL_SIZE=8\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("EVENTSCOUT_EMBEDDING_MODEL")
		os.Unsetenv("EVENTSCOUT_POOL_SIZE")
	})

	cfg, err := Load(filepath.Join(dir, "missing.env"), envFile)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, 8, cfg.PoolSize)
}

func TestLoad_EnvironmentWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EVENTSCOUT_COLLECTION=from_file\n"), 0644))
	t.Setenv("EVENTSCOUT_COLLECTION", "from_env")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Collection)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"batch size", "EVENTSCOUT_BATCH_SIZE", "0"},
		{"pool size", "EVENTSCOUT_POOL_SIZE", "-1"},
		{"negative rate", "EVENTSCOUT_EMBED_RATE", "-3"},
		{"retries", "EVENTSCOUT_MAX_RETRIES", "0"},
		{"scan cap", "EVENTSCOUT_SCAN_CAP", "0"},
		{"overfetch", "EVENTSCOUT_OVERFETCH_FACTOR", "0"},
		{"widening", "EVENTSCOUT_WIDENING_ROUNDS", "-1"},
		{"log level", "EVENTSCOUT_LOG_LEVEL", "loud"},
		{"empty model", "EVENTSCOUT_EMBEDDING_MODEL", " "},
		{"not a number", "EVENTSCOUT_BATCH_SIZE", "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestAIConfig(t *testing.T) {
	cfg := &Config{
		EmbeddingHost:  "http://embed:8080",
		EmbeddingModel: "all-minilm",
		APIToken:       "secret",
	}
	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://embed:8080/v1", aiCfg.EmbeddingHost)
	assert.Equal(t, "secret", aiCfg.APIToken)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
