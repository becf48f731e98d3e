package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeberg/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tradeberg", cfg.App.Name)
	assert.Equal(t, model.EmbeddingDimensions, cfg.Embedding.Dimension)
	assert.Equal(t, 1200, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 5, cfg.Ingest.PollIntervalSeconds)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA", "TSLA"}, cfg.Ingest.Tickers)
	assert.Equal(t, "filing.ingest.request", cfg.RabbitMQ.IngestRequestQueue)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }},
		{"negative overlap", func(c *Config) { c.Ingest.ChunkOverlap = -1 }},
		{"overlap equals chunk size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }},
		{"negative tolerance", func(c *Config) { c.Ingest.ChunkTolerance = -1 }},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"dimension disagreeing with vector column", func(c *Config) { c.Embedding.Dimension = 1536 }},
		{"zero max concurrent", func(c *Config) { c.Embedding.MaxConcurrent = 0 }},
		{"zero poll interval", func(c *Config) { c.Ingest.PollIntervalSeconds = 0 }},
		{"zero worker limit", func(c *Config) { c.Ingest.WorkerLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[app]
name = "tradeberg-test"
port = 9090

[embedding]
timeout_seconds = 10

[ingest]
tickers = ["GOOG"]
chunk_size = 800
chunk_overlap = 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tradeberg-test", cfg.App.Name)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 10, cfg.Embedding.TimeoutSeconds)
	assert.Equal(t, []string{"GOOG"}, cfg.Ingest.Tickers)
	assert.Equal(t, 800, cfg.Ingest.ChunkSize)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Ingest.RetryAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[app]\nport = 9090\n"), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "7070")
	t.Setenv("EMBEDDING_API_KEY", "test-key")
	t.Setenv("INGEST_TICKERS", " aapl, msft ,,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, "test-key", cfg.Embedding.APIKey)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Ingest.Tickers)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ingest]\nchunk_size = 0\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
}

func TestHelpers(t *testing.T) {
	cfg := defaultConfig()
	cfg.App.Host = "127.0.0.1"
	cfg.App.Port = 8081
	assert.Equal(t, "127.0.0.1:8081", cfg.HTTPAddr())

	cfg.Postgres = PostgresConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", DB: "filings", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=filings sslmode=disable", cfg.PostgresDSN())
}
