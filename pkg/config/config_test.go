package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1.2, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B)
	assert.Equal(t, 50, cfg.Verify.TopK)
	assert.Equal(t, "locked", cfg.Verify.StatsMode)
	assert.Equal(t, "dedup-exact", cfg.Reduction.Strategy)
	assert.True(t, cfg.Reduction.ZeroScoreFill)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	body := `
bm25:
  k1: 1.5
verify:
  topK: 10
  statsMode: recomputed
  tolerance: 0.000001
reduction:
  strategy: dedup-termset
redis:
  snapshotTTL: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("BM25EQ_VERIFY_TOPK", "25")
	t.Setenv("BM25EQ_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1.5, cfg.BM25.K1)
	assert.Equal(t, 0.75, cfg.BM25.B, "unset fields keep defaults")
	assert.Equal(t, 25, cfg.Verify.TopK, "env wins over file")
	assert.Equal(t, "recomputed", cfg.Verify.StatsMode)
	assert.Equal(t, "dedup-termset", cfg.Reduction.Strategy)
	assert.Equal(t, time.Hour, cfg.Redis.SnapshotTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative k1", func(c *Config) { c.BM25.K1 = -1 }},
		{"b above one", func(c *Config) { c.BM25.B = 1.5 }},
		{"zero topK", func(c *Config) { c.Verify.TopK = 0 }},
		{"unknown stats mode", func(c *Config) { c.Verify.StatsMode = "approximate" }},
		{"unknown strategy", func(c *Config) { c.Reduction.Strategy = "simhash" }},
		{"unknown format", func(c *Config) { c.Corpus.Format = "xml" }},
		{"unknown tokenizer", func(c *Config) { c.Corpus.Tokenizer = "bpe" }},
		{"metrics without url", func(c *Config) { c.Metrics.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := Default()
	assert.Equal(t,
		"host=localhost port=5432 user=bm25equiv password=localdev dbname=bm25equiv sslmode=disable",
		cfg.Postgres.DSN(),
	)
}
