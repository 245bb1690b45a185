// Package config loads and validates run configuration from YAML files with
// environment-variable overrides. It provides typed structs for the BM25
// parameters, the reducer, the verifier, corpus loading and the optional
// sinks (Postgres, Redis, Kafka, Pushgateway).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/retry"
)

// EnvPrefix is the prefix of every environment override. Keys are the
// upper-cased field path, e.g. BM25EQ_VERIFY_TOPK=20 or
// BM25EQ_REDUCTION_ZEROSCOREFILL=false.
const EnvPrefix = "BM25EQ"

// Config is the top-level run configuration.
type Config struct {
	BM25      BM25Config      `yaml:"bm25"`
	Reduction ReductionConfig `yaml:"reduction"`
	Verify    VerifyConfig    `yaml:"verify"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`

	// Retry applies to every sink delivery; the verdict never waits on it.
	Retry retry.Policy `yaml:"retry"`
}

// BM25Config holds the free BM25 parameters.
type BM25Config struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// ReductionConfig selects the redundancy-pruning strategy applied outside
// the protected set.
type ReductionConfig struct {
	Strategy      string `yaml:"strategy"`
	ZeroScoreFill bool   `yaml:"zeroScoreFill"`
	Workers       int    `yaml:"workers"`
}

// VerifyConfig controls scoring and comparison.
type VerifyConfig struct {
	TopK              int     `yaml:"topK"`
	StatsMode         string  `yaml:"statsMode"`
	Tolerance         float64 `yaml:"tolerance"`
	ExcludeZeroScores bool    `yaml:"excludeZeroScores"`
	Workers           int     `yaml:"workers"`
}

// CorpusConfig describes how the external corpus and query files are read.
type CorpusConfig struct {
	Format       string `yaml:"format"`
	Tokenizer    string `yaml:"tokenizer"`
	AllowEmpty   bool   `yaml:"allowEmpty"`
	ExpectedHash string `yaml:"expectedHash"`
}

// OutputConfig controls where reports are written.
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	MaxMismatch int    `yaml:"maxMismatch"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

// PostgresConfig holds PostgreSQL connection parameters for the manifest
// store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds the connection for the statistics replay cache.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"poolSize"`
	SnapshotTTL time.Duration `yaml:"snapshotTTL"`
}

// KafkaConfig holds broker and topic settings for audit events.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		BM25: BM25Config{
			K1: 1.2,
			B:  0.75,
		},
		Reduction: ReductionConfig{
			Strategy:      "dedup-exact",
			ZeroScoreFill: true,
			Workers:       4,
		},
		Verify: VerifyConfig{
			TopK:      50,
			StatsMode: "locked",
			Workers:   4,
		},
		Corpus: CorpusConfig{
			Format:    "lines",
			Tokenizer: "simple",
		},
		Output: OutputConfig{
			MaxMismatch: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Job: "bm25equiv",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bm25equiv",
			User:            "bm25equiv",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    4,
			SnapshotTTL: 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "bm25-equivalence-reports",
		},
		Retry: retry.DefaultPolicy(),
	}
}

// Validate rejects configurations that cannot produce a meaningful run.
func (c *Config) Validate() error {
	if c.BM25.K1 < 0 {
		return fmt.Errorf("bm25.k1 must be >= 0, got %v", c.BM25.K1)
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return fmt.Errorf("bm25.b must be within [0,1], got %v", c.BM25.B)
	}
	if c.Verify.TopK <= 0 {
		return fmt.Errorf("verify.topK must be positive, got %d", c.Verify.TopK)
	}
	switch c.Verify.StatsMode {
	case "locked", "recomputed":
	default:
		return fmt.Errorf("verify.statsMode must be locked or recomputed, got %q", c.Verify.StatsMode)
	}
	if c.Verify.Tolerance < 0 {
		return fmt.Errorf("verify.tolerance must be >= 0, got %v", c.Verify.Tolerance)
	}
	switch c.Reduction.Strategy {
	case "none", "protected-only", "dedup-exact", "dedup-termset":
	default:
		return fmt.Errorf("reduction.strategy %q is not supported", c.Reduction.Strategy)
	}
	switch c.Corpus.Format {
	case "lines", "jsonl":
	default:
		return fmt.Errorf("corpus.format must be lines or jsonl, got %q", c.Corpus.Format)
	}
	switch c.Corpus.Tokenizer {
	case "simple", "light", "snowball":
	default:
		return fmt.Errorf("corpus.tokenizer must be simple, light or snowball, got %q", c.Corpus.Tokenizer)
	}
	if c.Metrics.Enabled && c.Metrics.PushgatewayURL == "" {
		return fmt.Errorf("metrics.pushgatewayUrl is required when metrics are enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}
