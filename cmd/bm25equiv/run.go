package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/manifeststore"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/publisher"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/reducer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/report"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/retry"
)

type runFlags struct {
	configPath       string
	envFile          string
	corpusPath       string
	queryTexts       []string
	queriesPath      string
	expectedManifest string
	runID            string
	quiet            bool
}

// bindRunFlags registers the run flags. Flags that mirror a config key
// override it only when given explicitly.
func bindRunFlags(fs *pflag.FlagSet, f *runFlags, cfg *config.Config) {
	fs.StringVar(&f.configPath, "config", "", "path to YAML config file")
	fs.StringVar(&f.envFile, "env-file", "", "env file with BM25EQ_* overrides (default: ./.env when present)")
	fs.StringVar(&f.corpusPath, "corpus", "", "corpus file (required)")
	fs.StringArrayVar(&f.queryTexts, "q", nil, "query text; repeat for several queries")
	fs.StringVar(&f.queriesPath, "queries", "", "query file, one query per line as id<TAB>text or text")
	fs.StringVar(&f.expectedManifest, "expected-manifest", "", "fail unless the reduction manifest has this hash")
	fs.StringVar(&f.runID, "run-id", "", "run identifier (default: random UUID)")
	fs.BoolVar(&f.quiet, "quiet", false, "do not print the text report to stdout")

	fs.StringVar(&cfg.Corpus.Format, "format", cfg.Corpus.Format, "corpus format: lines or jsonl")
	fs.StringVar(&cfg.Corpus.Tokenizer, "tokenizer", cfg.Corpus.Tokenizer, "tokenizer: simple, light or snowball")
	fs.StringVar(&cfg.Corpus.ExpectedHash, "expected-hash", cfg.Corpus.ExpectedHash, "expected corpus content hash")
	fs.BoolVar(&cfg.Corpus.AllowEmpty, "allow-empty", cfg.Corpus.AllowEmpty, "admit documents with no terms")
	fs.IntVar(&cfg.Verify.TopK, "k", cfg.Verify.TopK, "top-K depth to verify")
	fs.Float64Var(&cfg.BM25.K1, "k1", cfg.BM25.K1, "BM25 k1")
	fs.Float64Var(&cfg.BM25.B, "b", cfg.BM25.B, "BM25 b")
	fs.StringVar(&cfg.Verify.StatsMode, "stats-mode", cfg.Verify.StatsMode, "statistics: locked or recomputed")
	fs.Float64Var(&cfg.Verify.Tolerance, "tolerance", cfg.Verify.Tolerance, "score tolerance for recomputed statistics")
	fs.BoolVar(&cfg.Verify.ExcludeZeroScores, "exclude-zero", cfg.Verify.ExcludeZeroScores, "leave zero-score documents out of rankings")
	fs.StringVar(&cfg.Reduction.Strategy, "strategy", cfg.Reduction.Strategy, "reduction: none, protected-only, dedup-exact or dedup-termset")
	fs.BoolVar(&cfg.Reduction.ZeroScoreFill, "zero-fill", cfg.Reduction.ZeroScoreFill, "protect documents that fill the top-K with zero scores")
	fs.IntVar(&cfg.Verify.Workers, "workers", cfg.Verify.Workers, "scoring workers")
	fs.StringVar(&cfg.Output.Dir, "out", cfg.Output.Dir, "directory for report artifacts")
}

// loadConfig resolves the configuration in precedence order: defaults, then
// the file, then BM25EQ_* environment, then explicit flags.
func loadConfig(args []string) (*config.Config, *runFlags, error) {
	var f runFlags
	pre := pflag.NewFlagSet("run", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.StringVar(&f.configPath, "config", "", "")
	pre.StringVar(&f.envFile, "env-file", "", "")
	pre.BoolP("help", "h", false, "")
	_ = pre.Parse(args)

	if err := loadEnv(f.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	bindRunFlags(fs, &f, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, apperrors.New(apperrors.ErrMalformedInput, err.Error())
	}
	return cfg, &f, nil
}

func runCommand(ctx context.Context, args []string) (int, error) {
	cfg, f, err := loadConfig(args)
	if err != nil {
		return 0, err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if f.corpusPath == "" {
		return 0, apperrors.New(apperrors.ErrMalformedInput, "--corpus is required")
	}
	runID := f.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx)

	tok, err := tokenizer.New(cfg.Corpus.Tokenizer)
	if err != nil {
		return 0, apperrors.New(apperrors.ErrMalformedInput, err.Error())
	}
	loaded, err := loader.LoadCorpusFile(f.corpusPath, cfg.Corpus.Format, tok)
	if err != nil {
		return 0, apperrors.WithStage("load", err)
	}
	queries, queryText, err := collectQueries(f, tok)
	if err != nil {
		return 0, apperrors.WithStage("load", err)
	}
	log.Info("inputs loaded",
		"corpus", f.corpusPath,
		"documents", len(loaded.Documents),
		"queries", len(queries),
		"tokenizer", tok.Name(),
	)

	statsMode, err := stats.ParseMode(cfg.Verify.StatsMode)
	if err != nil {
		return 0, err
	}
	strategy, err := reducer.ParseStrategy(cfg.Reduction.Strategy)
	if err != nil {
		return 0, err
	}

	sinks := openSinks(ctx, cfg)
	defer sinks.close()

	opts := []pipeline.Option{pipeline.WithMetrics(sinks.metrics)}
	if sinks.cache != nil {
		opts = append(opts, pipeline.WithStatsCache(sinks.cache))
	}
	res, runErr := pipeline.New(opts...).Run(ctx, pipeline.Input{
		Documents:            loaded.Documents,
		AllowEmpty:           cfg.Corpus.AllowEmpty,
		ExpectedCorpusHash:   cfg.Corpus.ExpectedHash,
		Queries:              queries,
		K1:                   cfg.BM25.K1,
		B:                    cfg.BM25.B,
		TopK:                 cfg.Verify.TopK,
		StatsMode:            statsMode,
		Tolerance:            cfg.Verify.Tolerance,
		ExcludeZero:          cfg.Verify.ExcludeZeroScores,
		Strategy:             strategy,
		ZeroScoreFill:        cfg.Reduction.ZeroScoreFill,
		ExpectedManifestHash: f.expectedManifest,
		ReduceWorkers:        cfg.Reduction.Workers,
		ScoreWorkers:         cfg.Verify.Workers,
	})
	if runErr != nil {
		sinks.failed(ctx, runID, runErr)
		sinks.push(ctx, cfg, runID)
		return 0, runErr
	}

	meta := report.Meta{
		RunID:       runID,
		Tokenizer:   tok.Name(),
		QueryText:   queryText,
		DocText:     loaded.Text,
		MaxMismatch: cfg.Output.MaxMismatch,
	}
	if cfg.Output.Dir != "" {
		if err := report.WriteAll(cfg.Output.Dir, res, meta); err != nil {
			return 0, err
		}
		log.Info("report written", "dir", cfg.Output.Dir)
	}
	if !f.quiet {
		if err := report.WriteText(os.Stdout, res, meta); err != nil {
			return 0, err
		}
	}
	sinks.completed(ctx, res, meta)
	sinks.push(ctx, cfg, runID)

	if !res.Report.Passed() {
		return apperrors.ExitFail, nil
	}
	return apperrors.ExitPass, nil
}

func collectQueries(f *runFlags, tok tokenizer.Tokenizer) ([]corpus.Query, map[string]string, error) {
	queries := loader.QueriesFromStrings(f.queryTexts, tok)
	text := make(map[string]string, len(queries))
	for i, q := range queries {
		text[q.ID] = f.queryTexts[i]
	}
	if f.queriesPath != "" {
		fromFile, err := loader.LoadQueriesFile(f.queriesPath, tok, len(queries))
		if err != nil {
			return nil, nil, err
		}
		queries = append(queries, fromFile...)
	}
	if len(queries) == 0 {
		return nil, nil, apperrors.New(apperrors.ErrMalformedInput, "at least one query is required (--q or --queries)")
	}
	return queries, text, nil
}

// sinks are the optional collaborators of a run. A sink that cannot be
// reached at startup is reported and skipped; none of them influences the
// verdict.
type sinks struct {
	metrics   *metrics.Metrics
	cache     *stats.Cache
	redis     *pkgredis.Client
	db        *postgres.Client
	store     *manifeststore.Store
	producer  *kafka.Producer
	publisher *publisher.Publisher
	policy    retry.Policy
}

func openSinks(ctx context.Context, cfg *config.Config) *sinks {
	s := &sinks{policy: cfg.Retry}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
	}
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, statistics replay disabled", "error", err)
		} else {
			s.redis = client
			s.cache = stats.NewCache(stats.NewRedisStore(client, cfg.Redis.SnapshotTTL))
			slog.Info("statistics replay enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.SnapshotTTL)
		}
	}
	if cfg.Postgres.Enabled {
		var db *postgres.Client
		err := retry.Do(ctx, "postgres connect", s.policy, func(ctx context.Context) error {
			var err error
			db, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			slog.Warn("postgres unavailable, manifests will not be recorded", "error", err)
		} else {
			s.db = db
			store := manifeststore.New(db)
			if err := store.Migrate(ctx); err != nil {
				slog.Warn("manifest schema migration failed, manifests will not be recorded", "error", err)
			} else {
				s.store = store
			}
		}
	}
	if cfg.Kafka.Enabled {
		s.producer = kafka.NewProducer(cfg.Kafka)
		s.publisher = publisher.New(s.producer)
	}
	return s
}

func (s *sinks) completed(ctx context.Context, res *pipeline.Result, meta report.Meta) {
	summary := report.Summarize(res, meta)
	if s.store != nil {
		err := retry.Do(ctx, "record run", s.policy, func(ctx context.Context) error {
			return s.store.Record(ctx, res.Manifest, summary)
		})
		if err != nil {
			slog.Error("recording run failed", "error", err)
		}
	}
	if s.publisher != nil {
		mismatches := report.Mismatches(res.Report)
		err := retry.Do(ctx, "publish run", s.policy, func(ctx context.Context) error {
			return s.publisher.Completed(ctx, summary, mismatches)
		})
		if err != nil {
			slog.Error("publishing audit events failed", "error", err)
		}
	}
}

func (s *sinks) failed(ctx context.Context, runID string, runErr error) {
	if s.publisher == nil {
		return
	}
	err := retry.Do(ctx, "publish failure", s.policy, func(ctx context.Context) error {
		return s.publisher.Failed(ctx, runID, runErr)
	})
	if err != nil {
		slog.Error("publishing failure event failed", "error", err)
	}
}

func (s *sinks) push(ctx context.Context, cfg *config.Config, runID string) {
	if s.metrics == nil {
		return
	}
	grouping := map[string]string{"run_id": runID}
	err := retry.Do(ctx, "push metrics", s.policy, func(ctx context.Context) error {
		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return s.metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, grouping)
	})
	if err != nil {
		slog.Error("metrics push failed", "error", err)
	}
}

func (s *sinks) close() {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			slog.Warn("closing kafka producer", "error", err)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
