package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/redis"
)

// checkCommand probes every enabled sink and prints the report as JSON.
// It exits non-zero when any sink is down.
func checkCommand(ctx context.Context, args []string) (int, error) {
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	envFile := fs.String("env-file", "", "env file with BM25EQ_* overrides")
	timeout := fs.Duration("timeout", 5*time.Second, "per-sink probe timeout")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if err := loadEnv(*envFile); err != nil {
		return 0, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return 0, err
	}
	if err := cfg.Validate(); err != nil {
		return 0, apperrors.New(apperrors.ErrMalformedInput, err.Error())
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	report := sinkChecker(cfg, *timeout).Run(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return 0, err
	}
	if report.Status != health.StatusUp {
		return apperrors.ExitFail, nil
	}
	return apperrors.ExitPass, nil
}

func sinkChecker(cfg *config.Config, timeout time.Duration) *health.Checker {
	checker := health.NewChecker(timeout)
	if cfg.Postgres.Enabled {
		checker.Register("postgres", func(ctx context.Context) error {
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			return db.Close()
		})
	}
	if cfg.Redis.Enabled {
		checker.Register("redis", func(ctx context.Context) error {
			client, err := pkgredis.NewClient(cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.Ping(ctx)
		})
	}
	if cfg.Kafka.Enabled {
		checker.Register("kafka", func(ctx context.Context) error {
			return kafka.CheckTopic(ctx, cfg.Kafka)
		})
	}
	if cfg.Metrics.Enabled {
		checker.Register("pushgateway", func(ctx context.Context) error {
			return metrics.CheckPushgateway(ctx, cfg.Metrics.PushgatewayURL)
		})
	}
	return checker
}
