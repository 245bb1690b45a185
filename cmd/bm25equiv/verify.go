package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/manifeststore"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/reducer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/report"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/retry"
)

// manifestSource is the read side of the manifest store.
type manifestSource interface {
	Manifest(ctx context.Context, hash string) (*reducer.Manifest, error)
	PreviousManifestHashes(ctx context.Context, corpusHash, querySetHash string) ([]string, error)
	Runs(ctx context.Context, manifestHash string, limit int) ([]report.Summary, error)
}

// verifyManifestCommand reloads a recorded manifest and re-applies it to a
// corpus file, proving the stored reduction still reproduces.
func verifyManifestCommand(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("verify-manifest", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	envFile := fs.String("env-file", "", "env file with BM25EQ_* overrides")
	hash := fs.String("hash", "", "manifest hash to verify (required)")
	corpusPath := fs.String("corpus", "", "corpus file the manifest was produced from (required)")
	format := fs.String("format", "", "corpus format (default: corpus.format)")
	tokName := fs.String("tokenizer", "", "tokenizer (default: the one recorded with the latest run)")
	limit := fs.Int("runs", 5, "recorded runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *hash == "" || *corpusPath == "" {
		return apperrors.New(apperrors.ErrMalformedInput, "--hash and --corpus are required")
	}
	if err := loadEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *format != "" {
		cfg.Corpus.Format = *format
	}

	var db *postgres.Client
	err = retry.Do(ctx, "postgres connect", cfg.Retry, func(ctx context.Context) error {
		var err error
		db, err = postgres.New(ctx, cfg.Postgres)
		return err
	})
	if err != nil {
		return err
	}
	defer db.Close()

	load := func(recorded string) (*corpus.View, error) {
		name := *tokName
		if name == "" {
			name = recorded
		}
		if name == "" {
			name = cfg.Corpus.Tokenizer
		}
		tok, err := tokenizer.New(name)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrMalformedInput, err.Error())
		}
		loaded, err := loader.LoadCorpusFile(*corpusPath, cfg.Corpus.Format, tok)
		if err != nil {
			return nil, err
		}
		return corpus.Build(loaded.Documents, corpus.BuildOptions{AllowEmpty: cfg.Corpus.AllowEmpty})
	}
	return verifyStoredManifest(ctx, manifeststore.New(db), *hash, *limit, load, os.Stdout)
}

// verifyStoredManifest fetches the manifest, builds the full view with the
// tokenizer of the latest recorded run, applies the manifest and prints the
// outcome. Any hash disagreement is returned as a HashMismatch.
func verifyStoredManifest(
	ctx context.Context,
	src manifestSource,
	hash string,
	limit int,
	load func(recordedTokenizer string) (*corpus.View, error),
	w io.Writer,
) error {
	m, err := src.Manifest(ctx, hash)
	if err != nil {
		return err
	}
	if m == nil {
		return apperrors.Newf(apperrors.ErrMalformedInput, "no manifest stored under %s", hash)
	}
	runs, err := src.Runs(ctx, hash, limit)
	if err != nil {
		return err
	}
	recorded := ""
	if len(runs) > 0 {
		recorded = runs[0].Tokenizer
	}

	full, err := load(recorded)
	if err != nil {
		return apperrors.WithStage("build", err)
	}
	reduced, err := reducer.Apply(full, m)
	if err != nil {
		return apperrors.WithStage("reduce", err)
	}
	others, err := src.PreviousManifestHashes(ctx, m.FullCorpusHash.String(), m.QuerySetHash.String())
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "MANIFEST: %s  algorithm=%s strategy=%s k=%d\n", m.ManifestHash, m.Algorithm, m.Params.Strategy, m.Params.TopK)
	fmt.Fprintf(w, "FULL    : %s  N=%d\n", full.Hash(), full.DocCount())
	fmt.Fprintf(w, "REDUCED : %s  N=%d protected=%d\n", reduced.Hash(), reduced.DocCount(), m.ProtectedCount)
	for _, other := range others {
		if other != hash {
			fmt.Fprintf(w, "OTHER   : %s recorded for the same corpus and queries\n", other)
		}
	}
	for _, run := range runs {
		fmt.Fprintf(w, "RUN     : %s %s mode=%s failing=%d\n", run.RunID, run.Verdict, run.Mode, len(run.Failing))
	}
	fmt.Fprintln(w, "STATUS: REPRODUCED")
	return nil
}
