// bm25equiv reduces a corpus and proves that BM25 top-K results over the
// reduced corpus are identical to those over the full corpus.
//
// Usage:
//
//	bm25equiv run --corpus logs.txt --q "error disk" --k 50 --out ./out
//	bm25equiv hash --corpus logs.txt
//	bm25equiv events
//	bm25equiv check --config run.yaml
//	bm25equiv verify-manifest --hash <manifest> --corpus logs.txt
//
// run exits 0 on PASS, 1 on FAIL, and a distinct code per error kind.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "run"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}
	var err error
	code := apperrors.ExitPass
	switch command {
	case "run":
		code, err = runCommand(ctx, args)
	case "hash":
		err = hashCommand(args)
	case "events":
		err = eventsCommand(ctx, args)
	case "check":
		code, err = checkCommand(ctx, args)
	case "verify-manifest":
		err = verifyManifestCommand(ctx, args)
	case "help":
		usage()
		return apperrors.ExitPass
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage()
		return apperrors.ExitInternal
	}
	if errors.Is(err, pflag.ErrHelp) {
		return apperrors.ExitPass
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", apperrors.Kind(err), err)
		return apperrors.ExitCode(err)
	}
	return code
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: bm25equiv <command> [flags]

commands:
  run     reduce the corpus, score full and reduced views, verify top-K (default)
  hash    print the canonical content hash of a corpus
  events  print audit events from the configured Kafka topic
  check   probe the Postgres, Redis, Kafka and Pushgateway sinks that are enabled
  verify-manifest
          reload a recorded manifest and re-apply it to a corpus

run "bm25equiv <command> --help" for the flags of a command.`)
}

// loadEnv reads an explicit env file, or ./.env when present.
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}
