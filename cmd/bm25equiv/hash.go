package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// hashCommand prints the content hash a later run can pin with
// --expected-hash.
func hashCommand(args []string) error {
	fs := pflag.NewFlagSet("hash", pflag.ContinueOnError)
	corpusPath := fs.String("corpus", "", "corpus file (required)")
	format := fs.String("format", loader.FormatLines, "corpus format: lines or jsonl")
	tokName := fs.String("tokenizer", "simple", "tokenizer: simple, light or snowball")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *corpusPath == "" {
		return apperrors.New(apperrors.ErrMalformedInput, "--corpus is required")
	}
	tok, err := tokenizer.New(*tokName)
	if err != nil {
		return apperrors.New(apperrors.ErrMalformedInput, err.Error())
	}
	loaded, err := loader.LoadCorpusFile(*corpusPath, *format, tok)
	if err != nil {
		return err
	}
	h, err := corpus.HashRaw(loaded.Documents)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s  %s  docs=%d tokenizer=%s\n", h, *corpusPath, len(loaded.Documents), tok.Name())
	return nil
}
