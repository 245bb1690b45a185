// Package reducer deterministically selects the subset of a corpus that is
// kept for the reduced run.
//
// Every document that shares at least one term with any query is protected
// and always retained. Documents outside the protected set may be pruned as
// redundant according to a Strategy. Every decision is a pure function of
// document content and identifiers: candidates are collected per query,
// merged, sorted, and only then decided, so worker scheduling and input order
// cannot influence the outcome.
package reducer

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// Algorithm identifies this reduction procedure in manifests. Bump the
// version whenever a change could alter the retained set for some input.
const Algorithm = "protected-set-dedup/v1"

// Strategy selects how unprotected documents are pruned.
type Strategy string

const (
	// StrategyNone retains every document.
	StrategyNone Strategy = "none"
	// StrategyProtectedOnly retains only the protected set.
	StrategyProtectedOnly Strategy = "protected-only"
	// StrategyDedupExact collapses unprotected documents whose ordered
	// term listings are identical.
	StrategyDedupExact Strategy = "dedup-exact"
	// StrategyDedupTermSet collapses unprotected documents whose distinct
	// vocabularies are identical.
	StrategyDedupTermSet Strategy = "dedup-termset"
)

// Params configures a reduction. Workers only affects throughput and is
// excluded from the manifest.
type Params struct {
	Strategy Strategy `json:"strategy" cbor:"strategy"`
	// TopK is the ranking depth the reduced corpus must reproduce.
	TopK int `json:"top_k" cbor:"top_k"`
	// ZeroScoreFill protects, per query, the lowest-identifier documents
	// that would fill the top-K with zero scores when a query has fewer
	// than TopK candidates. Needed whenever zero-score documents are ranked.
	ZeroScoreFill bool `json:"zero_score_fill" cbor:"zero_score_fill"`
	Workers       int  `json:"-" cbor:"-"`
}

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyNone, StrategyProtectedOnly, StrategyDedupExact, StrategyDedupTermSet:
		return Strategy(s), nil
	default:
		return "", apperrors.Newf(apperrors.ErrMalformedInput, "unknown reduction strategy %q", s)
	}
}

func (p Params) validate() error {
	if _, err := ParseStrategy(string(p.Strategy)); err != nil {
		return err
	}
	if p.TopK < 0 {
		return apperrors.Newf(apperrors.ErrMalformedInput, "reduction topK must be >= 0, got %d", p.TopK)
	}
	if p.ZeroScoreFill && p.TopK == 0 {
		return apperrors.New(apperrors.ErrMalformedInput, "zero-score fill requires a positive topK")
	}
	return nil
}
