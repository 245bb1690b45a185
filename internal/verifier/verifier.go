// Package verifier compares the top-K of two rankings of the same query and
// aggregates the outcome across a query batch.
package verifier

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/scorer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

type Verdict string

const (
	Pass Verdict = "PASS"
	Fail Verdict = "FAIL"
)

// Comparison decides when two scores are equal. The zero value compares
// exact bit patterns.
type Comparison struct {
	// Tolerance, when set, accepts |a-b| <= Tolerance. Only meaningful for
	// runs whose statistics are recomputed per view.
	Tolerance float64
	// Approximate selects tolerance comparison. Tolerance must then be > 0.
	Approximate bool
}

// Exact is the comparison used with locked statistics.
var Exact = Comparison{}

// WithTolerance returns a tolerance comparison.
func WithTolerance(tol float64) Comparison {
	return Comparison{Tolerance: tol, Approximate: true}
}

// Validate rejects a tolerance comparison without a usable tolerance.
func (c Comparison) Validate() error {
	if !c.Approximate {
		return nil
	}
	if !(c.Tolerance > 0) || math.IsInf(c.Tolerance, 0) {
		return apperrors.Newf(apperrors.ErrNumericComparison, "tolerance comparison needs a finite tolerance > 0, got %v", c.Tolerance)
	}
	return nil
}

func (c Comparison) Mode() string {
	if c.Approximate {
		return "tolerance"
	}
	return "exact"
}

func (c Comparison) equal(a, b float64) bool {
	if c.Approximate {
		return math.Abs(a-b) <= c.Tolerance
	}
	return math.Float64bits(a) == math.Float64bits(b)
}

// QueryResult is the comparison of one query's two truncated rankings.
type QueryResult struct {
	QueryID string         `json:"query_id"`
	Match   bool           `json:"match"`
	Full    []scorer.Entry `json:"full"`
	Reduced []scorer.Entry `json:"reduced"`
	// FirstDiff is the 0-based index of the first divergence, -1 on match.
	FirstDiff    int           `json:"first_diff"`
	FullEntry    *scorer.Entry `json:"full_entry,omitempty"`
	ReducedEntry *scorer.Entry `json:"reduced_entry,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// FirstDiffRank is the 1-based rank of the first divergence, 0 on match.
func (r QueryResult) FirstDiffRank() int {
	return r.FirstDiff + 1
}

// Verify truncates both rankings to topK and compares them element by
// element. A topK beyond the available documents compares what exists; a
// length difference is itself a mismatch.
func Verify(full, reduced *scorer.Ranking, topK int, cmp Comparison) (QueryResult, error) {
	if err := cmp.Validate(); err != nil {
		return QueryResult{}, err
	}
	if full == nil || reduced == nil {
		return QueryResult{}, apperrors.New(apperrors.ErrMalformedInput, "verify needs both rankings")
	}
	if full.QueryID != reduced.QueryID {
		return QueryResult{}, apperrors.Newf(apperrors.ErrMalformedInput, "rankings belong to different queries %q and %q", full.QueryID, reduced.QueryID).ForQuery(full.QueryID)
	}
	if topK <= 0 {
		return QueryResult{}, apperrors.Newf(apperrors.ErrMalformedInput, "topK must be positive, got %d", topK)
	}

	res := QueryResult{
		QueryID:   full.QueryID,
		Full:      full.TopK(topK),
		Reduced:   reduced.TopK(topK),
		FirstDiff: -1,
		Match:     true,
	}
	n := max(len(res.Full), len(res.Reduced))
	for i := range n {
		var f, r *scorer.Entry
		if i < len(res.Full) {
			f = &res.Full[i]
		}
		if i < len(res.Reduced) {
			r = &res.Reduced[i]
		}
		reason := compareEntries(f, r, cmp)
		if reason == "" {
			continue
		}
		res.Match = false
		res.FirstDiff = i
		res.Reason = reason
		if f != nil {
			e := *f
			res.FullEntry = &e
		}
		if r != nil {
			e := *r
			res.ReducedEntry = &e
		}
		break
	}
	return res, nil
}

func compareEntries(f, r *scorer.Entry, cmp Comparison) string {
	switch {
	case f == nil:
		return "reduced ranking is longer"
	case r == nil:
		return "reduced ranking is shorter"
	case f.DocID != r.DocID:
		return "document differs"
	case !cmp.equal(f.Score, r.Score):
		return fmt.Sprintf("score differs by %g", f.Score-r.Score)
	default:
		return ""
	}
}

// Report is the verdict over a query batch.
type Report struct {
	Verdict Verdict       `json:"verdict"`
	Mode    string        `json:"mode"`
	TopK    int           `json:"top_k"`
	Queries []QueryResult `json:"queries"`
	Failing []string      `json:"failing"`
}

// VerifyBatch compares every query pair; a failing query never stops the
// remaining ones from being checked. Rankings are paired by position and
// must name the same queries.
func VerifyBatch(full, reduced []*scorer.Ranking, topK int, cmp Comparison) (*Report, error) {
	if err := cmp.Validate(); err != nil {
		return nil, err
	}
	if len(full) != len(reduced) {
		return nil, apperrors.Newf(apperrors.ErrMalformedInput, "ranking batches differ in size: %d full, %d reduced", len(full), len(reduced))
	}
	report := &Report{
		Verdict: Pass,
		Mode:    cmp.Mode(),
		TopK:    topK,
		Queries: make([]QueryResult, 0, len(full)),
		Failing: []string{},
	}
	for i := range full {
		res, err := Verify(full[i], reduced[i], topK, cmp)
		if err != nil {
			return nil, err
		}
		report.Queries = append(report.Queries, res)
		if !res.Match {
			report.Verdict = Fail
			report.Failing = append(report.Failing, res.QueryID)
		}
	}
	return report, nil
}

func (r *Report) Passed() bool { return r.Verdict == Pass }

type digestEntry struct {
	_         struct{} `cbor:",toarray"`
	DocID     string
	ScoreBits uint64
}

type digestQuery struct {
	_         struct{} `cbor:",toarray"`
	QueryID   string
	Match     bool
	FirstDiff int
	Full      []digestEntry
	Reduced   []digestEntry
}

func toDigestEntries(entries []scorer.Entry) []digestEntry {
	out := make([]digestEntry, len(entries))
	for i, e := range entries {
		out[i] = digestEntry{DocID: e.DocID, ScoreBits: math.Float64bits(e.Score)}
	}
	return out
}

// Digest identifies the report by verdict and exact per-query content. Two
// runs over identical inputs produce the same digest.
func (r *Report) Digest() (digest.Digest, error) {
	body := struct {
		_       struct{} `cbor:",toarray"`
		Verdict string
		Mode    string
		TopK    int
		Queries []digestQuery
	}{
		Verdict: string(r.Verdict),
		Mode:    r.Mode,
		TopK:    r.TopK,
		Queries: make([]digestQuery, len(r.Queries)),
	}
	for i, q := range r.Queries {
		body.Queries[i] = digestQuery{
			QueryID:   q.QueryID,
			Match:     q.Match,
			FirstDiff: q.FirstDiff,
			Full:      toDigestEntries(q.Full),
			Reduced:   toDigestEntries(q.Reduced),
		}
	}
	return digest.Of(digest.ReportDomain, body)
}
