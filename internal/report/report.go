// Package report persists the artifacts of a run: the manifest, both top-K
// listings, the per-query differences, a human-readable summary, and a
// canonical CBOR bundle whose bytes are identical across reruns.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/scorer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/codec"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
)

// File names written by WriteAll.
const (
	ManifestFile    = "manifest.json"
	TopKFullFile    = "topk_full.json"
	TopKReducedFile = "topk_reduced.json"
	DiffFile        = "diff.json"
	TextFile        = "report.txt"
	BundleFile      = "report.cbor"
)

const previewChars = 80

// Meta describes the run for the human-readable parts of the report.
type Meta struct {
	RunID       string
	Tokenizer   string
	QueryText   map[string]string
	DocText     map[string]string
	MaxMismatch int
}

// Ranked is one top-K entry as written to disk.
type Ranked struct {
	Rank  int     `json:"rank"`
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

// Listing is the top-K of one query.
type Listing struct {
	QueryID string   `json:"query_id"`
	Entries []Ranked `json:"entries"`
}

// Mismatch is the first divergence of a failing query.
type Mismatch struct {
	QueryID      string   `json:"query_id"`
	Rank         int      `json:"rank"`
	Reason       string   `json:"reason"`
	FullDoc      string   `json:"full_doc,omitempty"`
	FullScore    *float64 `json:"full_score,omitempty"`
	ReducedDoc   string   `json:"reduced_doc,omitempty"`
	ReducedScore *float64 `json:"reduced_score,omitempty"`
}

// Summary is the compact run record shared by the bundle, the manifest
// store and audit events.
type Summary struct {
	RunID        string           `json:"run_id" cbor:"run_id"`
	Verdict      verifier.Verdict `json:"verdict" cbor:"verdict"`
	Mode         string           `json:"mode" cbor:"mode"`
	Locked       bool             `json:"locked" cbor:"locked"`
	TopK         int              `json:"top_k" cbor:"top_k"`
	K1           float64          `json:"k1" cbor:"k1"`
	B            float64          `json:"b" cbor:"b"`
	Tokenizer    string           `json:"tokenizer" cbor:"tokenizer"`
	CorpusHash   digest.Digest    `json:"corpus_hash" cbor:"corpus_hash"`
	ManifestHash digest.Digest    `json:"manifest_hash" cbor:"manifest_hash"`
	StatsPrint   digest.Digest    `json:"stats_fingerprint" cbor:"stats_fingerprint"`
	ReportDigest digest.Digest    `json:"report_digest" cbor:"report_digest"`
	FullDocs     int              `json:"full_docs" cbor:"full_docs"`
	ReducedDocs  int              `json:"reduced_docs" cbor:"reduced_docs"`
	AvgDocLength float64          `json:"avgdl" cbor:"avgdl"`
	Queries      int              `json:"queries" cbor:"queries"`
	Failing      []string         `json:"failing" cbor:"failing"`
}

// Summarize extracts the Summary of a run.
func Summarize(res *pipeline.Result, meta Meta) Summary {
	return Summary{
		RunID:        meta.RunID,
		Verdict:      res.Report.Verdict,
		Mode:         res.Report.Mode,
		Locked:       res.Locked(),
		TopK:         res.Report.TopK,
		K1:           res.FullStats.K1(),
		B:            res.FullStats.B(),
		Tokenizer:    meta.Tokenizer,
		CorpusHash:   res.Manifest.FullCorpusHash,
		ManifestHash: res.Manifest.ManifestHash,
		StatsPrint:   res.FullStats.Fingerprint(),
		ReportDigest: res.ReportDigest,
		FullDocs:     res.FullView.DocCount(),
		ReducedDocs:  res.ReducedView.DocCount(),
		AvgDocLength: res.FullStats.AvgDocLength(),
		Queries:      len(res.Report.Queries),
		Failing:      res.Report.Failing,
	}
}

// Listings converts the truncated rankings of a report.
func Listings(report *verifier.Report, reduced bool, docText map[string]string) []Listing {
	out := make([]Listing, len(report.Queries))
	for i, q := range report.Queries {
		entries := q.Full
		if reduced {
			entries = q.Reduced
		}
		l := Listing{QueryID: q.QueryID, Entries: make([]Ranked, len(entries))}
		for j, e := range entries {
			l.Entries[j] = Ranked{Rank: j + 1, DocID: e.DocID, Score: e.Score, Text: docText[e.DocID]}
		}
		out[i] = l
	}
	return out
}

// Mismatches lists the first divergence of every failing query.
func Mismatches(report *verifier.Report) []Mismatch {
	out := []Mismatch{}
	for _, q := range report.Queries {
		if q.Match {
			continue
		}
		m := Mismatch{QueryID: q.QueryID, Rank: q.FirstDiffRank(), Reason: q.Reason}
		if q.FullEntry != nil {
			m.FullDoc = q.FullEntry.DocID
			m.FullScore = scorePtr(q.FullEntry)
		}
		if q.ReducedEntry != nil {
			m.ReducedDoc = q.ReducedEntry.DocID
			m.ReducedScore = scorePtr(q.ReducedEntry)
		}
		out = append(out, m)
	}
	return out
}

func scorePtr(e *scorer.Entry) *float64 {
	s := e.Score
	return &s
}

// WriteAll writes every artifact into dir, creating it when needed.
func WriteAll(dir string, res *pipeline.Result, meta Meta) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	jsonFiles := []struct {
		name string
		v    any
	}{
		{ManifestFile, res.Manifest},
		{TopKFullFile, Listings(res.Report, false, meta.DocText)},
		{TopKReducedFile, Listings(res.Report, true, meta.DocText)},
		{DiffFile, Mismatches(res.Report)},
	}
	for _, f := range jsonFiles {
		if err := writeJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return err
		}
	}

	var text strings.Builder
	if err := WriteText(&text, res, meta); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, TextFile), []byte(text.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", TextFile, err)
	}

	bundle, err := EncodeBundle(res, meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, BundleFile), bundle, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", BundleFile, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// bundle is the CBOR report. It carries no run identifier or timestamps.
type bundle struct {
	Manifest []byte           `cbor:"manifest"`
	Report   *verifier.Report `cbor:"report"`
	Summary  Summary          `cbor:"summary"`
}

// EncodeBundle returns the canonical CBOR encoding of the run. Two runs on
// identical inputs encode to identical bytes.
func EncodeBundle(res *pipeline.Result, meta Meta) ([]byte, error) {
	manifest, err := res.Manifest.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	summary := Summarize(res, meta)
	summary.RunID = ""
	data, err := codec.Marshal(bundle{Manifest: manifest, Report: res.Report, Summary: summary})
	if err != nil {
		return nil, fmt.Errorf("encoding report bundle: %w", err)
	}
	return data, nil
}

// WriteText renders the plain-text report.
func WriteText(w io.Writer, res *pipeline.Result, meta Meta) error {
	var b strings.Builder
	statsLabel := "locked statistics"
	if !res.Locked() {
		statsLabel = "recomputed statistics"
	}
	fmt.Fprintf(&b, "BM25 Equivalence Check (FULL vs REDUCED, %s)\n", statsLabel)
	if meta.RunID != "" {
		fmt.Fprintf(&b, "RUN     : %s\n", meta.RunID)
	}
	fmt.Fprintf(&b, "FULL    : %s  N=%d avgdl=%s\n", res.Manifest.FullCorpusHash, res.FullView.DocCount(), formatFloat(res.FullStats.AvgDocLength()))
	fmt.Fprintf(&b, "REDUCED : %s  N=%d\n", res.Manifest.RetainedHash, res.ReducedView.DocCount())
	fmt.Fprintf(&b, "MANIFEST: %s  (%s, strategy=%s)\n", res.Manifest.ManifestHash, res.Manifest.Algorithm, res.Manifest.Params.Strategy)
	fmt.Fprintf(&b, "STATS   : %s  k1=%s b=%s\n", res.FullStats.Fingerprint(), formatFloat(res.FullStats.K1()), formatFloat(res.FullStats.B()))
	fmt.Fprintf(&b, "K       : %d\n", res.Report.TopK)
	fmt.Fprintf(&b, "QUERY   : %s\n", queryLine(res.Report, meta.QueryText))
	b.WriteString("\n")

	if res.Report.Passed() {
		fmt.Fprintf(&b, "STATUS: PASS (top-K identity, order and scores match for %d queries, %s comparison)\n", len(res.Report.Queries), res.Report.Mode)
	} else {
		mismatches := Mismatches(res.Report)
		limit := meta.MaxMismatch
		if limit <= 0 || limit > len(mismatches) {
			limit = len(mismatches)
		}
		fmt.Fprintf(&b, "STATUS: FAIL  mismatches=%d\n", len(mismatches))
		fmt.Fprintf(&b, "First %d mismatches:\n", limit)
		for _, m := range mismatches[:limit] {
			fmt.Fprintf(&b, "- query %s rank %d (%s): FULL=%s vs REDUCED=%s\n",
				m.QueryID, m.Rank, m.Reason,
				describe(m.FullDoc, m.FullScore, meta.DocText),
				describe(m.ReducedDoc, m.ReducedScore, meta.DocText),
			)
		}
	}
	fmt.Fprintf(&b, "DIGEST: %s\n", res.ReportDigest)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("writing text report: %w", err)
	}
	return nil
}

func queryLine(report *verifier.Report, queryText map[string]string) string {
	parts := make([]string, len(report.Queries))
	for i, q := range report.Queries {
		if text, ok := queryText[q.QueryID]; ok {
			parts[i] = fmt.Sprintf("%s=%q", q.QueryID, text)
		} else {
			parts[i] = q.QueryID
		}
	}
	return strings.Join(parts, " | ")
}

func describe(docID string, score *float64, docText map[string]string) string {
	if docID == "" {
		return "<none>"
	}
	out := docID
	if text, ok := docText[docID]; ok {
		out = fmt.Sprintf("%s '%s'", docID, preview(text))
	}
	if score != nil {
		out += " (" + formatFloat(*score) + ")"
	}
	return out
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewChars {
		return text
	}
	return string(runes[:previewChars]) + "..."
}

// formatFloat prints the shortest representation that round-trips.
func formatFloat(f float64) string {
	return fmt.Sprintf("%v", f)
}
