// Package scorer ranks every document of a view against a query using BM25
// with caller-supplied, frozen statistics.
//
// Scores for a document depend only on the document and the statistics:
// query terms are visited in input order and accumulated left to right, so a
// document present in two views receives a bit-identical score in both.
// Parallel workers only partition the documents; the final order always
// comes from one sort by (score desc, id asc).
package scorer

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// minChunk keeps tiny views on a single goroutine.
const minChunk = 256

// Entry is one ranked document.
type Entry struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Ranking is the ordered result of one query against one view.
type Ranking struct {
	QueryID string  `json:"query_id"`
	Entries []Entry `json:"entries"`
}

// Options tunes a scoring run without affecting its output order.
type Options struct {
	// ExcludeZero drops documents whose total score is exactly zero.
	ExcludeZero bool
	// Workers bounds parallelism; values below 2 score sequentially.
	Workers int
}

// Score ranks every document of view against query.
func Score(ctx context.Context, view *corpus.View, s *stats.Statistics, query corpus.Query, opts Options) (*Ranking, error) {
	if err := checkInputs(view, s); err != nil {
		return nil, err
	}
	docs := view.Documents()
	workers := opts.Workers
	if workers < 2 || len(docs) < 2*minChunk {
		return &Ranking{QueryID: query.ID, Entries: scoreRange(docs, s, query.Terms, opts.ExcludeZero)}, nil
	}

	chunkSize := (len(docs) + workers - 1) / workers
	if chunkSize < minChunk {
		chunkSize = minChunk
	}
	numChunks := (len(docs) + chunkSize - 1) / chunkSize
	partials := make([][]Entry, numChunks)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < numChunks; i++ {
		lo := i * chunkSize
		hi := min(lo+chunkSize, len(docs))
		g.Go(func() error {
			partials[i] = scoreRange(docs[lo:hi], s, query.Terms, opts.ExcludeZero)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range partials {
		total += len(p)
	}
	entries := make([]Entry, 0, total)
	for _, p := range partials {
		entries = append(entries, p...)
	}
	sortEntries(entries)
	return &Ranking{QueryID: query.ID, Entries: entries}, nil
}

// ScoreAll ranks every query against view. Rankings are returned in query
// order regardless of which worker finishes first.
func ScoreAll(ctx context.Context, view *corpus.View, s *stats.Statistics, queries []corpus.Query, opts Options) ([]*Ranking, error) {
	if err := checkInputs(view, s); err != nil {
		return nil, err
	}
	rankings := make([]*Ranking, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	perQuery := Options{ExcludeZero: opts.ExcludeZero, Workers: 1}
	for i, q := range queries {
		g.Go(func() error {
			r, err := Score(gctx, view, s, q, perQuery)
			if err != nil {
				return err
			}
			rankings[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rankings, nil
}

func checkInputs(view *corpus.View, s *stats.Statistics) error {
	if view == nil {
		return apperrors.New(apperrors.ErrMalformedInput, "scoring view is nil")
	}
	if s == nil {
		return apperrors.New(apperrors.ErrMalformedInput, "scoring statistics are nil")
	}
	return nil
}

func scoreRange(docs []*corpus.Document, s *stats.Statistics, terms []string, excludeZero bool) []Entry {
	out := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		score := ScoreDocument(doc, s, terms)
		if excludeZero && score == 0 {
			continue
		}
		out = append(out, Entry{DocID: doc.ID(), Score: score})
	}
	sortEntries(out)
	return out
}

// ScoreDocument computes the BM25 score of one document. Terms the document
// lacks contribute nothing.
func ScoreDocument(doc *corpus.Document, s *stats.Statistics, terms []string) float64 {
	k1 := s.K1()
	length := float64(doc.Length())
	lengthNorm := computeLengthNorm(length, s.AvgDocLength(), s.B())

	var score float64
	for _, term := range terms {
		frequency := float64(doc.TermFrequency(term))
		if frequency == 0 {
			continue
		}
		numerator := frequency * (k1 + 1)
		denominator := frequency + k1*lengthNorm
		score += s.IDF(term) * numerator / denominator
	}
	return score
}

// computeLengthNorm is (1 - b + b*len/avgdl); an empty reference has no
// average length and contributes a zero ratio.
func computeLengthNorm(docLength, avgDocLength, b float64) float64 {
	var ratio float64
	if avgDocLength != 0 {
		ratio = docLength / avgDocLength
	}
	return 1 - b + b*ratio
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// Less is the canonical ranking order: higher score first, then ascending
// identifier.
func Less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// TopK returns the first k entries, or all of them when fewer exist.
func (r *Ranking) TopK(k int) []Entry {
	if k < 0 || k > len(r.Entries) {
		k = len(r.Entries)
	}
	out := make([]Entry, k)
	copy(out, r.Entries[:k])
	return out
}

// Lookup returns the score of docID in the ranking.
func (r *Ranking) Lookup(docID string) (float64, bool) {
	for _, e := range r.Entries {
		if e.DocID == docID {
			return e.Score, true
		}
	}
	return 0, false
}

type digestEntry struct {
	_         struct{} `cbor:",toarray"`
	DocID     string
	ScoreBits uint64
}

// Digest identifies the ranking by identifiers and exact score bits.
func (r *Ranking) Digest() (digest.Digest, error) {
	body := struct {
		_       struct{} `cbor:",toarray"`
		QueryID string
		Entries []digestEntry
	}{QueryID: r.QueryID, Entries: make([]digestEntry, len(r.Entries))}
	for i, e := range r.Entries {
		body.Entries[i] = digestEntry{DocID: e.DocID, ScoreBits: math.Float64bits(e.Score)}
	}
	return digest.Of(digest.RankingDomain, body)
}
