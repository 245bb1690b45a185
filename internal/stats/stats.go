// Package stats freezes the BM25 scoring inputs (IDF table, average document
// length, k1, b) computed over a reference view. A Statistics value is
// immutable once built and is passed explicitly to every scoring call, so
// two runs over different views can share exactly the same inputs.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// Mode selects which view the statistics are computed from.
type Mode string

const (
	// ModeLocked computes statistics once over the full corpus and reuses
	// them verbatim for the reduced run.
	ModeLocked Mode = "locked"
	// ModeRecomputed computes statistics separately for every view. Scores
	// then differ between runs and comparison needs an explicit tolerance.
	ModeRecomputed Mode = "recomputed"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocked, ModeRecomputed:
		return Mode(s), nil
	default:
		return "", apperrors.Newf(apperrors.ErrMalformedInput, "unknown statistics mode %q", s)
	}
}

// Statistics is a frozen set of BM25 scoring inputs.
type Statistics struct {
	k1          float64
	b           float64
	docCount    int
	totalLength int64
	avgdl       float64
	docFreq     map[string]int
	idf         map[string]float64
	reference   digest.Digest
	fingerprint digest.Digest
}

// Lock computes statistics over the reference view.
func Lock(reference *corpus.View, k1, b float64) (*Statistics, error) {
	if err := validateParams(k1, b); err != nil {
		return nil, err
	}
	if reference == nil {
		return nil, apperrors.New(apperrors.ErrMalformedInput, "reference view is nil")
	}
	s := &Statistics{
		k1:          k1,
		b:           b,
		docCount:    reference.DocCount(),
		totalLength: reference.TotalLength(),
		docFreq:     make(map[string]int),
		idf:         make(map[string]float64),
		reference:   reference.Hash(),
	}
	if s.docCount > 0 {
		s.avgdl = float64(s.totalLength) / float64(s.docCount)
	}
	for _, term := range reference.Vocabulary() {
		n := reference.DocumentFrequency(term)
		s.docFreq[term] = n
		s.idf[term] = computeIDF(int64(s.docCount), int64(n))
	}
	fp, err := s.computeFingerprint()
	if err != nil {
		return nil, err
	}
	s.fingerprint = fp
	return s, nil
}

// MaxK1 bounds k1 so term weights and their sums stay finite for any
// realistic term frequency.
const MaxK1 = 1e6

func validateParams(k1, b float64) error {
	if math.IsNaN(k1) || k1 < 0 || k1 > MaxK1 {
		return apperrors.Newf(apperrors.ErrMalformedInput, "k1 must be within [0,%g], got %v", MaxK1, k1)
	}
	if math.IsNaN(b) || b < 0 || b > 1 {
		return apperrors.Newf(apperrors.ErrMalformedInput, "b must be within [0,1], got %v", b)
	}
	return nil
}

// computeIDF is the smoothed BM25 form ln(1 + (N - n + 0.5) / (n + 0.5)),
// which stays positive for every n <= N.
func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

func (s *Statistics) K1() float64 { return s.k1 }

func (s *Statistics) B() float64 { return s.b }

func (s *Statistics) DocCount() int { return s.docCount }

func (s *Statistics) TotalLength() int64 { return s.totalLength }

func (s *Statistics) AvgDocLength() float64 { return s.avgdl }

// Reference is the content hash of the view the statistics were locked on.
func (s *Statistics) Reference() digest.Digest { return s.reference }

// Fingerprint is a digest of the whole frozen table.
func (s *Statistics) Fingerprint() digest.Digest { return s.fingerprint }

// IDF returns the frozen weight for term. Terms the reference view never
// saw get the n=0 weight, which depends only on the reference size.
func (s *Statistics) IDF(term string) float64 {
	if idf, ok := s.idf[term]; ok {
		return idf
	}
	return computeIDF(int64(s.docCount), 0)
}

// DocumentFrequency returns n(t) in the reference view.
func (s *Statistics) DocumentFrequency(term string) int {
	return s.docFreq[term]
}

// VocabularySize is the number of distinct terms in the reference view.
func (s *Statistics) VocabularySize() int { return len(s.idf) }

// Summary is the audit-facing description of a Statistics value.
type Summary struct {
	K1           float64       `json:"k1"`
	B            float64       `json:"b"`
	DocCount     int           `json:"doc_count"`
	TotalLength  int64         `json:"total_length"`
	AvgDocLength float64       `json:"avg_doc_length"`
	Vocabulary   int           `json:"vocabulary"`
	Reference    digest.Digest `json:"reference_hash"`
	Fingerprint  digest.Digest `json:"fingerprint"`
}

func (s *Statistics) Summary() Summary {
	return Summary{
		K1:           s.k1,
		B:            s.b,
		DocCount:     s.docCount,
		TotalLength:  s.totalLength,
		AvgDocLength: s.avgdl,
		Vocabulary:   len(s.idf),
		Reference:    s.reference,
		Fingerprint:  s.fingerprint,
	}
}

func (s *Statistics) sortedTerms() []string {
	terms := make([]string, 0, len(s.idf))
	for term := range s.idf {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

type fingerprintTerm struct {
	_       struct{} `cbor:",toarray"`
	Term    string
	DocFreq int
	IDFBits uint64
}

type fingerprintBody struct {
	_           struct{} `cbor:",toarray"`
	K1Bits      uint64
	BBits       uint64
	DocCount    int
	TotalLength int64
	AvgDLBits   uint64
	Reference   digest.Digest
	Terms       []fingerprintTerm
}

// computeFingerprint hashes float bit patterns rather than decimal
// renderings so two tables only match when every value is bit-identical.
func (s *Statistics) computeFingerprint() (digest.Digest, error) {
	terms := s.sortedTerms()
	body := fingerprintBody{
		K1Bits:      math.Float64bits(s.k1),
		BBits:       math.Float64bits(s.b),
		DocCount:    s.docCount,
		TotalLength: s.totalLength,
		AvgDLBits:   math.Float64bits(s.avgdl),
		Reference:   s.reference,
		Terms:       make([]fingerprintTerm, len(terms)),
	}
	for i, term := range terms {
		body.Terms[i] = fingerprintTerm{
			Term:    term,
			DocFreq: s.docFreq[term],
			IDFBits: math.Float64bits(s.idf[term]),
		}
	}
	fp, err := digest.Of(digest.StatsDomain, body)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("fingerprinting statistics: %w", err)
	}
	return fp, nil
}
