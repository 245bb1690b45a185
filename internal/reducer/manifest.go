package reducer

import (
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/codec"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// Representative records a retained document that stands in for collapsed
// duplicates.
type Representative struct {
	DocID     string `json:"doc_id" cbor:"doc_id"`
	Collapsed int    `json:"collapsed" cbor:"collapsed"`
}

// Manifest describes one reduction. ManifestHash covers every other field,
// so two manifests are equal exactly when their hashes are.
type Manifest struct {
	Algorithm       string           `json:"algorithm"`
	Params          Params           `json:"params"`
	FullCorpusHash  digest.Digest    `json:"full_corpus_hash"`
	QuerySetHash    digest.Digest    `json:"query_set_hash"`
	FullCount       int              `json:"full_count"`
	ProtectedCount  int              `json:"protected_count"`
	Retained        []string         `json:"retained"`
	RetainedHash    digest.Digest    `json:"retained_hash"`
	Representatives []Representative `json:"representatives"`
	// StrictSubset is false when nothing was pruned.
	StrictSubset bool          `json:"strict_subset"`
	ManifestHash digest.Digest `json:"manifest_hash"`
}

type manifestBody struct {
	_               struct{} `cbor:",toarray"`
	Algorithm       string
	Strategy        string
	TopK            int
	ZeroScoreFill   bool
	FullCorpusHash  []byte
	QuerySetHash    []byte
	FullCount       int
	ProtectedCount  int
	Retained        []string
	RetainedHash    []byte
	Representatives []representativeBody
}

type representativeBody struct {
	_         struct{} `cbor:",toarray"`
	DocID     string
	Collapsed int
}

func newManifest(full *corpus.View, queries []corpus.Query, params Params, protected []string, d pruneDecision) (*Manifest, error) {
	queryHash, err := corpus.HashQueries(queries)
	if err != nil {
		return nil, fmt.Errorf("hashing query set: %w", err)
	}
	reduced, err := full.Subset(d.retained)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrReduction, "retained set is not a valid subset: %v", err)
	}
	reps := d.representatives
	if reps == nil {
		reps = []Representative{}
	}
	m := &Manifest{
		Algorithm:       Algorithm,
		Params:          params,
		FullCorpusHash:  full.Hash(),
		QuerySetHash:    queryHash,
		FullCount:       full.DocCount(),
		ProtectedCount:  len(protected),
		Retained:        reduced.IDs(),
		RetainedHash:    reduced.Hash(),
		Representatives: reps,
		StrictSubset:    reduced.DocCount() < full.DocCount(),
	}
	m.Params.Workers = 0
	h, err := m.computeHash()
	if err != nil {
		return nil, err
	}
	m.ManifestHash = h
	return m, nil
}

func (m *Manifest) computeHash() (digest.Digest, error) {
	body := manifestBody{
		Algorithm:      m.Algorithm,
		Strategy:       string(m.Params.Strategy),
		TopK:           m.Params.TopK,
		ZeroScoreFill:  m.Params.ZeroScoreFill,
		FullCorpusHash: m.FullCorpusHash[:],
		QuerySetHash:   m.QuerySetHash[:],
		FullCount:      m.FullCount,
		ProtectedCount: m.ProtectedCount,
		Retained:       m.Retained,
		RetainedHash:   m.RetainedHash[:],
	}
	if body.Retained == nil {
		body.Retained = []string{}
	}
	body.Representatives = make([]representativeBody, len(m.Representatives))
	for i, r := range m.Representatives {
		body.Representatives[i] = representativeBody{DocID: r.DocID, Collapsed: r.Collapsed}
	}
	h, err := digest.Of(digest.ManifestDomain, body)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("hashing manifest: %w", err)
	}
	return h, nil
}

// Verify recomputes the manifest hash and checks the retained listing is
// sorted and unique. A manifest read back from disk or a database must pass
// before it is trusted.
func (m *Manifest) Verify() error {
	if !slices.IsSorted(m.Retained) {
		return apperrors.New(apperrors.ErrHashMismatch, "manifest retained set is not sorted")
	}
	for i := 1; i < len(m.Retained); i++ {
		if m.Retained[i] == m.Retained[i-1] {
			return apperrors.New(apperrors.ErrHashMismatch, "manifest retained set repeats an identifier").ForDoc(m.Retained[i])
		}
	}
	h, err := m.computeHash()
	if err != nil {
		return err
	}
	if h != m.ManifestHash {
		return apperrors.Newf(apperrors.ErrHashMismatch, "manifest hash %s does not match recorded %s", h, m.ManifestHash)
	}
	return nil
}

// VerifyHash compares the manifest hash with an expected hex value.
func (m *Manifest) VerifyHash(expected string) error {
	want, err := digest.Parse(expected)
	if err != nil {
		return apperrors.Newf(apperrors.ErrMalformedInput, "expected manifest hash: %v", err)
	}
	if want != m.ManifestHash {
		return apperrors.Newf(apperrors.ErrHashMismatch, "manifest hash %s, expected %s", m.ManifestHash, want)
	}
	return nil
}

// Encode returns the canonical CBOR encoding of the manifest.
func (m *Manifest) Encode() ([]byte, error) {
	return codec.Marshal(m)
}

// DecodeManifest parses a CBOR manifest and verifies its hash.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := codec.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Newf(apperrors.ErrMalformedInput, "decoding manifest: %v", err)
	}
	if err := m.Verify(); err != nil {
		return nil, err
	}
	return &m, nil
}
