package corpus

import (
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// canonicalDoc is the hashed form of a document: its identifier followed by
// its terms in original order.
type canonicalDoc struct {
	_     struct{} `cbor:",toarray"`
	ID    string
	Terms []string
}

// canonicalHash expects docs sorted by identifier.
func canonicalHash(docs []*Document) (digest.Digest, error) {
	listing := make([]canonicalDoc, len(docs))
	for i, doc := range docs {
		terms := doc.terms
		if terms == nil {
			terms = []string{}
		}
		listing[i] = canonicalDoc{ID: doc.id, Terms: terms}
	}
	return digest.Of(digest.CorpusDomain, listing)
}

// HashRaw computes the canonical hash loaders publish alongside a corpus.
// It equals Build(raw).Hash() for any valid input, without building a view.
func HashRaw(raw []RawDocument) (digest.Digest, error) {
	docs := make([]*Document, len(raw))
	for i, rd := range raw {
		docs[i] = &Document{id: rd.ID, terms: rd.Terms}
	}
	sortDocuments(docs)
	return canonicalHash(docs)
}

// VerifyHash compares the view's canonical hash against an expected hex
// digest. A mismatch is always fatal for the run.
func (v *View) VerifyHash(expected string) error {
	want, err := digest.Parse(expected)
	if err != nil {
		return apperrors.Newf(apperrors.ErrMalformedInput, "expected corpus hash: %v", err)
	}
	if want != v.hash {
		return apperrors.Newf(apperrors.ErrHashMismatch, "corpus hash %s does not match expected %s", v.hash, want)
	}
	return nil
}
