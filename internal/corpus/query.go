package corpus

import (
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// Query is an ordered term sequence. Repeated terms each contribute to the
// score.
type Query struct {
	ID    string   `json:"id"`
	Terms []string `json:"terms"`
}

// ValidateQueries checks that every query has a unique, non-empty identifier
// and at least one non-empty term.
func ValidateQueries(queries []Query) error {
	seen := make(map[string]struct{}, len(queries))
	for i, q := range queries {
		if q.ID == "" {
			return apperrors.Newf(apperrors.ErrMalformedInput, "query at position %d has an empty identifier", i)
		}
		if _, dup := seen[q.ID]; dup {
			return apperrors.New(apperrors.ErrMalformedInput, "duplicate query identifier").ForQuery(q.ID)
		}
		seen[q.ID] = struct{}{}
		if len(q.Terms) == 0 {
			return apperrors.New(apperrors.ErrMalformedInput, "query has no terms").ForQuery(q.ID)
		}
		for _, term := range q.Terms {
			if term == "" {
				return apperrors.New(apperrors.ErrMalformedInput, "query contains an empty term").ForQuery(q.ID)
			}
		}
	}
	return nil
}

type canonicalQuery struct {
	_     struct{} `cbor:",toarray"`
	ID    string
	Terms []string
}

// HashQueries digests the query set in its given order, since the order of
// queries is part of the workload description.
func HashQueries(queries []Query) (digest.Digest, error) {
	listing := make([]canonicalQuery, len(queries))
	for i, q := range queries {
		terms := q.Terms
		if terms == nil {
			terms = []string{}
		}
		listing[i] = canonicalQuery{ID: q.ID, Terms: terms}
	}
	return digest.Of(digest.QueryDomain, listing)
}
