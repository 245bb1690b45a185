package corpus

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

// BuildOptions controls input validation.
type BuildOptions struct {
	// AllowEmpty admits documents with zero terms.
	AllowEmpty bool
}

// View is an immutable set of documents ordered by identifier, with an
// inverted index and a canonical content hash.
type View struct {
	docs        []*Document
	byID        map[string]*Document
	index       map[string]PostingList
	totalLength int64
	hash        digest.Digest
}

// Build validates raw documents and returns the view over them. Input order
// does not matter: two builds over the same documents in any order produce
// identical views and hashes.
func Build(raw []RawDocument, opts BuildOptions) (*View, error) {
	docs := make([]*Document, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, rd := range raw {
		if rd.ID == "" {
			return nil, apperrors.Newf(apperrors.ErrMalformedInput, "document at position %d has an empty identifier", i)
		}
		if _, dup := seen[rd.ID]; dup {
			return nil, apperrors.New(apperrors.ErrMalformedInput, "duplicate document identifier").ForDoc(rd.ID)
		}
		seen[rd.ID] = struct{}{}
		if len(rd.Terms) == 0 && !opts.AllowEmpty {
			return nil, apperrors.New(apperrors.ErrMalformedInput, "document has zero terms").ForDoc(rd.ID)
		}
		for _, term := range rd.Terms {
			if term == "" {
				return nil, apperrors.New(apperrors.ErrMalformedInput, "document contains an empty term").ForDoc(rd.ID)
			}
		}
		docs = append(docs, newDocument(rd.ID, rd.Terms))
	}
	return newView(docs)
}

func newView(docs []*Document) (*View, error) {
	sortDocuments(docs)
	v := &View{
		docs:  docs,
		byID:  make(map[string]*Document, len(docs)),
		index: make(map[string]PostingList),
	}
	// Documents are visited in ID order, so every posting list comes out
	// sorted without a second pass.
	for _, doc := range docs {
		v.byID[doc.id] = doc
		v.totalLength += int64(doc.length)
		for _, term := range doc.DistinctTerms() {
			v.index[term] = append(v.index[term], Posting{
				DocID:     doc.id,
				Frequency: doc.freqs[term],
			})
		}
	}
	hash, err := canonicalHash(docs)
	if err != nil {
		return nil, fmt.Errorf("hashing corpus view: %w", err)
	}
	v.hash = hash
	return v, nil
}

// Subset returns a new view over the given identifiers. Unknown identifiers
// fail with a document-not-found error; repeats are rejected as malformed.
func (v *View) Subset(ids []string) (*View, error) {
	docs := make([]*Document, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		doc, ok := v.byID[id]
		if !ok {
			return nil, apperrors.New(apperrors.ErrDocumentNotFound, "subset references a document outside the view").ForDoc(id)
		}
		if _, dup := seen[id]; dup {
			return nil, apperrors.New(apperrors.ErrMalformedInput, "subset repeats a document identifier").ForDoc(id)
		}
		seen[id] = struct{}{}
		docs = append(docs, doc)
	}
	return newView(docs)
}

func (v *View) DocCount() int { return len(v.docs) }

func (v *View) TotalLength() int64 { return v.totalLength }

// Hash is the canonical content hash of the view.
func (v *View) Hash() digest.Digest { return v.hash }

// Indexed reports whether the view carries an inverted index. Only views
// produced by Build or Subset do.
func (v *View) Indexed() bool { return v != nil && v.index != nil }

// Documents returns the documents in ascending identifier order. The slice
// is a copy; the documents themselves are immutable.
func (v *View) Documents() []*Document {
	out := make([]*Document, len(v.docs))
	copy(out, v.docs)
	return out
}

// IDs returns the identifiers in ascending order.
func (v *View) IDs() []string {
	out := make([]string, len(v.docs))
	for i, doc := range v.docs {
		out[i] = doc.id
	}
	return out
}

func (v *View) Contains(docID string) bool {
	_, ok := v.byID[docID]
	return ok
}

func (v *View) Document(docID string) (*Document, error) {
	doc, ok := v.byID[docID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrDocumentNotFound, "no such document in view").ForDoc(docID)
	}
	return doc, nil
}

// Length returns the term count of a document.
func (v *View) Length(docID string) (int, error) {
	doc, err := v.Document(docID)
	if err != nil {
		return 0, err
	}
	return doc.length, nil
}

// TermFrequency returns how often term occurs in the document.
func (v *View) TermFrequency(docID, term string) (int, error) {
	doc, err := v.Document(docID)
	if err != nil {
		return 0, err
	}
	return doc.freqs[term], nil
}

// DocumentFrequency is the number of documents containing term.
func (v *View) DocumentFrequency(term string) int {
	return len(v.index[term])
}

// Postings returns a copy of the posting list for term, ordered by DocID.
func (v *View) Postings(term string) PostingList {
	src := v.index[term]
	if len(src) == 0 {
		return nil
	}
	out := make(PostingList, len(src))
	copy(out, src)
	return out
}

// Vocabulary returns every indexed term in ascending order.
func (v *View) Vocabulary() []string {
	out := make([]string, 0, len(v.index))
	for term := range v.index {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// IsStrictSubsetOf reports whether every document of v is in other and
// other holds at least one document v does not.
func (v *View) IsStrictSubsetOf(other *View) bool {
	if len(v.docs) >= len(other.docs) {
		return false
	}
	for _, doc := range v.docs {
		if !other.Contains(doc.id) {
			return false
		}
	}
	return true
}

func sortDocuments(docs []*Document) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].id < docs[j].id
	})
}
