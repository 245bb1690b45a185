// Package corpus is the immutable document store. A View is built once from
// externally loaded documents and never mutated; everything downstream
// (reduction, statistics, scoring) reads from it concurrently without locks.
package corpus

import "sort"

// RawDocument is a loader-produced (identifier, term sequence) pair.
type RawDocument struct {
	ID    string   `json:"id"`
	Terms []string `json:"terms"`
}

// Posting records one document's frequency for a term.
type Posting struct {
	DocID     string
	Frequency int
}

// PostingList is ordered by ascending DocID.
type PostingList []Posting

// Document is an immutable, tokenized document.
type Document struct {
	id     string
	terms  []string
	freqs  map[string]int
	length int
}

func newDocument(id string, terms []string) *Document {
	owned := make([]string, len(terms))
	copy(owned, terms)
	freqs := make(map[string]int, len(owned))
	for _, term := range owned {
		freqs[term]++
	}
	return &Document{
		id:     id,
		terms:  owned,
		freqs:  freqs,
		length: len(owned),
	}
}

func (d *Document) ID() string { return d.id }

// Length is the total number of terms, duplicates included.
func (d *Document) Length() int { return d.length }

// Terms returns a copy of the ordered term sequence.
func (d *Document) Terms() []string {
	out := make([]string, len(d.terms))
	copy(out, d.terms)
	return out
}

// TermFrequency returns how often term occurs; zero when absent.
func (d *Document) TermFrequency(term string) int {
	return d.freqs[term]
}

// DistinctTerms returns the document's vocabulary in ascending order.
func (d *Document) DistinctTerms() []string {
	out := make([]string, 0, len(d.freqs))
	for term := range d.freqs {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}
