package corpus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

func sampleDocs() []RawDocument {
	return []RawDocument{
		{ID: "d3", Terms: []string{"disk", "disk", "disk"}},
		{ID: "d1", Terms: []string{"error", "disk"}},
		{ID: "d2", Terms: []string{"error", "network"}},
	}
}

func TestBuildOrdersAndIndexes(t *testing.T) {
	view, err := Build(sampleDocs(), BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"d1", "d2", "d3"}, view.IDs())
	assert.Equal(t, 3, view.DocCount())
	assert.Equal(t, int64(7), view.TotalLength())
	assert.True(t, view.Indexed())

	assert.Equal(t, PostingList{{DocID: "d1", Frequency: 1}, {DocID: "d3", Frequency: 3}}, view.Postings("disk"))
	assert.Equal(t, 2, view.DocumentFrequency("error"))
	assert.Equal(t, 0, view.DocumentFrequency("cat"))
	assert.Nil(t, view.Postings("cat"))
	assert.Equal(t, []string{"disk", "error", "network"}, view.Vocabulary())
}

func TestLengthAndTermFrequency(t *testing.T) {
	view, err := Build(sampleDocs(), BuildOptions{})
	require.NoError(t, err)

	length, err := view.Length("d3")
	require.NoError(t, err)
	assert.Equal(t, 3, length)

	tf, err := view.TermFrequency("d3", "disk")
	require.NoError(t, err)
	assert.Equal(t, 3, tf)

	tf, err = view.TermFrequency("d3", "error")
	require.NoError(t, err)
	assert.Equal(t, 0, tf)

	_, err = view.Length("d9")
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
	_, err = view.TermFrequency("d9", "disk")
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
}

func TestBuildRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		raw  []RawDocument
		opts BuildOptions
	}{
		{"duplicate id", []RawDocument{{ID: "a", Terms: []string{"x"}}, {ID: "a", Terms: []string{"y"}}}, BuildOptions{}},
		{"empty id", []RawDocument{{ID: "", Terms: []string{"x"}}}, BuildOptions{}},
		{"empty document", []RawDocument{{ID: "a"}}, BuildOptions{}},
		{"empty term", []RawDocument{{ID: "a", Terms: []string{"x", ""}}}, BuildOptions{AllowEmpty: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.raw, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedInput))
		})
	}
}

func TestBuildAllowsEmptyWhenConfigured(t *testing.T) {
	view, err := Build([]RawDocument{{ID: "a"}, {ID: "b", Terms: []string{"x"}}}, BuildOptions{AllowEmpty: true})
	require.NoError(t, err)
	length, err := view.Length("a")
	require.NoError(t, err)
	assert.Equal(t, 0, length)
}

func TestDocumentIsImmutable(t *testing.T) {
	raw := []RawDocument{{ID: "a", Terms: []string{"x", "y"}}}
	view, err := Build(raw, BuildOptions{})
	require.NoError(t, err)

	raw[0].Terms[0] = "mutated"
	doc, err := view.Document("a")
	require.NoError(t, err)
	terms := doc.Terms()
	assert.Equal(t, []string{"x", "y"}, terms)

	terms[1] = "mutated"
	assert.Equal(t, []string{"x", "y"}, doc.Terms())
}

func TestSubset(t *testing.T) {
	full, err := Build(sampleDocs(), BuildOptions{})
	require.NoError(t, err)

	sub, err := full.Subset([]string{"d3", "d1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d3"}, sub.IDs())
	assert.True(t, sub.IsStrictSubsetOf(full))
	assert.False(t, full.IsStrictSubsetOf(full))
	assert.Equal(t, 0, sub.DocumentFrequency("network"))

	_, err = full.Subset([]string{"d1", "d9"})
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))

	_, err = full.Subset([]string{"d1", "d1"})
	assert.True(t, errors.Is(err, apperrors.ErrMalformedInput))
}

func TestHashIsOrderIndependentAndContentSensitive(t *testing.T) {
	a, err := Build(sampleDocs(), BuildOptions{})
	require.NoError(t, err)

	reversed := sampleDocs()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	b, err := Build(reversed, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), b.Hash())

	raw, err := HashRaw(sampleDocs())
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), raw)

	changed := sampleDocs()
	changed[1].Terms = []string{"errer", "disk"}
	c, err := Build(changed, BuildOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), c.Hash())

	// Term order is part of the canonical listing.
	swapped := sampleDocs()
	swapped[1].Terms = []string{"disk", "error"}
	d, err := Build(swapped, BuildOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), d.Hash())
}

func TestVerifyHash(t *testing.T) {
	view, err := Build(sampleDocs(), BuildOptions{})
	require.NoError(t, err)

	require.NoError(t, view.VerifyHash(view.Hash().String()))

	other, err := Build(sampleDocs()[:2], BuildOptions{})
	require.NoError(t, err)
	err = view.VerifyHash(other.Hash().String())
	assert.True(t, errors.Is(err, apperrors.ErrHashMismatch))

	err = view.VerifyHash("not-hex")
	assert.True(t, errors.Is(err, apperrors.ErrMalformedInput))
}
