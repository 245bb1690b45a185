package reducer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

func doc(id, text string) corpus.RawDocument {
	return corpus.RawDocument{ID: id, Terms: strings.Fields(text)}
}

func query(id, text string) corpus.Query {
	return corpus.Query{ID: id, Terms: strings.Fields(text)}
}

func build(t testing.TB, docs ...corpus.RawDocument) *corpus.View {
	t.Helper()
	v, err := corpus.Build(docs, corpus.BuildOptions{})
	require.NoError(t, err)
	return v
}

func scenario(t testing.TB) *corpus.View {
	return build(t,
		doc("d1", "error disk"),
		doc("d2", "error network"),
		doc("d3", "disk disk disk"),
		doc("d4", "cat dog"),
		doc("d5", "cat dog"),
		doc("d6", "dog cat"),
	)
}

func TestProtectedOnlyDropsUnrelatedDocuments(t *testing.T) {
	full := scenario(t)
	m, err := Reduce(context.Background(), full, []corpus.Query{query("q1", "error disk")}, Params{
		Strategy: StrategyProtectedOnly,
		TopK:     3,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"d1", "d2", "d3"}, m.Retained)
	assert.Equal(t, 3, m.ProtectedCount)
	assert.Equal(t, 6, m.FullCount)
	assert.True(t, m.StrictSubset)
	assert.Equal(t, full.Hash(), m.FullCorpusHash)
}

func TestDedupExactCollapsesIdenticalListings(t *testing.T) {
	m, err := Reduce(context.Background(), scenario(t), []corpus.Query{query("q1", "error disk")}, Params{
		Strategy: StrategyDedupExact,
		TopK:     3,
	})
	require.NoError(t, err)

	// d6 has the same terms as d4 in a different order, so it is kept.
	assert.Equal(t, []string{"d1", "d2", "d3", "d4", "d6"}, m.Retained)
	assert.Equal(t, []Representative{{DocID: "d4", Collapsed: 1}}, m.Representatives)
}

func TestDedupTermSetIgnoresOrderAndRepeats(t *testing.T) {
	full := build(t,
		doc("a", "x y"),
		doc("b", "y x"),
		doc("c", "x x y"),
		doc("d", "q"),
	)
	m, err := Reduce(context.Background(), full, []corpus.Query{query("q1", "q")}, Params{
		Strategy: StrategyDedupTermSet,
		TopK:     1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "d"}, m.Retained)
	assert.Equal(t, []Representative{{DocID: "a", Collapsed: 2}}, m.Representatives)
}

func TestProtectedDuplicatesAreAllKept(t *testing.T) {
	full := build(t,
		doc("a", "disk full"),
		doc("b", "disk full"),
		doc("c", "disk full"),
	)
	m, err := Reduce(context.Background(), full, []corpus.Query{query("q1", "disk")}, Params{
		Strategy: StrategyDedupExact,
		TopK:     1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, m.Retained)
	assert.Empty(t, m.Representatives)
	assert.False(t, m.StrictSubset)
}

func TestZeroScoreFill(t *testing.T) {
	full := scenario(t)
	queries := []corpus.Query{query("q1", "error disk")}

	m, err := Reduce(context.Background(), full, queries, Params{
		Strategy:      StrategyProtectedOnly,
		TopK:          5,
		ZeroScoreFill: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3", "d4", "d5"}, m.Retained)

	m, err = Reduce(context.Background(), full, queries, Params{
		Strategy:      StrategyProtectedOnly,
		TopK:          2,
		ZeroScoreFill: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3"}, m.Retained, "no fill when candidates already cover topK")
}

func TestZeroScoreFillSkipsCandidates(t *testing.T) {
	allIDs := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, []string{"a", "c"}, zeroScoreFill(allIDs, []string{"b", "d"}, 4))
	assert.Equal(t, []string{"a", "c", "e"}, zeroScoreFill(allIDs, []string{"b", "d"}, 10))
	assert.Nil(t, zeroScoreFill(allIDs, []string{"b", "d"}, 2))
}

func TestEveryOverlappingDocumentIsRetained(t *testing.T) {
	full := syntheticCorpus(t, 400)
	queries := []corpus.Query{
		query("q1", "t3 t7"),
		query("q2", "t11"),
		query("q3", "missing"),
	}
	for _, strategy := range []Strategy{StrategyProtectedOnly, StrategyDedupExact, StrategyDedupTermSet} {
		t.Run(string(strategy), func(t *testing.T) {
			m, err := Reduce(context.Background(), full, queries, Params{Strategy: strategy, TopK: 10, ZeroScoreFill: true})
			require.NoError(t, err)

			retained := make(map[string]bool, len(m.Retained))
			for _, id := range m.Retained {
				retained[id] = true
			}
			for _, q := range queries {
				for _, term := range q.Terms {
					for _, p := range full.Postings(term) {
						assert.True(t, retained[p.DocID], "query %s lost %s", q.ID, p.DocID)
					}
				}
			}
		})
	}
}

func syntheticCorpus(t testing.TB, n int) *corpus.View {
	t.Helper()
	docs := make([]corpus.RawDocument, n)
	for i := range n {
		// Many documents share content so dedup has groups to collapse.
		docs[i] = doc(fmt.Sprintf("doc-%04d", i), fmt.Sprintf("t%d t%d common", i%17, i%5))
	}
	return build(t, docs...)
}

func TestReduceIsDeterministicAcrossWorkers(t *testing.T) {
	full := syntheticCorpus(t, 1000)
	queries := []corpus.Query{query("q1", "t3"), query("q2", "t4 t16")}

	var first *Manifest
	for _, workers := range []int{1, 2, 3, 8, 32} {
		m, err := Reduce(context.Background(), full, queries, Params{
			Strategy: StrategyDedupExact,
			TopK:     20,
			Workers:  workers,
		})
		require.NoError(t, err)
		if first == nil {
			first = m
			continue
		}
		assert.Equal(t, first.ManifestHash, m.ManifestHash, "workers=%d", workers)
		assert.Equal(t, first.Retained, m.Retained)
		assert.Equal(t, first.Representatives, m.Representatives)
	}
}

func TestReduceIsIdempotent(t *testing.T) {
	full := syntheticCorpus(t, 500)
	queries := []corpus.Query{query("q1", "t3"), query("q2", "t9")}
	for _, strategy := range []Strategy{StrategyNone, StrategyProtectedOnly, StrategyDedupExact, StrategyDedupTermSet} {
		t.Run(string(strategy), func(t *testing.T) {
			params := Params{Strategy: strategy, TopK: 15, ZeroScoreFill: true}
			first, err := Reduce(context.Background(), full, queries, params)
			require.NoError(t, err)

			reduced, err := Apply(full, first)
			require.NoError(t, err)

			second, err := Reduce(context.Background(), reduced, queries, params)
			require.NoError(t, err)
			assert.Equal(t, first.Retained, second.Retained)
			assert.False(t, second.StrictSubset)
		})
	}
}

func TestReduceFailsWithoutIndex(t *testing.T) {
	_, err := Reduce(context.Background(), nil, []corpus.Query{query("q1", "x")}, Params{Strategy: StrategyNone})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrReduction))
}

func TestReduceRejectsBadInput(t *testing.T) {
	full := scenario(t)
	_, err := Reduce(context.Background(), full, []corpus.Query{query("q1", "x")}, Params{Strategy: "simhash"})
	assert.True(t, errors.Is(err, apperrors.ErrMalformedInput))

	_, err = Reduce(context.Background(), full, []corpus.Query{query("q1", "x")}, Params{Strategy: StrategyNone, ZeroScoreFill: true})
	assert.True(t, errors.Is(err, apperrors.ErrMalformedInput))

	_, err = Reduce(context.Background(), full, []corpus.Query{{ID: "q1"}}, Params{Strategy: StrategyNone})
	assert.True(t, errors.Is(err, apperrors.ErrMalformedInput))
}

func TestManifestVerify(t *testing.T) {
	full := scenario(t)
	m, err := Reduce(context.Background(), full, []corpus.Query{query("q1", "error disk")}, Params{
		Strategy: StrategyDedupExact,
		TopK:     3,
	})
	require.NoError(t, err)
	require.NoError(t, m.Verify())
	require.NoError(t, m.VerifyHash(m.ManifestHash.String()))

	data, err := m.Encode()
	require.NoError(t, err)
	decoded, err := DecodeManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m.ManifestHash, decoded.ManifestHash)

	tampered := *m
	tampered.Retained = []string{"d1", "d2", "d3"}
	assert.True(t, errors.Is(tampered.Verify(), apperrors.ErrHashMismatch))

	other := build(t, doc("z", "zzz"))
	_, err = Apply(other, m)
	assert.True(t, errors.Is(err, apperrors.ErrHashMismatch))
}

func TestManifestDependsOnQueries(t *testing.T) {
	full := scenario(t)
	params := Params{Strategy: StrategyNone, TopK: 3}
	a, err := Reduce(context.Background(), full, []corpus.Query{query("q1", "error")}, params)
	require.NoError(t, err)
	b, err := Reduce(context.Background(), full, []corpus.Query{query("q1", "disk")}, params)
	require.NoError(t, err)

	assert.Equal(t, a.Retained, b.Retained)
	assert.NotEqual(t, a.ManifestHash, b.ManifestHash)
}
