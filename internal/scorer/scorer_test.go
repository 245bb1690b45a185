package scorer

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/stats"
)

func build(t testing.TB, docs ...corpus.RawDocument) *corpus.View {
	t.Helper()
	view, err := corpus.Build(docs, corpus.BuildOptions{})
	require.NoError(t, err)
	return view
}

func scenarioDocs() []corpus.RawDocument {
	return []corpus.RawDocument{
		{ID: "d1", Terms: []string{"error", "disk"}},
		{ID: "d2", Terms: []string{"error", "network"}},
		{ID: "d3", Terms: []string{"disk", "disk", "disk"}},
	}
}

var scenarioQuery = corpus.Query{ID: "q1", Terms: []string{"error", "disk"}}

func TestScoreMatchesFormula(t *testing.T) {
	view := build(t, scenarioDocs()...)
	s, err := stats.Lock(view, 1.2, 0.75)
	require.NoError(t, err)

	ranking, err := Score(context.Background(), view, s, scenarioQuery, Options{})
	require.NoError(t, err)

	ids := make([]string, len(ranking.Entries))
	for i, e := range ranking.Entries {
		ids[i] = e.DocID
	}
	assert.Equal(t, []string{"d1", "d3", "d2"}, ids)

	k1, b := 1.2, 0.75
	total, n := 3.0, 2.0
	avgdl := 7.0 / total
	idf := math.Log(1 + (total-n+0.5)/(n+0.5))
	term := func(f, length float64) float64 {
		return idf * (f * (k1 + 1)) / (f + k1*(1-b+b*(length/avgdl)))
	}
	var want float64
	want += term(1, 2)
	want += term(1, 2)
	assert.Equal(t, want, ranking.Entries[0].Score)
	assert.InDelta(t, term(3, 3), ranking.Entries[1].Score, 1e-12)
	assert.InDelta(t, term(1, 2), ranking.Entries[2].Score, 1e-12)
}

func TestUnrelatedDocumentDoesNotChangeScenarioRanking(t *testing.T) {
	full := build(t, append(scenarioDocs(), corpus.RawDocument{ID: "d4", Terms: []string{"cat", "dog"}})...)
	reduced, err := full.Subset([]string{"d1", "d2", "d3"})
	require.NoError(t, err)

	locked, err := stats.Lock(full, 1.2, 0.75)
	require.NoError(t, err)

	ctx := context.Background()
	fullRanking, err := Score(ctx, full, locked, scenarioQuery, Options{})
	require.NoError(t, err)
	reducedRanking, err := Score(ctx, reduced, locked, scenarioQuery, Options{})
	require.NoError(t, err)

	assert.Equal(t, fullRanking.TopK(3), reducedRanking.TopK(3))
	assert.Equal(t, Entry{DocID: "d4", Score: 0}, fullRanking.Entries[3])
}

func TestTieBreakByIdentifier(t *testing.T) {
	view := build(t,
		corpus.RawDocument{ID: "b", Terms: []string{"disk", "full"}},
		corpus.RawDocument{ID: "a", Terms: []string{"disk", "full"}},
		corpus.RawDocument{ID: "c", Terms: []string{"disk", "full"}},
		corpus.RawDocument{ID: "z", Terms: []string{"cpu"}},
		corpus.RawDocument{ID: "y", Terms: []string{"ram"}},
	)
	s, err := stats.Lock(view, 1.2, 0.75)
	require.NoError(t, err)

	ranking, err := Score(context.Background(), view, s, corpus.Query{ID: "q", Terms: []string{"disk"}}, Options{})
	require.NoError(t, err)

	for i := 1; i < len(ranking.Entries); i++ {
		prev, cur := ranking.Entries[i-1], ranking.Entries[i]
		if prev.Score == cur.Score {
			assert.Less(t, prev.DocID, cur.DocID)
		}
	}
	assert.Equal(t, []Entry{
		{DocID: "a", Score: ranking.Entries[0].Score},
		{DocID: "b", Score: ranking.Entries[0].Score},
		{DocID: "c", Score: ranking.Entries[0].Score},
		{DocID: "y", Score: 0},
		{DocID: "z", Score: 0},
	}, ranking.Entries)
}

func TestExcludeZero(t *testing.T) {
	view := build(t, append(scenarioDocs(), corpus.RawDocument{ID: "d4", Terms: []string{"cat"}})...)
	s, err := stats.Lock(view, 1.2, 0.75)
	require.NoError(t, err)

	ranking, err := Score(context.Background(), view, s, scenarioQuery, Options{ExcludeZero: true})
	require.NoError(t, err)
	assert.Len(t, ranking.Entries, 3)
	_, found := ranking.Lookup("d4")
	assert.False(t, found)
}

func TestRepeatedQueryTermsAccumulate(t *testing.T) {
	view := build(t, scenarioDocs()...)
	s, err := stats.Lock(view, 1.2, 0.75)
	require.NoError(t, err)
	doc, err := view.Document("d2")
	require.NoError(t, err)

	once := ScoreDocument(doc, s, []string{"network"})
	twice := ScoreDocument(doc, s, []string{"network", "network"})
	assert.Equal(t, once+once, twice)
}

func TestZeroAverageLength(t *testing.T) {
	empty, err := corpus.Build([]corpus.RawDocument{{ID: "e"}}, corpus.BuildOptions{AllowEmpty: true})
	require.NoError(t, err)
	s, err := stats.Lock(empty, 1.2, 0.75)
	require.NoError(t, err)

	view := build(t, corpus.RawDocument{ID: "x", Terms: []string{"disk"}})
	ranking, err := Score(context.Background(), view, s, corpus.Query{ID: "q", Terms: []string{"disk"}}, Options{})
	require.NoError(t, err)
	require.Len(t, ranking.Entries, 1)
	assert.False(t, math.IsNaN(ranking.Entries[0].Score))
	assert.Greater(t, ranking.Entries[0].Score, 0.0)
}

func syntheticView(t testing.TB, n int) *corpus.View {
	vocab := []string{"error", "disk", "network", "timeout", "kernel", "panic", "retry", "cache"}
	docs := make([]corpus.RawDocument, n)
	for i := range docs {
		terms := make([]string, 0, 6)
		for j := 0; j < 1+i%6; j++ {
			terms = append(terms, vocab[(i*7+j*3)%len(vocab)])
		}
		docs[i] = corpus.RawDocument{ID: fmt.Sprintf("doc-%05d", i), Terms: terms}
	}
	return build(t, docs...)
}

func TestParallelScoringIsIdentical(t *testing.T) {
	view := syntheticView(t, 3000)
	s, err := stats.Lock(view, 1.2, 0.75)
	require.NoError(t, err)
	query := corpus.Query{ID: "q", Terms: []string{"error", "kernel", "error"}}
	ctx := context.Background()

	sequential, err := Score(ctx, view, s, query, Options{Workers: 1})
	require.NoError(t, err)
	want, err := sequential.Digest()
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 8, 16} {
		parallel, err := Score(ctx, view, s, query, Options{Workers: workers})
		require.NoError(t, err)
		got, err := parallel.Digest()
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestScoreAllKeepsQueryOrder(t *testing.T) {
	view := syntheticView(t, 500)
	s, err := stats.Lock(view, 1.2, 0.75)
	require.NoError(t, err)
	queries := []corpus.Query{
		{ID: "q1", Terms: []string{"disk"}},
		{ID: "q2", Terms: []string{"panic", "retry"}},
		{ID: "q3", Terms: []string{"cache"}},
	}

	rankings, err := ScoreAll(context.Background(), view, s, queries, Options{Workers: 3})
	require.NoError(t, err)
	require.Len(t, rankings, 3)
	for i, q := range queries {
		assert.Equal(t, q.ID, rankings[i].QueryID)
		single, err := Score(context.Background(), view, s, q, Options{})
		require.NoError(t, err)
		assert.Equal(t, single.Entries, rankings[i].Entries)
	}
}

func TestTopK(t *testing.T) {
	r := &Ranking{Entries: []Entry{{DocID: "a", Score: 2}, {DocID: "b", Score: 1}}}
	assert.Len(t, r.TopK(1), 1)
	assert.Len(t, r.TopK(5), 2)
	assert.Len(t, r.TopK(-1), 2)
}

func TestNilInputs(t *testing.T) {
	view := build(t, scenarioDocs()...)
	_, err := Score(context.Background(), view, nil, scenarioQuery, Options{})
	assert.Error(t, err)
	_, err = Score(context.Background(), nil, nil, scenarioQuery, Options{})
	assert.Error(t, err)
}
