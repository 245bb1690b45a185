package scorer

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/stats"
)

// BenchmarkScore measures full-view BM25 scoring at various worker counts.
func BenchmarkScore(b *testing.B) {
	view := syntheticView(b, 20000)
	s, err := stats.Lock(view, 1.2, 0.75)
	if err != nil {
		b.Fatal(err)
	}
	query := corpus.Query{ID: "q", Terms: []string{"error", "disk", "timeout"}}
	for _, workers := range []int{1, 4, 8} {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Score(context.Background(), view, s, query, Options{Workers: workers}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
