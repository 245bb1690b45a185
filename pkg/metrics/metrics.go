// Package metrics defines the Prometheus collectors recorded during an
// equivalence run and pushes them to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all collectors for one run. Each instance owns its registry
// so runs inside one process do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	QueriesTotal       *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	CorpusDocuments    *prometheus.GaugeVec
	ProtectedDocuments prometheus.Gauge
	RetainedRatio      prometheus.Gauge
	StatsCacheTotal    *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bm25equiv_runs_total",
				Help: "Equivalence runs by verdict (PASS, FAIL, or the error kind).",
			},
			[]string{"verdict"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bm25equiv_queries_total",
				Help: "Verified queries by outcome (match, mismatch).",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bm25equiv_stage_duration_seconds",
				Help:    "Wall time per pipeline stage in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		CorpusDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bm25equiv_corpus_documents",
				Help: "Document count per corpus view (full, reduced).",
			},
			[]string{"view"},
		),
		ProtectedDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bm25equiv_protected_documents",
				Help: "Size of the protected set.",
			},
		),
		RetainedRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bm25equiv_retained_ratio",
				Help: "Reduced document count divided by full document count.",
			},
		),
		StatsCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bm25equiv_stats_cache_total",
				Help: "Statistics lock requests by result (replayed, computed).",
			},
			[]string{"result"},
		),
	}

	m.Registry.MustRegister(
		m.RunsTotal,
		m.QueriesTotal,
		m.StageDuration,
		m.CorpusDocuments,
		m.ProtectedDocuments,
		m.RetainedRatio,
		m.StatsCacheTotal,
	)
	return m
}

// ObserveStage records how long a stage took since start. Safe on a nil
// receiver so callers without metrics need no branches.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Push sends the registry to a Pushgateway under job, replacing the
// previous push for the same grouping.
func (m *Metrics) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	pusher := push.New(url, job).Gatherer(m.Registry)
	for k, v := range grouping {
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}

// CheckPushgateway asks the Pushgateway readiness endpoint whether it can
// accept pushes.
func CheckPushgateway(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(url, "/")+"/-/ready", nil)
	if err != nil {
		return fmt.Errorf("building readiness request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("probing pushgateway %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushgateway %s not ready: %s", url, resp.Status)
	}
	return nil
}
