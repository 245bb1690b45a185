package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestInstancesDoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.RunsTotal.WithLabelValues("PASS").Inc()

	assert.Equal(t, 1.0, counterValue(t, a, "bm25equiv_runs_total"))
	assert.Equal(t, 0.0, counterValue(t, b, "bm25equiv_runs_total"))
}

func TestObserveStageNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveStage("score", time.Now()) })

	m = New()
	m.ObserveStage("score", time.Now())
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range families {
		if mf.GetName() == "bm25equiv_stage_duration_seconds" {
			samples += mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(1), samples)
}

func TestPush(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body = r.URL.Path, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.RunsTotal.WithLabelValues("PASS").Inc()
	require.NoError(t, m.Push(context.Background(), srv.URL, "bm25equiv", map[string]string{"run": "r1"}))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(path, "/metrics/job/bm25equiv"), path)
	assert.Contains(t, path, "/run/r1")
	assert.NotEmpty(t, body)
}

func TestCheckPushgateway(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/-/ready" || !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, CheckPushgateway(context.Background(), srv.URL+"/"))
	ready.Store(false)
	assert.Error(t, CheckPushgateway(context.Background(), srv.URL))
}
