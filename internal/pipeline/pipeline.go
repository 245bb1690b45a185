// Package pipeline runs one equivalence experiment end to end: verify the
// corpus hash, reduce, lock statistics, score both views, and compare.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/reducer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/scorer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/metrics"
)

// Stage names attached to errors and stage-duration metrics.
const (
	StageBuild        = "build"
	StageReduce       = "reduce"
	StageLock         = "lock"
	StageScoreFull    = "score-full"
	StageScoreReduced = "score-reduced"
	StageVerify       = "verify"
)

// Input is everything a run depends on. Two runs with equal Inputs produce
// equal manifests and reports.
type Input struct {
	Documents          []corpus.RawDocument
	AllowEmpty         bool
	ExpectedCorpusHash string

	Queries []corpus.Query

	K1   float64
	B    float64
	TopK int

	StatsMode stats.Mode
	// Tolerance is only consulted in recomputed mode, where it must be > 0.
	Tolerance   float64
	ExcludeZero bool

	Strategy             reducer.Strategy
	ZeroScoreFill        bool
	ExpectedManifestHash string

	ReduceWorkers int
	ScoreWorkers  int
}

// Result carries every artifact of a completed run.
type Result struct {
	Manifest        *reducer.Manifest
	FullView        *corpus.View
	ReducedView     *corpus.View
	FullStats       *stats.Statistics
	ReducedStats    *stats.Statistics
	StatsReplayed   bool
	FullRankings    []*scorer.Ranking
	ReducedRankings []*scorer.Ranking
	Report          *verifier.Report
	ReportDigest    digest.Digest
}

// Locked reports whether both runs shared one statistics value.
func (r *Result) Locked() bool {
	return r.FullStats == r.ReducedStats
}

// Pipeline holds the optional collaborators of a run. The zero value runs
// without a statistics cache or metrics.
type Pipeline struct {
	cache   *stats.Cache
	metrics *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStatsCache replays locked statistics from cache when available.
func WithStatsCache(c *stats.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes a run with no optional collaborators.
func Run(ctx context.Context, in Input) (*Result, error) {
	return New().Run(ctx, in)
}

// Run executes the experiment. Any error aborts the run and names the stage
// it came from; nothing is retried.
func (p *Pipeline) Run(ctx context.Context, in Input) (res *Result, err error) {
	log := logger.FromContext(ctx).With("component", "pipeline")
	defer func() {
		if p.metrics == nil {
			return
		}
		switch {
		case err != nil:
			p.metrics.RunsTotal.WithLabelValues(apperrors.Kind(err)).Inc()
		default:
			p.metrics.RunsTotal.WithLabelValues(string(res.Report.Verdict)).Inc()
		}
	}()

	if in.TopK <= 0 {
		return nil, apperrors.WithStage(StageBuild, apperrors.Newf(apperrors.ErrMalformedInput, "topK must be positive, got %d", in.TopK))
	}
	cmp, err := comparisonFor(in)
	if err != nil {
		return nil, apperrors.WithStage(StageVerify, err)
	}

	// The corpus hash is checked before anything else touches the data.
	start := time.Now()
	full, err := corpus.Build(in.Documents, corpus.BuildOptions{AllowEmpty: in.AllowEmpty})
	if err != nil {
		return nil, apperrors.WithStage(StageBuild, err)
	}
	if in.ExpectedCorpusHash != "" {
		if err := full.VerifyHash(in.ExpectedCorpusHash); err != nil {
			return nil, apperrors.WithStage(StageBuild, err)
		}
	}
	if err := corpus.ValidateQueries(in.Queries); err != nil {
		return nil, apperrors.WithStage(StageBuild, err)
	}
	p.metrics.ObserveStage(StageBuild, start)
	log.Info("corpus built",
		"documents", full.DocCount(),
		"total_length", full.TotalLength(),
		"corpus_hash", full.Hash().String(),
		"queries", len(in.Queries),
	)

	start = time.Now()
	manifest, err := reducer.Reduce(ctx, full, in.Queries, reducer.Params{
		Strategy:      in.Strategy,
		TopK:          in.TopK,
		ZeroScoreFill: in.ZeroScoreFill && !in.ExcludeZero,
		Workers:       in.ReduceWorkers,
	})
	if err != nil {
		return nil, apperrors.WithStage(StageReduce, err)
	}
	if in.ExpectedManifestHash != "" {
		if err := manifest.VerifyHash(in.ExpectedManifestHash); err != nil {
			return nil, apperrors.WithStage(StageReduce, err)
		}
	}
	reduced, err := reducer.Apply(full, manifest)
	if err != nil {
		return nil, apperrors.WithStage(StageReduce, err)
	}
	p.metrics.ObserveStage(StageReduce, start)
	if !manifest.StrictSubset {
		log.Warn("reduction removed no documents; reduced view equals full view",
			"strategy", in.Strategy,
		)
	}

	start = time.Now()
	fullStats, reducedStats, replayed, err := p.lock(ctx, in, full, reduced)
	if err != nil {
		return nil, apperrors.WithStage(StageLock, err)
	}
	p.metrics.ObserveStage(StageLock, start)
	log.Info("statistics locked",
		"mode", in.StatsMode,
		"replayed", replayed,
		"avgdl", fullStats.AvgDocLength(),
		"fingerprint", fullStats.Fingerprint().String(),
	)

	opts := scorer.Options{ExcludeZero: in.ExcludeZero, Workers: in.ScoreWorkers}
	start = time.Now()
	fullRankings, err := scorer.ScoreAll(ctx, full, fullStats, in.Queries, opts)
	if err != nil {
		return nil, apperrors.WithStage(StageScoreFull, err)
	}
	p.metrics.ObserveStage(StageScoreFull, start)

	start = time.Now()
	reducedRankings, err := scorer.ScoreAll(ctx, reduced, reducedStats, in.Queries, opts)
	if err != nil {
		return nil, apperrors.WithStage(StageScoreReduced, err)
	}
	p.metrics.ObserveStage(StageScoreReduced, start)

	start = time.Now()
	report, err := verifier.VerifyBatch(fullRankings, reducedRankings, in.TopK, cmp)
	if err != nil {
		return nil, apperrors.WithStage(StageVerify, err)
	}
	reportDigest, err := report.Digest()
	if err != nil {
		return nil, apperrors.WithStage(StageVerify, err)
	}
	p.metrics.ObserveStage(StageVerify, start)

	p.recordOutcome(full, reduced, manifest, report)
	log.Info("equivalence verified",
		"verdict", report.Verdict,
		"failing", len(report.Failing),
		"full_docs", full.DocCount(),
		"reduced_docs", reduced.DocCount(),
		"manifest_hash", manifest.ManifestHash.String(),
		"report_digest", reportDigest.String(),
	)

	return &Result{
		Manifest:        manifest,
		FullView:        full,
		ReducedView:     reduced,
		FullStats:       fullStats,
		ReducedStats:    reducedStats,
		StatsReplayed:   replayed,
		FullRankings:    fullRankings,
		ReducedRankings: reducedRankings,
		Report:          report,
		ReportDigest:    reportDigest,
	}, nil
}

func comparisonFor(in Input) (verifier.Comparison, error) {
	switch in.StatsMode {
	case stats.ModeLocked, "":
		if in.Tolerance != 0 {
			slog.Warn("tolerance ignored with locked statistics; scores are compared exactly",
				"tolerance", in.Tolerance,
			)
		}
		return verifier.Exact, nil
	case stats.ModeRecomputed:
		cmp := verifier.WithTolerance(in.Tolerance)
		return cmp, cmp.Validate()
	default:
		return verifier.Comparison{}, apperrors.Newf(apperrors.ErrMalformedInput, "unknown statistics mode %q", in.StatsMode)
	}
}

// lock returns the statistics for the full and reduced runs. In locked mode
// both are the same value computed over the full view.
func (p *Pipeline) lock(ctx context.Context, in Input, full, reduced *corpus.View) (*stats.Statistics, *stats.Statistics, bool, error) {
	fullStats, replayed, err := p.lockView(ctx, full, in.K1, in.B)
	if err != nil {
		return nil, nil, false, err
	}
	if in.StatsMode == stats.ModeRecomputed {
		reducedStats, _, err := p.lockView(ctx, reduced, in.K1, in.B)
		if err != nil {
			return nil, nil, false, err
		}
		return fullStats, reducedStats, replayed, nil
	}
	return fullStats, fullStats, replayed, nil
}

func (p *Pipeline) lockView(ctx context.Context, view *corpus.View, k1, b float64) (*stats.Statistics, bool, error) {
	if p.cache == nil {
		s, err := stats.Lock(view, k1, b)
		return s, false, err
	}
	s, replayed, err := p.cache.Lock(ctx, view, k1, b)
	if err == nil && p.metrics != nil {
		result := "computed"
		if replayed {
			result = "replayed"
		}
		p.metrics.StatsCacheTotal.WithLabelValues(result).Inc()
	}
	return s, replayed, err
}

func (p *Pipeline) recordOutcome(full, reduced *corpus.View, m *reducer.Manifest, report *verifier.Report) {
	if p.metrics == nil {
		return
	}
	p.metrics.CorpusDocuments.WithLabelValues("full").Set(float64(full.DocCount()))
	p.metrics.CorpusDocuments.WithLabelValues("reduced").Set(float64(reduced.DocCount()))
	p.metrics.ProtectedDocuments.Set(float64(m.ProtectedCount))
	if full.DocCount() > 0 {
		p.metrics.RetainedRatio.Set(float64(reduced.DocCount()) / float64(full.DocCount()))
	}
	for _, q := range report.Queries {
		outcome := "match"
		if !q.Match {
			outcome = "mismatch"
		}
		p.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	}
}
