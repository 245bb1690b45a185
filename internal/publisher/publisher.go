// Package publisher emits audit events for completed and failed runs. Every
// run produces one run event, plus one event per failing query, keyed by
// corpus hash so all events of a corpus land on one partition in order.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/report"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/logger"
)

// Event types.
const (
	TypeRunCompleted  = "run.completed"
	TypeRunFailed     = "run.failed"
	TypeQueryMismatch = "query.mismatch"
)

// Event is the JSON payload of an audit message.
type Event struct {
	Type       string           `json:"type"`
	RunID      string           `json:"run_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Summary    *report.Summary  `json:"summary,omitempty"`
	Mismatch   *report.Mismatch `json:"mismatch,omitempty"`
	ErrorKind  string           `json:"error_kind,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// BatchWriter is satisfied by *kafka.Producer.
type BatchWriter interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	writer BatchWriter
	logger *slog.Logger
	now    func() time.Time
}

func New(writer BatchWriter) *Publisher {
	return &Publisher{
		writer: writer,
		logger: logger.WithComponent("publisher"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Completed publishes the outcome of a run that produced a verdict.
func (p *Publisher) Completed(ctx context.Context, summary report.Summary, mismatches []report.Mismatch) error {
	key := summary.CorpusHash.String()
	at := p.now()
	events := make([]kafka.Event, 0, 1+len(mismatches))
	events = append(events, kafka.Event{
		Key: key,
		Value: Event{
			Type:       TypeRunCompleted,
			RunID:      summary.RunID,
			OccurredAt: at,
			Summary:    &summary,
		},
	})
	for i := range mismatches {
		events = append(events, kafka.Event{
			Key: key,
			Value: Event{
				Type:       TypeQueryMismatch,
				RunID:      summary.RunID,
				OccurredAt: at,
				Mismatch:   &mismatches[i],
			},
		})
	}
	if err := p.writer.PublishBatch(ctx, events); err != nil {
		return fmt.Errorf("publishing run %s: %w", summary.RunID, err)
	}
	p.logger.Info("audit events published",
		"run_id", summary.RunID,
		"verdict", summary.Verdict,
		"events", len(events),
	)
	return nil
}

// Failed publishes a run that aborted with an error.
func (p *Publisher) Failed(ctx context.Context, runID string, runErr error) error {
	event := kafka.Event{
		Key: runID,
		Value: Event{
			Type:       TypeRunFailed,
			RunID:      runID,
			OccurredAt: p.now(),
			ErrorKind:  apperrors.Kind(runErr),
			Error:      runErr.Error(),
		},
	}
	if err := p.writer.PublishBatch(ctx, []kafka.Event{event}); err != nil {
		return fmt.Errorf("publishing failure of run %s: %w", runID, err)
	}
	return nil
}
