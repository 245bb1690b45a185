// Package manifeststore records reduction manifests and run verdicts in
// PostgreSQL so an auditor can later replay a run and compare its hashes
// with what was recorded.
package manifeststore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/reducer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/report"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS reduction_manifests (
    manifest_hash  TEXT PRIMARY KEY,
    corpus_hash    TEXT NOT NULL,
    query_set_hash TEXT NOT NULL,
    algorithm      TEXT NOT NULL,
    strategy       TEXT NOT NULL,
    retained_count INTEGER NOT NULL,
    body           BYTEA NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS reduction_manifests_corpus_idx
    ON reduction_manifests (corpus_hash, query_set_hash);
CREATE TABLE IF NOT EXISTS equivalence_runs (
    run_id        TEXT PRIMARY KEY,
    manifest_hash TEXT NOT NULL REFERENCES reduction_manifests (manifest_hash),
    verdict       TEXT NOT NULL,
    report_digest TEXT NOT NULL,
    summary       JSONB NOT NULL,
    recorded_at   TIMESTAMPTZ NOT NULL
);
`

// Store persists manifests and run summaries.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("manifest-store"),
	}
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating manifest store schema: %w", err)
	}
	return nil
}

// Record stores the manifest (once per hash) and the run summary in one
// transaction.
func (s *Store) Record(ctx context.Context, m *reducer.Manifest, summary report.Summary) error {
	body, err := m.Encode()
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reduction_manifests
			    (manifest_hash, corpus_hash, query_set_hash, algorithm, strategy, retained_count, body)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (manifest_hash) DO NOTHING`,
			m.ManifestHash.String(), m.FullCorpusHash.String(), m.QuerySetHash.String(),
			m.Algorithm, string(m.Params.Strategy), len(m.Retained), body,
		); err != nil {
			return fmt.Errorf("inserting manifest: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO equivalence_runs (run_id, manifest_hash, verdict, report_digest, summary, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			summary.RunID, m.ManifestHash.String(), string(summary.Verdict),
			summary.ReportDigest.String(), summaryJSON, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("run recorded",
		"run_id", summary.RunID,
		"manifest_hash", m.ManifestHash.String(),
		"verdict", summary.Verdict,
	)
	return nil
}

// Manifest loads a stored manifest by hash and verifies it. Returns nil, nil
// when no manifest with that hash exists.
func (s *Store) Manifest(ctx context.Context, hash string) (*reducer.Manifest, error) {
	var body []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT body FROM reduction_manifests WHERE manifest_hash = $1`, hash,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying manifest: %w", err)
	}
	m, err := reducer.DecodeManifest(body)
	if err != nil {
		return nil, err
	}
	if m.ManifestHash.String() != hash {
		return nil, apperrors.Newf(apperrors.ErrHashMismatch, "stored manifest under %s hashes to %s", hash, m.ManifestHash)
	}
	return m, nil
}

// PreviousManifestHashes returns the distinct manifest hashes recorded for a
// corpus and query set, newest first. A reproducible reduction yields at most
// one per algorithm and parameter set.
func (s *Store) PreviousManifestHashes(ctx context.Context, corpusHash, querySetHash string) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT manifest_hash FROM reduction_manifests
		WHERE corpus_hash = $1 AND query_set_hash = $2
		ORDER BY created_at DESC`,
		corpusHash, querySetHash,
	)
	if err != nil {
		return nil, fmt.Errorf("listing manifests: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning manifest row: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// Runs returns the summaries recorded for a manifest, newest first.
func (s *Store) Runs(ctx context.Context, manifestHash string, limit int) ([]report.Summary, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT summary FROM equivalence_runs WHERE manifest_hash = $1
		ORDER BY recorded_at DESC LIMIT $2`,
		manifestHash, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []report.Summary
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		var summary report.Summary
		if err := json.Unmarshal(data, &summary); err != nil {
			s.logger.Warn("skipping corrupt run summary", "error", err)
			continue
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}
