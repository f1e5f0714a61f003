// Package history persists run summaries and per-test outcomes to Postgres.
// Recording history is best-effort from the bridge's point of view: a
// storage failure is logged, never fatal to the run.
package history

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

const maxConcurrentInserts = 8

type Store struct {
	log  log.Logger
	conn *pgxpool.Pool
}

func New(ctx context.Context, logger log.Logger, dsn string) (*Store, error) {
	conn, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to db")
	}
	return &Store{log: logger, conn: conn}, nil
}

func (s *Store) Close() {
	s.conn.Close()
}

// RecordRun inserts the run row, then the per-test outcome rows with bounded
// concurrency.
func (s *Store) RecordRun(ctx context.Context, summary types.Summary, outcomes []types.ResolvedOutcome) error {
	sql := `
INSERT INTO runs (id, dialect, requested, passed, failed, skipped, unresolved, exit_code, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT DO NOTHING
`
	if _, err := s.conn.Exec(ctx, sql,
		summary.RunID,
		string(summary.Dialect),
		summary.Requested,
		summary.Passed,
		summary.Failed,
		summary.Skipped,
		summary.Unresolved,
		summary.ExitCode,
		summary.Duration.Milliseconds(),
	); err != nil {
		return errors.Wrap(err, "failed to insert run")
	}

	insertPool := pool.New().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(maxConcurrentInserts).
		WithContext(ctx).
		WithCancelOnError()
	for _, outcome := range outcomes {
		outcome := outcome
		insertPool.Go(func(ctx context.Context) error {
			return s.insertOutcome(ctx, summary.RunID, outcome)
		})
	}
	if err := insertPool.Wait(); err != nil {
		return errors.Wrap(err, "failed to insert outcomes")
	}

	s.log.Debug("recorded run history", "run_id", summary.RunID, "outcomes", len(outcomes))
	return nil
}

func (s *Store) insertOutcome(ctx context.Context, runID string, outcome types.ResolvedOutcome) error {
	sql := `
INSERT INTO outcomes (run_id, suite, name, verdict, duration_ms, message)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := s.conn.Exec(ctx, sql,
		runID,
		outcome.Test.Suite,
		outcome.Test.Name,
		string(outcome.Verdict),
		outcome.Duration.Milliseconds(),
		outcome.Message,
	)
	return errors.Wrapf(err, "failed to insert outcome for %s", outcome.Test.Label)
}
