package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plotline/catalog-sync/internal/catalog"
)

// RunStore implements catalog.RunStore over the append-only worker_runs
// table.
type RunStore struct {
	pool querier
}

// NewRunStore creates a RunStore on the shared pool.
func NewRunStore(pool querier) *RunStore {
	return &RunStore{pool: pool}
}

// Record writes one invocation summary.
func (s *RunStore) Record(ctx context.Context, run catalog.WorkerRun) error {
	query := `
		INSERT INTO worker_runs (
			id, state_id, mode, started_at, finished_at, pages,
			processed, refreshed, enqueued, ok_count, error_count,
			results, error_text
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("marshal run results: %w", err)
	}
	_, err = s.pool.Exec(ctx, query,
		run.ID,
		run.StateID,
		run.Mode,
		run.StartedAt,
		run.FinishedAt,
		run.Pages,
		run.Processed,
		run.Refreshed,
		run.Enqueued,
		run.OKCount,
		run.ErrorCount,
		results,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert worker run %s: %w", run.ID, err)
	}
	return nil
}
