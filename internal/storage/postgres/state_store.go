package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/plotline/catalog-sync/internal/catalog"
)

// StateStore implements catalog.StateStore over the crawl_states table.
type StateStore struct {
	pool querier
}

// NewStateStore creates a StateStore on the shared pool.
func NewStateStore(pool querier) *StateStore {
	return &StateStore{pool: pool}
}

// GetState loads one crawl state row.
func (s *StateStore) GetState(ctx context.Context, id string) (catalog.CrawlState, error) {
	query := `
		SELECT id, mode, cursor_offset, cursor_updated_at, cursor_last_id,
		       page_limit, total, processed_count, version, updated_at
		FROM crawl_states
		WHERE id = $1;
	`
	var (
		state catalog.CrawlState
		since *time.Time
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&state.ID,
		&state.Mode,
		&state.Offset,
		&since,
		&state.LastExternalID,
		&state.PageLimit,
		&state.Total,
		&state.Processed,
		&state.Version,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.CrawlState{}, catalog.ErrNotFound
		}
		return catalog.CrawlState{}, fmt.Errorf("get crawl state %s: %w", id, err)
	}
	if since != nil {
		state.UpdatedSince = *since
	}
	return state, nil
}

// SaveState writes the row conditionally on the loaded version. Zero rows
// affected means a concurrent invocation advanced the cursor first.
func (s *StateStore) SaveState(ctx context.Context, state catalog.CrawlState) (catalog.CrawlState, error) {
	query := `
		UPDATE crawl_states
		SET mode = $2, cursor_offset = $3, cursor_updated_at = $4,
		    cursor_last_id = $5, page_limit = $6, total = $7,
		    processed_count = $8, version = version + 1, updated_at = $9
		WHERE id = $1 AND version = $10;
	`
	var since *time.Time
	if !state.UpdatedSince.IsZero() {
		since = &state.UpdatedSince
	}
	tag, err := s.pool.Exec(ctx, query,
		state.ID,
		state.Mode,
		state.Offset,
		since,
		state.LastExternalID,
		state.PageLimit,
		state.Total,
		state.Processed,
		state.UpdatedAt,
		state.Version,
	)
	if err != nil {
		return catalog.CrawlState{}, fmt.Errorf("save crawl state %s: %w", state.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.CrawlState{}, catalog.ErrStateConflict
	}
	state.Version++
	return state, nil
}
