package postgres

import (
	"context"
	"fmt"

	"github.com/plotline/catalog-sync/internal/catalog"
)

// DeltaStore implements catalog.DeltaStore over the append-only delta_log
// table. Rows are never updated or deleted.
type DeltaStore struct {
	pool querier
}

// NewDeltaStore creates a DeltaStore on the shared pool.
func NewDeltaStore(pool querier) *DeltaStore {
	return &DeltaStore{pool: pool}
}

// Append writes one change record.
func (s *DeltaStore) Append(ctx context.Context, entry catalog.DeltaEntry) error {
	query := `
		INSERT INTO delta_log (
			state_id, external_id, manga_id, external_updated_at, action,
			changed_fields, before_snapshot, after_snapshot, logged_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	var before []byte
	if len(entry.Before) > 0 {
		before = []byte(entry.Before)
	}
	_, err := s.pool.Exec(ctx, query,
		entry.StateID,
		entry.ExternalID,
		entry.MangaID,
		entry.ExternalUpdatedAt,
		entry.Action,
		entry.ChangedFields,
		before,
		[]byte(entry.After),
		entry.LoggedAt,
	)
	if err != nil {
		return fmt.Errorf("append delta for %s: %w", entry.ExternalID, err)
	}
	return nil
}
