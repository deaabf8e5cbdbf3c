package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/plotline/catalog-sync/internal/catalog"
)

// ArtJobStore implements catalog.ArtJobStore over the art_jobs table.
type ArtJobStore struct {
	pool querier
}

// NewArtJobStore creates an ArtJobStore on the shared pool.
func NewArtJobStore(pool querier) *ArtJobStore {
	return &ArtJobStore{pool: pool}
}

// Enqueue inserts or refreshes the pending job for the manga. The conflict
// target is the unique manga_id key, so re-enqueue is a state refresh rather
// than a duplicate.
func (s *ArtJobStore) Enqueue(ctx context.Context, mangaID int64, at time.Time) error {
	query := `
		INSERT INTO art_jobs (manga_id, status, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (manga_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at;
	`
	if _, err := s.pool.Exec(ctx, query, mangaID, catalog.ArtJobPending, at); err != nil {
		return fmt.Errorf("enqueue art job for manga %d: %w", mangaID, err)
	}
	return nil
}
