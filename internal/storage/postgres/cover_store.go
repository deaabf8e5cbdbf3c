package postgres

import (
	"context"
	"fmt"

	"github.com/plotline/catalog-sync/internal/catalog"
)

// CoverStore implements catalog.CoverStore over the cover_assets table.
type CoverStore struct {
	pool querier
}

// NewCoverStore creates a CoverStore on the shared pool.
func NewCoverStore(pool querier) *CoverStore {
	return &CoverStore{pool: pool}
}

// ExistingExternalIDs reports which external cover ids are already cached,
// in a single batched lookup.
func (s *CoverStore) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT external_id FROM cover_assets WHERE external_id = ANY($1);`
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup cover ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cover id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cover ids: %w", err)
	}
	return out, nil
}

// Create records one cached cover. A duplicate external id is a no-op, so
// repeated catch-up runs never error here.
func (s *CoverStore) Create(ctx context.Context, asset catalog.CoverAsset) error {
	query := `
		INSERT INTO cover_assets (
			external_id, manga_id, volume, locale, source_url, cached_url, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, query,
		asset.ExternalID,
		asset.MangaID,
		asset.Volume,
		asset.Locale,
		asset.SourceURL,
		asset.CachedURL,
		asset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cover asset %s: %w", asset.ExternalID, err)
	}
	return nil
}
