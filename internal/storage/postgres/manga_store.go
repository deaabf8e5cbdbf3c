package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/plotline/catalog-sync/internal/catalog"
)

// MangaStore implements catalog.MangaStore over the manga table. The unique
// (source, source_id) index is the external-id link: one external identifier
// can never map to two canonical ids.
type MangaStore struct {
	pool querier
}

// NewMangaStore creates a MangaStore on the shared pool.
func NewMangaStore(pool querier) *MangaStore {
	return &MangaStore{pool: pool}
}

// Upsert inserts or updates the canonical row by (source, source_id) and
// returns the canonical id. The slug is fixed at first sighting; every other
// derived field is recomputed, so identical input is a no-op.
func (s *MangaStore) Upsert(ctx context.Context, m catalog.UpstreamManga) (int64, error) {
	if m.ExternalID == "" {
		return 0, fmt.Errorf("external id is required")
	}
	query := `
		INSERT INTO manga (
			slug, title, alt_titles, description, status, year, genres,
			cover_url, source, source_id, source_updated_at, source_payload,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now()
		)
		ON CONFLICT (source, source_id) DO UPDATE SET
			title = EXCLUDED.title,
			alt_titles = EXCLUDED.alt_titles,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			year = EXCLUDED.year,
			genres = EXCLUDED.genres,
			cover_url = EXCLUDED.cover_url,
			source_updated_at = EXCLUDED.source_updated_at,
			source_payload = EXCLUDED.source_payload,
			updated_at = now()
		RETURNING id;
	`
	coverURL := ""
	if len(m.CoverCandidates) > 0 {
		coverURL = m.CoverCandidates[0]
	}
	var id int64
	err := s.pool.QueryRow(ctx, query,
		m.Slug,
		m.Title,
		m.AltTitles,
		m.Description,
		m.Status,
		m.Year,
		m.Genres,
		coverURL,
		m.Source,
		m.ExternalID,
		m.UpdatedAt,
		[]byte(m.Snapshot),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert manga %s/%s: %w", m.Source, m.ExternalID, err)
	}
	return id, nil
}

// GetByID loads one canonical row.
func (s *MangaStore) GetByID(ctx context.Context, id int64) (catalog.Manga, error) {
	query := `
		SELECT id, slug, title, alt_titles, description, status, year, genres,
		       cover_url, cached_cover_url, source, source_id,
		       source_updated_at, total_chapters, total_volumes,
		       created_at, updated_at
		FROM manga
		WHERE id = $1;
	`
	var m catalog.Manga
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.Slug,
		&m.Title,
		&m.AltTitles,
		&m.Description,
		&m.Status,
		&m.Year,
		&m.Genres,
		&m.CoverURL,
		&m.CachedCoverURL,
		&m.Source,
		&m.SourceID,
		&m.SourceUpdatedAt,
		&m.TotalChapters,
		&m.TotalVolumes,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Manga{}, catalog.ErrNotFound
		}
		return catalog.Manga{}, fmt.Errorf("get manga %d: %w", id, err)
	}
	return m, nil
}

// GetIDByExternal resolves the external-id link.
func (s *MangaStore) GetIDByExternal(ctx context.Context, source, externalID string) (int64, error) {
	query := `SELECT id FROM manga WHERE source = $1 AND source_id = $2;`
	var id int64
	err := s.pool.QueryRow(ctx, query, source, externalID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, catalog.ErrNotFound
		}
		return 0, fmt.Errorf("resolve %s/%s: %w", source, externalID, err)
	}
	return id, nil
}

// SetCachedCover links the cached cover URL to the canonical row.
func (s *MangaStore) SetCachedCover(ctx context.Context, id int64, url string) error {
	query := `UPDATE manga SET cached_cover_url = $2, updated_at = now() WHERE id = $1;`
	if _, err := s.pool.Exec(ctx, query, id, url); err != nil {
		return fmt.Errorf("set cached cover for manga %d: %w", id, err)
	}
	return nil
}

// UpdateAggregate stores chapter/volume totals on the canonical row.
func (s *MangaStore) UpdateAggregate(ctx context.Context, id int64, totals catalog.AggregateTotals) error {
	query := `UPDATE manga SET total_chapters = $2, total_volumes = $3, updated_at = now() WHERE id = $1;`
	if _, err := s.pool.Exec(ctx, query, id, totals.Chapters, totals.Volumes); err != nil {
		return fmt.Errorf("update aggregate for manga %d: %w", id, err)
	}
	return nil
}
