package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/plotline/catalog-sync/internal/catalog"
)

func TestUpsertReturnsCanonicalID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	m := catalog.UpstreamManga{
		Source:          "mangadex",
		ExternalID:      "ext-1",
		Title:           "Solo Traveler",
		AltTitles:       []string{"Tabibito"},
		Description:     "A quiet road story.",
		Status:          catalog.StatusOngoing,
		Year:            2020,
		Genres:          []string{"Drama"},
		Slug:            "solo-traveler-a1b2c3d4",
		CoverCandidates: []string{"https://covers.example/ext-1/c.jpg"},
		UpdatedAt:       now,
		Snapshot:        json.RawMessage(`{"title":"Solo Traveler"}`),
	}

	mock.ExpectQuery("INSERT INTO manga").
		WithArgs(
			m.Slug,
			m.Title,
			m.AltTitles,
			m.Description,
			m.Status,
			m.Year,
			m.Genres,
			"https://covers.example/ext-1/c.jpg",
			m.Source,
			m.ExternalID,
			m.UpdatedAt,
			[]byte(m.Snapshot),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(17)))

	store := NewMangaStore(mock)
	id, err := store.Upsert(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, int64(17), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRequiresExternalID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewMangaStore(mock)
	_, err = store.Upsert(context.Background(), catalog.UpstreamManga{Source: "mangadex"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetIDByExternalNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id FROM manga").
		WithArgs("mangadex", "missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	store := NewMangaStore(mock)
	_, err = store.GetIDByExternal(context.Background(), "mangadex", "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCachedCover(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE manga SET cached_cover_url").
		WithArgs(int64(17), "https://storage.googleapis.com/covers/solo/ext-1.jpg").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewMangaStore(mock)
	err = store.SetCachedCover(context.Background(), 17, "https://storage.googleapis.com/covers/solo/ext-1.jpg")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAggregate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE manga SET total_chapters").
		WithArgs(int64(17), 120, 12).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewMangaStore(mock)
	err = store.UpdateAggregate(context.Background(), 17, catalog.AggregateTotals{Chapters: 120, Volumes: 12})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
