package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plotline/catalog-sync/internal/catalog"
)

func testNormalizer() *Normalizer {
	return New(Config{Source: "mangadex", CoverBaseURL: "https://uploads.example.org/covers"})
}

func TestMangaPrefersEnglishTitle(t *testing.T) {
	t.Parallel()

	d := MangaData{
		ID: "a1b2c3d4-0000-0000-0000-000000000001",
		Attributes: mangaAttributes{
			Title:  localized{"en": "Solo Traveler", "ja": "旅人"},
			Status: "ongoing",
		},
	}
	m := testNormalizer().Manga(d)
	require.Equal(t, "Solo Traveler", m.Title)
	require.Equal(t, catalog.StatusOngoing, m.Status)
	require.Equal(t, "mangadex", m.Source)
	require.Contains(t, m.Slug, "solo-traveler")
}

func TestMangaFallsBackThroughLocalePriority(t *testing.T) {
	t.Parallel()

	d := MangaData{
		ID: "a1b2c3d4-0000-0000-0000-000000000002",
		Attributes: mangaAttributes{
			Title: localized{"ja": "旅人", "ja-ro": "Tabibito"},
		},
	}
	m := testNormalizer().Manga(d)
	require.Equal(t, "Tabibito", m.Title)
}

func TestMangaSynthesizesPlaceholderTitle(t *testing.T) {
	t.Parallel()

	d := MangaData{ID: "a1b2c3d4-0000-0000-0000-000000000003"}
	m := testNormalizer().Manga(d)
	require.Equal(t, "Untitled a1b2c3d4", m.Title)
	require.NotEmpty(t, m.Slug)
}

func TestMangaUnknownStatusResolves(t *testing.T) {
	t.Parallel()

	d := MangaData{
		ID:         "a1b2c3d4-0000-0000-0000-000000000004",
		Attributes: mangaAttributes{Title: localized{"en": "X"}, Status: "paused_forever"},
	}
	m := testNormalizer().Manga(d)
	require.Equal(t, catalog.StatusUnknown, m.Status)
}

func TestMangaBuildsOrderedCoverCandidates(t *testing.T) {
	t.Parallel()

	d := MangaData{
		ID:         "a1b2c3d4-0000-0000-0000-000000000005",
		Attributes: mangaAttributes{Title: localized{"en": "X"}},
		Relationships: []relationship{
			{ID: "cov-1", Type: "cover_art", Attributes: relAttributes{FileName: "f.png", Volume: "3", Locale: "ja"}},
		},
	}
	m := testNormalizer().Manga(d)
	require.Equal(t, "cov-1", m.CoverExternalID)
	require.Equal(t, []string{
		"https://uploads.example.org/covers/a1b2c3d4-0000-0000-0000-000000000005/f.png",
		"https://uploads.example.org/covers/a1b2c3d4-0000-0000-0000-000000000005/f.png.512.jpg",
		"https://uploads.example.org/covers/a1b2c3d4-0000-0000-0000-000000000005/f.png.256.jpg",
	}, m.CoverCandidates)
	require.Equal(t, "3", m.CoverVolume)
	require.Equal(t, "ja", m.CoverLocale)
}

func TestMangaNoCoverRelationship(t *testing.T) {
	t.Parallel()

	d := MangaData{
		ID:         "a1b2c3d4-0000-0000-0000-000000000006",
		Attributes: mangaAttributes{Title: localized{"en": "X"}},
		Relationships: []relationship{
			{ID: "auth-1", Type: "author"},
		},
	}
	m := testNormalizer().Manga(d)
	require.Empty(t, m.CoverExternalID)
	require.Empty(t, m.CoverCandidates)
}

func TestMangaDeduplicatesAltTitles(t *testing.T) {
	t.Parallel()

	d := MangaData{
		ID: "a1b2c3d4-0000-0000-0000-000000000007",
		Attributes: mangaAttributes{
			Title: localized{"en": "Solo Traveler"},
			AltTitles: []localized{
				{"ja-ro": "Tabibito"},
				{"en": "Solo Traveler"},
				{"ko": "Tabibito"},
			},
		},
	}
	m := testNormalizer().Manga(d)
	require.Equal(t, []string{"Tabibito"}, m.AltTitles)
}

func TestMangaGenresFromGenreAndThemeGroups(t *testing.T) {
	t.Parallel()

	d := MangaData{
		ID: "a1b2c3d4-0000-0000-0000-000000000008",
		Attributes: mangaAttributes{
			Title: localized{"en": "X"},
			Tags: []tagData{
				{Attributes: tagAttributes{Group: "genre", Name: localized{"en": "Drama"}}},
				{Attributes: tagAttributes{Group: "theme", Name: localized{"en": "School Life"}}},
				{Attributes: tagAttributes{Group: "format", Name: localized{"en": "Oneshot"}}},
			},
		},
	}
	m := testNormalizer().Manga(d)
	require.Equal(t, []string{"Drama", "School Life"}, m.Genres)
}

func TestParentMangaID(t *testing.T) {
	t.Parallel()

	c := ChapterData{
		ID: "ch-1",
		Relationships: []relationship{
			{ID: "grp-1", Type: "scanlation_group"},
			{ID: "m-1", Type: "manga"},
		},
	}
	require.Equal(t, "m-1", ParentMangaID(c))
	require.Empty(t, ParentMangaID(ChapterData{ID: "ch-2"}))
}

func TestParseMangaListToleratesEmptyArrayTitles(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"result": "ok",
		"data": [{
			"id": "m-1",
			"type": "manga",
			"attributes": {
				"title": {"en": "Solo Traveler"},
				"altTitles": [[]],
				"description": [],
				"status": "completed",
				"updatedAt": "2024-03-01T12:00:00+00:00"
			}
		}],
		"total": 84000
	}`)

	items, total, err := ParseMangaList(payload)
	require.NoError(t, err)
	require.Equal(t, 84000, total)
	require.Len(t, items, 1)
	require.Equal(t, "Solo Traveler", items[0].Attributes.Title["en"])
	require.Equal(t,
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		items[0].Attributes.UpdatedAt.Time(),
	)
}

func TestParseMangaListToleratesNullTimestamp(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"result":"ok","data":[{"id":"m-1","attributes":{"title":{"en":"X"},"updatedAt":null}}],"total":1}`)
	items, _, err := ParseMangaList(payload)
	require.NoError(t, err)
	require.True(t, items[0].Attributes.UpdatedAt.Time().IsZero())
}

func TestParseAggregateCountsVolumesAndChapters(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"result": "ok",
		"volumes": {
			"1": {"volume": "1", "count": 10, "chapters": {}},
			"2": {"volume": "2", "count": 0, "chapters": {"11": {}, "12": {}}}
		}
	}`)
	chapters, volumes, err := ParseAggregate(payload)
	require.NoError(t, err)
	require.Equal(t, 12, chapters)
	require.Equal(t, 2, volumes)
}
