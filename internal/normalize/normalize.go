// Package normalize is the boundary between the upstream's loosely-typed JSON
// and the strict internal record types. All optional fields are resolved here
// exactly once; nothing downstream branches on missing data.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plotline/catalog-sync/internal/catalog"
	"github.com/plotline/catalog-sync/pkg/slug"
)

// Config identifies the upstream source and its cover CDN.
type Config struct {
	// Source labels the upstream in canonical rows, e.g. "mangadex".
	Source string
	// CoverBaseURL prefixes cover file names, e.g.
	// "https://uploads.example.org/covers".
	CoverBaseURL string
}

// Normalizer converts raw upstream records into catalog.UpstreamManga.
type Normalizer struct {
	cfg Config
}

// New constructs a Normalizer.
func New(cfg Config) *Normalizer {
	if cfg.Source == "" {
		cfg.Source = "mangadex"
	}
	return &Normalizer{cfg: cfg}
}

// titleLocalePriority orders localized titles when no English title exists.
var titleLocalePriority = []string{"en", "ja-ro", "ja", "ko-ro", "ko", "zh-ro", "zh"}

var statusByUpstream = map[string]catalog.MangaStatus{
	"ongoing":   catalog.StatusOngoing,
	"completed": catalog.StatusCompleted,
	"hiatus":    catalog.StatusHiatus,
	"cancelled": catalog.StatusCancelled,
}

// Manga normalizes one raw upstream record. It never fails: every derived
// field has a resolved default, down to a synthetic placeholder title.
func (n *Normalizer) Manga(d MangaData) catalog.UpstreamManga {
	title := pickTitle(d.Attributes.Title, d.Attributes.AltTitles, d.ID)

	status, ok := statusByUpstream[strings.ToLower(d.Attributes.Status)]
	if !ok {
		status = catalog.StatusUnknown
	}

	genres := pickGenres(d.Attributes.Tags)
	alts := pickAltTitles(d.Attributes.AltTitles, title)
	coverID, candidates, volume, locale := n.pickCover(d)

	m := catalog.UpstreamManga{
		Source:          n.cfg.Source,
		ExternalID:      d.ID,
		Title:           title,
		AltTitles:       alts,
		Description:     pickLocalized(d.Attributes.Description),
		Status:          status,
		Year:            d.Attributes.Year,
		Genres:          genres,
		Slug:            slug.MakeUnique(title, d.ID),
		CoverExternalID: coverID,
		CoverCandidates: candidates,
		CoverVolume:     volume,
		CoverLocale:     locale,
		UpdatedAt:       d.Attributes.UpdatedAt.Time(),
	}
	m.Snapshot = snapshot(m, volume, locale)
	return m
}

// ParentMangaID resolves the manga relationship of a chapter event, or ""
// when the event carries none.
func ParentMangaID(c ChapterData) string {
	for _, rel := range c.Relationships {
		if rel.Type == "manga" {
			return rel.ID
		}
	}
	return ""
}

func pickTitle(title localized, alts []localized, externalID string) string {
	for _, locale := range titleLocalePriority {
		if v := title[locale]; v != "" {
			return v
		}
	}
	if v := pickLocalized(title); v != "" {
		return v
	}
	for _, alt := range alts {
		if v := pickLocalized(alt); v != "" {
			return v
		}
	}
	// Synthetic placeholder derived from the external id.
	short := externalID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("Untitled %s", short)
}

func pickAltTitles(alts []localized, primary string) []string {
	seen := map[string]struct{}{primary: {}}
	var out []string
	for _, alt := range alts {
		for _, v := range alt {
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// pickLocalized prefers English, then the lexicographically first locale so
// the choice is deterministic across runs.
func pickLocalized(l localized) string {
	if v := l["en"]; v != "" {
		return v
	}
	locales := make([]string, 0, len(l))
	for locale, v := range l {
		if v != "" {
			locales = append(locales, locale)
		}
	}
	if len(locales) == 0 {
		return ""
	}
	sort.Strings(locales)
	return l[locales[0]]
}

func pickGenres(tags []tagData) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range tags {
		if t.Attributes.Group != "genre" && t.Attributes.Group != "theme" {
			continue
		}
		name := pickLocalized(t.Attributes.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// pickCover builds the ordered cover candidate list, best resolution first:
// the original upload, then the 512px and 256px thumbnails.
func (n *Normalizer) pickCover(d MangaData) (coverID string, candidates []string, volume, locale string) {
	for _, rel := range d.Relationships {
		if rel.Type != "cover_art" || rel.Attributes.FileName == "" {
			continue
		}
		base := fmt.Sprintf("%s/%s/%s",
			strings.TrimRight(n.cfg.CoverBaseURL, "/"), d.ID, rel.Attributes.FileName)
		return rel.ID,
			[]string{base, base + ".512.jpg", base + ".256.jpg"},
			rel.Attributes.Volume,
			rel.Attributes.Locale
	}
	return "", nil, "", ""
}

// snapshotPayload is the compact normalized form stored in source_payload.
type snapshotPayload struct {
	ExternalID  string              `json:"external_id"`
	Title       string              `json:"title"`
	AltTitles   []string            `json:"alt_titles,omitempty"`
	Description string              `json:"description,omitempty"`
	Status      catalog.MangaStatus `json:"status"`
	Year        int                 `json:"year,omitempty"`
	Genres      []string            `json:"genres,omitempty"`
	CoverID     string              `json:"cover_id,omitempty"`
	Volume      string              `json:"cover_volume,omitempty"`
	Locale      string              `json:"cover_locale,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func snapshot(m catalog.UpstreamManga, volume, locale string) json.RawMessage {
	raw, err := json.Marshal(snapshotPayload{
		ExternalID:  m.ExternalID,
		Title:       m.Title,
		AltTitles:   m.AltTitles,
		Description: m.Description,
		Status:      m.Status,
		Year:        m.Year,
		Genres:      m.Genres,
		CoverID:     m.CoverExternalID,
		Volume:      volume,
		Locale:      locale,
		UpdatedAt:   m.UpdatedAt,
	})
	if err != nil {
		// Marshalling a value type of plain fields cannot fail in practice.
		return json.RawMessage("{}")
	}
	return raw
}
