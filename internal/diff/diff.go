// Package diff computes field-level change records between the canonical row
// before and after an upsert.
package diff

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/plotline/catalog-sync/internal/catalog"
)

// projection is the fixed set of comparable fields. Anything outside it
// (timestamps, cached cover links, aggregate counts) never produces a diff.
type projection struct {
	Title       string              `json:"title"`
	AltTitles   []string            `json:"alt_titles,omitempty"`
	Description string              `json:"description,omitempty"`
	Status      catalog.MangaStatus `json:"status"`
	Year        int                 `json:"year,omitempty"`
	Genres      []string            `json:"genres,omitempty"`
	CoverURL    string              `json:"cover_url,omitempty"`
	Source      string              `json:"source"`
}

func project(m catalog.Manga) projection {
	return projection{
		Title:       m.Title,
		AltTitles:   sortedCopy(m.AltTitles),
		Description: m.Description,
		Status:      m.Status,
		Year:        m.Year,
		Genres:      sortedCopy(m.Genres),
		CoverURL:    m.CoverURL,
		Source:      m.Source,
	}
}

// sortedCopy order-normalizes an array so non-deterministic upstream ordering
// never reads as a change.
func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// Compute builds one DeltaEntry. A nil before means the upsert created the
// row and the action is insert. An entry is produced even when no tracked
// field changed: the upstream touched the record, and that is itself worth
// recording.
func Compute(stateID string, before *catalog.Manga, after catalog.Manga, externalUpdatedAt, loggedAt time.Time) catalog.DeltaEntry {
	entry := catalog.DeltaEntry{
		StateID:           stateID,
		ExternalID:        after.SourceID,
		MangaID:           after.ID,
		ExternalUpdatedAt: externalUpdatedAt,
		Action:            catalog.DeltaUpdate,
		LoggedAt:          loggedAt,
	}

	afterProj := project(after)
	entry.After = marshal(afterProj)

	if before == nil {
		entry.Action = catalog.DeltaInsert
		entry.ChangedFields = fieldNames()
		return entry
	}

	beforeProj := project(*before)
	entry.Before = marshal(beforeProj)
	entry.ChangedFields = changed(beforeProj, afterProj)
	return entry
}

func changed(a, b projection) []string {
	var fields []string
	if a.Title != b.Title {
		fields = append(fields, "title")
	}
	if !equalStrings(a.AltTitles, b.AltTitles) {
		fields = append(fields, "alt_titles")
	}
	if a.Description != b.Description {
		fields = append(fields, "description")
	}
	if a.Status != b.Status {
		fields = append(fields, "status")
	}
	if a.Year != b.Year {
		fields = append(fields, "year")
	}
	if !equalStrings(a.Genres, b.Genres) {
		fields = append(fields, "genres")
	}
	if a.CoverURL != b.CoverURL {
		fields = append(fields, "cover_url")
	}
	if a.Source != b.Source {
		fields = append(fields, "source")
	}
	return fields
}

func fieldNames() []string {
	return []string{"title", "alt_titles", "description", "status", "year", "genres", "cover_url", "source"}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func marshal(p projection) json.RawMessage {
	raw, err := json.Marshal(p)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}
