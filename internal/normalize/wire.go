package normalize

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire structs for the upstream's JSON envelopes. Optional-field tolerance
// lives here; everything past ParseMangaList/ParseChapterList is strict.

// MangaData is one raw entity record from the upstream list/get endpoints.
type MangaData struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Attributes    mangaAttributes `json:"attributes"`
	Relationships []relationship  `json:"relationships"`
}

type mangaAttributes struct {
	Title       localized   `json:"title"`
	AltTitles   []localized `json:"altTitles"`
	Description localized   `json:"description"`
	Status      string      `json:"status"`
	Year        int         `json:"year"`
	Tags        []tagData   `json:"tags"`
	UpdatedAt   wireTime    `json:"updatedAt"`
}

// ChapterData is one raw activity event from the chapter feed.
type ChapterData struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Attributes    chapterAttributes `json:"attributes"`
	Relationships []relationship    `json:"relationships"`
}

type chapterAttributes struct {
	Chapter   string   `json:"chapter"`
	Volume    string   `json:"volume"`
	UpdatedAt wireTime `json:"updatedAt"`
}

type relationship struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Attributes relAttributes `json:"attributes"`
}

type relAttributes struct {
	FileName string `json:"fileName"`
	Volume   string `json:"volume"`
	Locale   string `json:"locale"`
}

type tagData struct {
	ID         string        `json:"id"`
	Attributes tagAttributes `json:"attributes"`
}

type tagAttributes struct {
	Group string    `json:"group"`
	Name  localized `json:"name"`
}

// localized is an upstream map of locale to string. Some records encode an
// empty set as [] instead of {}, so unmarshalling tolerates both.
type localized map[string]string

func (l *localized) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		*l = nil
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode localized string: %w", err)
	}
	*l = m
	return nil
}

// wireTime parses the upstream's RFC 3339 timestamps, tolerating null and
// empty strings.
type wireTime struct {
	t time.Time
}

func (w *wireTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		w.t = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	w.t = parsed.UTC()
	return nil
}

// Time returns the parsed timestamp (zero when absent upstream).
func (w wireTime) Time() time.Time {
	return w.t
}

type mangaEnvelope struct {
	Result string      `json:"result"`
	Data   []MangaData `json:"data"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

type mangaSingleEnvelope struct {
	Result string    `json:"result"`
	Data   MangaData `json:"data"`
}

type chapterEnvelope struct {
	Result string        `json:"result"`
	Data   []ChapterData `json:"data"`
	Total  int           `json:"total"`
}

type aggregateEnvelope struct {
	Result  string                     `json:"result"`
	Volumes map[string]aggregateVolume `json:"volumes"`
}

type aggregateVolume struct {
	Volume   string                     `json:"volume"`
	Count    int                        `json:"count"`
	Chapters map[string]json.RawMessage `json:"chapters"`
}

// ParseMangaList decodes a list envelope into raw records plus the total.
func ParseMangaList(data []byte) ([]MangaData, int, error) {
	var env mangaEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, 0, fmt.Errorf("decode manga list: %w", err)
	}
	return env.Data, env.Total, nil
}

// ParseManga decodes a single-entity envelope.
func ParseManga(data []byte) (MangaData, error) {
	var env mangaSingleEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return MangaData{}, fmt.Errorf("decode manga: %w", err)
	}
	return env.Data, nil
}

// ParseChapterList decodes a chapter activity envelope.
func ParseChapterList(data []byte) ([]ChapterData, int, error) {
	var env chapterEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, 0, fmt.Errorf("decode chapter list: %w", err)
	}
	return env.Data, env.Total, nil
}

// ParseAggregate decodes the chapter/volume aggregate envelope into totals.
func ParseAggregate(data []byte) (chapters, volumes int, err error) {
	var env aggregateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, 0, fmt.Errorf("decode aggregate: %w", err)
	}
	for _, v := range env.Volumes {
		volumes++
		if v.Count > 0 {
			chapters += v.Count
		} else {
			chapters += len(v.Chapters)
		}
	}
	return chapters, volumes, nil
}
