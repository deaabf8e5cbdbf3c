// Package catalog defines core types shared across subsystems.
package catalog

import (
	"encoding/json"
	"time"
)

// Mode selects the addressing scheme the cursor uses against the upstream feed.
type Mode string

// Cursor modes persisted in crawl_states.mode.
const (
	// ModeOffset pages through the feed by plain offset until the upstream
	// pagination window cap is reached.
	ModeOffset Mode = "offset"
	// ModeUpdatedWindow pages by ascending modification time, sub-paginating
	// inside each timestamp bucket by offset.
	ModeUpdatedWindow Mode = "updated_window"
)

// Logical feed names. Each has exactly one CrawlState row.
const (
	FeedManga    = "manga"
	FeedChapters = "chapters"
)

// CrawlState is the persisted cursor for one logical feed. It is read once at
// the start of an invocation and written once at the end, guarded by Version.
type CrawlState struct {
	// ID is the feed name (FeedManga, FeedChapters).
	ID string `json:"id"`
	// Mode is the current addressing scheme.
	Mode Mode `json:"mode"`
	// Offset is the plain offset in ModeOffset, or the in-bucket offset in
	// ModeUpdatedWindow.
	Offset int `json:"offset"`
	// UpdatedSince is the current bucket timestamp; zero in ModeOffset.
	UpdatedSince time.Time `json:"updated_since"`
	// LastExternalID records the last item seen, for diagnostics.
	LastExternalID string `json:"last_external_id"`
	// PageLimit is the page size requested from the upstream.
	PageLimit int `json:"page_limit"`
	// Total is the feed size learned from the upstream response; 0 = unknown.
	Total int `json:"total"`
	// Processed accumulates items processed across all invocations.
	Processed int64 `json:"processed"`
	// Version increments on every save; a conditional update on it detects
	// concurrent invocations racing on the same state row.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MangaStatus represents the publication status of a canonical record.
type MangaStatus string

// Status values persisted in manga.status.
const (
	StatusOngoing   MangaStatus = "ongoing"
	StatusCompleted MangaStatus = "completed"
	StatusHiatus    MangaStatus = "hiatus"
	StatusCancelled MangaStatus = "cancelled"
	StatusUnknown   MangaStatus = "unknown"
)

// UpstreamManga is one upstream record after the normalization boundary.
// All optional upstream fields are resolved here; downstream components never
// branch on missing data.
type UpstreamManga struct {
	Source      string
	ExternalID  string
	Title       string
	AltTitles   []string
	Description string
	Status      MangaStatus
	Year        int
	Genres      []string
	Slug        string
	// CoverExternalID is the upstream cover identifier, empty when the record
	// carries no cover relationship.
	CoverExternalID string
	// CoverCandidates lists cover URLs best resolution first.
	CoverCandidates []string
	// CoverVolume and CoverLocale label the cover relationship when present.
	CoverVolume string
	CoverLocale string
	UpdatedAt   time.Time
	// Snapshot is a compact normalized copy of the source payload, persisted
	// alongside the row for reprocessing without re-fetching upstream.
	Snapshot json.RawMessage
	// NeedsHydration marks a stub produced by an activity-event feed: only
	// Source, ExternalID and UpdatedAt are set, and the full record must be
	// fetched by id before upserting.
	NeedsHydration bool
}

// Manga is the canonical, locally owned representation of an upstream entity.
type Manga struct {
	ID              int64       `json:"id"`
	Slug            string      `json:"slug"`
	Title           string      `json:"title"`
	AltTitles       []string    `json:"alt_titles"`
	Description     string      `json:"description"`
	Status          MangaStatus `json:"status"`
	Year            int         `json:"year"`
	Genres          []string    `json:"genres"`
	CoverURL        string      `json:"cover_url"`
	CachedCoverURL  string      `json:"cached_cover_url"`
	Source          string      `json:"source"`
	SourceID        string      `json:"source_id"`
	SourceUpdatedAt time.Time   `json:"source_updated_at"`
	TotalChapters   int         `json:"total_chapters"`
	TotalVolumes    int         `json:"total_volumes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// DeltaAction distinguishes first sightings from subsequent updates.
type DeltaAction string

// Delta actions persisted in delta_log.action.
const (
	DeltaInsert DeltaAction = "insert"
	DeltaUpdate DeltaAction = "update"
)

// DeltaEntry is one append-only change record. Written once per touched item,
// even when nothing tracked changed.
type DeltaEntry struct {
	StateID           string          `json:"state_id"`
	ExternalID        string          `json:"external_id"`
	MangaID           int64           `json:"manga_id"`
	ExternalUpdatedAt time.Time       `json:"external_updated_at"`
	Action            DeltaAction     `json:"action"`
	ChangedFields     []string        `json:"changed_fields"`
	Before            json.RawMessage `json:"before,omitempty"`
	After             json.RawMessage `json:"after"`
	LoggedAt          time.Time       `json:"logged_at"`
}

// CoverAsset records one cached cover image. Created once per distinct
// external cover id; re-processing skips ids already present.
type CoverAsset struct {
	ExternalID string    `json:"external_id"`
	MangaID    int64     `json:"manga_id"`
	Volume     string    `json:"volume"`
	Locale     string    `json:"locale"`
	SourceURL  string    `json:"source_url"`
	CachedURL  string    `json:"cached_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArtJobStatus is the lifecycle state of a queued art task.
type ArtJobStatus string

// Art job statuses persisted in art_jobs.status.
const (
	ArtJobPending ArtJobStatus = "pending"
	ArtJobRunning ArtJobStatus = "running"
	ArtJobDone    ArtJobStatus = "done"
	ArtJobFailed  ArtJobStatus = "failed"
)

// ArtJob is a follow-up asynchronous task keyed by canonical id. Re-enqueue
// refreshes the row rather than duplicating it.
type ArtJob struct {
	MangaID   int64        `json:"manga_id"`
	Status    ArtJobStatus `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ItemResult is one per-item outcome included in run samples.
type ItemResult struct {
	ExternalID string      `json:"external_id"`
	MangaID    int64       `json:"manga_id,omitempty"`
	Action     DeltaAction `json:"action,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// WorkerRun is the append-only summary of one bounded pipeline execution.
type WorkerRun struct {
	ID         string       `json:"id"`
	StateID    string       `json:"state_id"`
	Mode       Mode         `json:"mode"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Pages      int          `json:"pages"`
	Processed  int          `json:"processed"`
	Refreshed  int          `json:"refreshed"`
	Enqueued   int          `json:"enqueued"`
	OKCount    int          `json:"ok_count"`
	ErrorCount int          `json:"error_count"`
	Results    []ItemResult `json:"results,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// FeedQuery parameterizes one paginated request against the upstream feed.
// Results are always ordered by ascending modification time.
type FeedQuery struct {
	Limit  int
	Offset int
	// UpdatedSince filters to items modified at or after the timestamp; zero
	// means no filter.
	UpdatedSince time.Time
}

// FeedPage is one fetched page plus the optional total count.
type FeedPage struct {
	Items []UpstreamManga
	// Total is the feed size reported by the upstream; 0 = not reported.
	Total int
}

// AggregateTotals carries chapter/volume counts from the aggregate endpoint.
type AggregateTotals struct {
	Chapters int
	Volumes  int
}
