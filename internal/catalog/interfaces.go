package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrStateConflict signals that a concurrent invocation advanced the crawl
// state since it was loaded.
var ErrStateConflict = errors.New("crawl state version conflict")

// StateStore persists the per-feed cursor rows.
type StateStore interface {
	// GetState loads one state row or returns ErrNotFound.
	GetState(ctx context.Context, id string) (CrawlState, error)
	// SaveState writes the row conditionally on state.Version and returns the
	// stored state with the version bumped, or ErrStateConflict.
	SaveState(ctx context.Context, state CrawlState) (CrawlState, error)
}

// MangaStore owns the canonical records.
type MangaStore interface {
	// Upsert inserts or updates by (source, external id) and returns the
	// canonical id. Calling it twice with identical input is a no-op on the
	// second call.
	Upsert(ctx context.Context, m UpstreamManga) (int64, error)
	// GetByID loads one canonical row or returns ErrNotFound.
	GetByID(ctx context.Context, id int64) (Manga, error)
	// GetIDByExternal resolves the external-id link or returns ErrNotFound.
	GetIDByExternal(ctx context.Context, source, externalID string) (int64, error)
	// SetCachedCover links a cached cover URL to the canonical row.
	SetCachedCover(ctx context.Context, id int64, url string) error
	// UpdateAggregate stores chapter/volume totals on the canonical row.
	UpdateAggregate(ctx context.Context, id int64, totals AggregateTotals) error
}

// DeltaStore appends immutable change records.
type DeltaStore interface {
	Append(ctx context.Context, entry DeltaEntry) error
}

// CoverStore persists cached cover asset rows.
type CoverStore interface {
	// ExistingExternalIDs reports which of the given external cover ids are
	// already cached, in one batched lookup.
	ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	Create(ctx context.Context, asset CoverAsset) error
}

// ArtJobStore schedules follow-up art work keyed by canonical id.
type ArtJobStore interface {
	// Enqueue inserts or refreshes the pending job for the manga.
	Enqueue(ctx context.Context, mangaID int64, at time.Time) error
}

// RunStore appends per-invocation telemetry records.
type RunStore interface {
	Record(ctx context.Context, run WorkerRun) error
}

// BlobStore writes raw artifacts and returns a public retrieval URL.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Feed issues one paginated request against the upstream catalog.
type Feed interface {
	Name() string
	FetchPage(ctx context.Context, q FeedQuery) (FeedPage, error)
}

// EntitySource hydrates single entities outside the feed flow.
type EntitySource interface {
	// GetManga fetches one entity by external id.
	GetManga(ctx context.Context, externalID string) (UpstreamManga, error)
	// GetAggregate fetches chapter/volume totals for one entity.
	GetAggregate(ctx context.Context, externalID string) (AggregateTotals, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
