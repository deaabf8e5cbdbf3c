package upstream

import (
	"context"

	"github.com/plotline/catalog-sync/internal/catalog"
	"github.com/plotline/catalog-sync/internal/normalize"
)

// MangaFeed adapts the entity list endpoint to catalog.Feed.
type MangaFeed struct {
	client *Client
}

// NewMangaFeed wraps the client's entity feed.
func NewMangaFeed(client *Client) *MangaFeed {
	return &MangaFeed{client: client}
}

// Name implements catalog.Feed.
func (f *MangaFeed) Name() string { return catalog.FeedManga }

// FetchPage implements catalog.Feed.
func (f *MangaFeed) FetchPage(ctx context.Context, q catalog.FeedQuery) (catalog.FeedPage, error) {
	return f.client.ListManga(ctx, q)
}

// ChapterFeed adapts the chapter activity endpoint to catalog.Feed. Each
// event resolves to a parent-entity stub; the runner hydrates stubs by id so
// a failed hydration stays a per-item failure.
type ChapterFeed struct {
	client *Client
	source string
}

// NewChapterFeed wraps the client's activity feed.
func NewChapterFeed(client *Client, source string) *ChapterFeed {
	if source == "" {
		source = "mangadex"
	}
	return &ChapterFeed{client: client, source: source}
}

// Name implements catalog.Feed.
func (f *ChapterFeed) Name() string { return catalog.FeedChapters }

// FetchPage implements catalog.Feed. Items carry the event's modification
// timestamp, not the parent's, so the cursor advances along the event
// timeline.
func (f *ChapterFeed) FetchPage(ctx context.Context, q catalog.FeedQuery) (catalog.FeedPage, error) {
	events, total, err := f.client.ListChapters(ctx, q)
	if err != nil {
		return catalog.FeedPage{}, err
	}

	page := catalog.FeedPage{Total: total, Items: make([]catalog.UpstreamManga, 0, len(events))}
	for _, ev := range events {
		page.Items = append(page.Items, catalog.UpstreamManga{
			Source:         f.source,
			ExternalID:     normalize.ParentMangaID(ev),
			UpdatedAt:      ev.Attributes.UpdatedAt.Time(),
			NeedsHydration: true,
		})
	}
	return page, nil
}
