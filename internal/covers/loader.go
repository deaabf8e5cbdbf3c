package covers

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/plotline/catalog-sync/internal/catalog"
)

// Candidate describes one cover to cache: its upstream identity plus the
// ordered URL fallbacks, best resolution first.
type Candidate struct {
	ExternalID string
	Volume     string
	Locale     string
	URLs       []string
}

// Loader caches covers into blob storage and records the asset rows.
type Loader struct {
	resolver   *Resolver
	blobStore  catalog.BlobStore
	coverStore catalog.CoverStore
	mangaStore catalog.MangaStore
	clock      catalog.Clock
	prefix     string
	logger     *zap.Logger
}

// NewLoader constructs a Loader. prefix is the blob path prefix, typically
// "covers".
func NewLoader(
	resolver *Resolver,
	blobStore catalog.BlobStore,
	coverStore catalog.CoverStore,
	mangaStore catalog.MangaStore,
	clock catalog.Clock,
	prefix string,
	logger *zap.Logger,
) *Loader {
	if prefix == "" {
		prefix = "covers"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		resolver:   resolver,
		blobStore:  blobStore,
		coverStore: coverStore,
		mangaStore: mangaStore,
		clock:      clock,
		prefix:     strings.Trim(prefix, "/"),
		logger:     logger,
	}
}

// Load caches the given covers for one canonical record. Re-runs are cheap:
// it returns immediately when the row already has a cached cover, and
// short-circuits candidates whose external id is already stored, checked in
// one batched lookup before the loop. A candidate whose every URL fails is a
// terminal error for the item.
func (l *Loader) Load(ctx context.Context, m catalog.Manga, cands []Candidate) (int, error) {
	if len(cands) == 0 {
		return 0, nil
	}
	if m.CachedCoverURL != "" {
		return 0, nil
	}

	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		if c.ExternalID != "" {
			ids = append(ids, c.ExternalID)
		}
	}
	existing, err := l.coverStore.ExistingExternalIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("check cached covers: %w", err)
	}

	cached := 0
	for _, c := range cands {
		if c.ExternalID == "" || len(c.URLs) == 0 {
			continue
		}
		if _, done := existing[c.ExternalID]; done {
			continue
		}

		result, attempts, err := l.resolver.Resolve(ctx, c.URLs)
		if err != nil {
			return cached, err
		}
		l.logger.Debug("cover resolved",
			zap.String("cover_id", c.ExternalID),
			zap.String("url", result.URL),
			zap.Int("attempts", len(attempts)),
		)

		blobPath := l.blobPath(m.Slug, c, result)
		cachedURL, err := l.blobStore.PutObject(ctx, blobPath, result.ContentType, result.Body)
		if err != nil {
			return cached, fmt.Errorf("store cover %s: %w", c.ExternalID, err)
		}

		asset := catalog.CoverAsset{
			ExternalID: c.ExternalID,
			MangaID:    m.ID,
			Volume:     c.Volume,
			Locale:     c.Locale,
			SourceURL:  result.URL,
			CachedURL:  cachedURL,
			CreatedAt:  l.clock.Now(),
		}
		if err := l.coverStore.Create(ctx, asset); err != nil {
			return cached, fmt.Errorf("record cover %s: %w", c.ExternalID, err)
		}

		if cached == 0 {
			if err := l.mangaStore.SetCachedCover(ctx, m.ID, cachedURL); err != nil {
				return cached, fmt.Errorf("link cover to manga %d: %w", m.ID, err)
			}
		}
		cached++
	}
	return cached, nil
}

// blobPath derives a deterministic object path from the canonical slug plus
// the cover's volume/locale labels.
func (l *Loader) blobPath(chosenSlug string, c Candidate, result Result) string {
	name := c.ExternalID
	if c.Volume != "" {
		name = "v" + c.Volume + "-" + name
	}
	if c.Locale != "" {
		name = name + "-" + c.Locale
	}
	return fmt.Sprintf("%s/%s/%s.%s", l.prefix, chosenSlug, name, extension(result))
}

// extension infers the file extension from the response content type, then
// from the source URL, defaulting to jpg.
func extension(result Result) string {
	mediaType, _, err := mime.ParseMediaType(result.ContentType)
	if err == nil {
		switch mediaType {
		case "image/jpeg":
			return "jpg"
		case "image/png":
			return "png"
		case "image/webp":
			return "webp"
		case "image/gif":
			return "gif"
		}
	}
	ext := strings.TrimPrefix(path.Ext(result.URL), ".")
	if ext != "" && len(ext) <= 4 {
		return strings.ToLower(ext)
	}
	return "jpg"
}
