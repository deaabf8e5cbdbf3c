// Package upstream implements the HTTP client for the external content
// catalog: the paginated list feeds, single-entity hydration, and the
// chapter/volume aggregate endpoint.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/plotline/catalog-sync/internal/catalog"
	"github.com/plotline/catalog-sync/internal/normalize"
	"github.com/plotline/catalog-sync/internal/ratelimit"
)

// Config controls Client behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RPS and Burst pace requests against the upstream; zero RPS disables
	// pacing.
	RPS   float64
	Burst int
}

// StatusError reports a non-success HTTP status from the upstream. Page
// fetches treat it as fatal; cover downloads treat it as one failed candidate.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.URL)
}

// Client issues requests against the upstream catalog API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	norm       *normalize.Normalizer
	limiter    *ratelimit.Limiter
}

// New constructs a Client. A nil httpClient falls back to a default client
// with the configured timeout.
func New(cfg Config, httpClient *http.Client, norm *normalize.Normalizer) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		norm:       norm,
		limiter:    ratelimit.New(ratelimit.Config{RPS: cfg.RPS, Burst: cfg.Burst}),
	}
}

// timestampLayout is the upstream's query-parameter timestamp format.
const timestampLayout = "2006-01-02T15:04:05"

// ListManga fetches one page of entities ordered by ascending modification
// time and normalizes each record.
func (c *Client) ListManga(ctx context.Context, q catalog.FeedQuery) (catalog.FeedPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("order[updatedAt]", "asc")
	params.Add("includes[]", "cover_art")
	if !q.UpdatedSince.IsZero() {
		params.Set("updatedAtSince", q.UpdatedSince.UTC().Format(timestampLayout))
	}

	body, err := c.get(ctx, "/manga", params)
	if err != nil {
		return catalog.FeedPage{}, err
	}
	raw, total, err := normalize.ParseMangaList(body)
	if err != nil {
		return catalog.FeedPage{}, err
	}

	page := catalog.FeedPage{Total: total, Items: make([]catalog.UpstreamManga, 0, len(raw))}
	for _, d := range raw {
		page.Items = append(page.Items, c.norm.Manga(d))
	}
	return page, nil
}

// ListChapters fetches one page of chapter activity events ordered by
// ascending modification time.
func (c *Client) ListChapters(ctx context.Context, q catalog.FeedQuery) ([]normalize.ChapterData, int, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("order[updatedAt]", "asc")
	if !q.UpdatedSince.IsZero() {
		params.Set("updatedAtSince", q.UpdatedSince.UTC().Format(timestampLayout))
	}

	body, err := c.get(ctx, "/chapter", params)
	if err != nil {
		return nil, 0, err
	}
	return normalize.ParseChapterList(body)
}

// GetManga hydrates one entity by its external id.
func (c *Client) GetManga(ctx context.Context, externalID string) (catalog.UpstreamManga, error) {
	params := url.Values{}
	params.Add("includes[]", "cover_art")

	body, err := c.get(ctx, "/manga/"+url.PathEscape(externalID), params)
	if err != nil {
		return catalog.UpstreamManga{}, err
	}
	raw, err := normalize.ParseManga(body)
	if err != nil {
		return catalog.UpstreamManga{}, err
	}
	return c.norm.Manga(raw), nil
}

// GetAggregate fetches chapter/volume totals for one entity.
func (c *Client) GetAggregate(ctx context.Context, externalID string) (catalog.AggregateTotals, error) {
	body, err := c.get(ctx, "/manga/"+url.PathEscape(externalID)+"/aggregate", nil)
	if err != nil {
		return catalog.AggregateTotals{}, err
	}
	chapters, volumes, err := normalize.ParseAggregate(body)
	if err != nil {
		return catalog.AggregateTotals{}, err
	}
	return catalog.AggregateTotals{Chapters: chapters, Volumes: volumes}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	if err := c.limiter.Wait(ctx, u); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
