// Package covers downloads cover art through an ordered-candidate fallback
// and persists the first success to durable object storage.
package covers

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxCoverBytes caps a single cover download.
const maxCoverBytes = 16 << 20

// Attempt records one tried candidate URL.
type Attempt struct {
	URL        string
	StatusCode int
	Err        string
}

// Result is the first successful download.
type Result struct {
	URL         string
	ContentType string
	Body        []byte
}

// ExhaustedError reports that every candidate failed, naming the last try.
type ExhaustedError struct {
	Attempts   []Attempt
	LastURL    string
	LastStatus int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d cover candidates failed, last %s returned %d",
		len(e.Attempts), e.LastURL, e.LastStatus)
}

// Resolver tries candidate URLs in order and returns the first success.
// The same fallback-by-preference shape is reusable for any ordered list of
// alternatives.
type Resolver struct {
	httpClient *http.Client
	userAgent  string
}

// NewResolver constructs a Resolver. A nil client falls back to
// http.DefaultClient.
func NewResolver(httpClient *http.Client, userAgent string) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Resolver{httpClient: httpClient, userAgent: userAgent}
}

// Resolve attempts each candidate in sequence. The first HTTP 200 wins and
// no further candidates are requested. When all fail it returns an
// ExhaustedError carrying the full attempt list.
func (r *Resolver) Resolve(ctx context.Context, candidates []string) (Result, []Attempt, error) {
	if len(candidates) == 0 {
		return Result{}, nil, &ExhaustedError{}
	}

	attempts := make([]Attempt, 0, len(candidates))
	for _, u := range candidates {
		body, contentType, status, err := r.fetch(ctx, u)
		if err != nil {
			attempts = append(attempts, Attempt{URL: u, StatusCode: status, Err: err.Error()})
			continue
		}
		attempts = append(attempts, Attempt{URL: u, StatusCode: status})
		return Result{URL: u, ContentType: contentType, Body: body}, attempts, nil
	}

	last := attempts[len(attempts)-1]
	return Result{}, attempts, &ExhaustedError{
		Attempts:   attempts,
		LastURL:    last.URL,
		LastStatus: last.StatusCode,
	}
}

func (r *Resolver) fetch(ctx context.Context, u string) (body []byte, contentType string, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("build request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("fetch cover: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, "", resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return nil, "", resp.StatusCode, fmt.Errorf("read cover body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}
