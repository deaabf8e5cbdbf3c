// Package sync implements the incremental synchronization pipeline: one
// bounded invocation of fetch, reconcile, diff-log, cover-cache and cursor
// advancement against a single logical feed.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plotline/catalog-sync/internal/catalog"
	"github.com/plotline/catalog-sync/internal/covers"
	"github.com/plotline/catalog-sync/internal/cursor"
	"github.com/plotline/catalog-sync/internal/diff"
	"github.com/plotline/catalog-sync/internal/metrics"
)

// Config controls Runner defaults. Request parameters override per call.
type Config struct {
	PageLimit  int
	MaxPages   int
	Budget     time.Duration
	MaxItems   int
	WindowCap  int
	SampleSize int
	Topic      string
}

// Params are the per-invocation knobs from the trigger surface.
type Params struct {
	StateID   string
	PageLimit int
	MaxPages  int
	Budget    time.Duration
	MaxItems  int
	// Force keeps fetching past the cursor's stop condition, for backfills.
	Force bool
	// Peek previews the next page without mutating any state.
	Peek bool
	// ExternalID refreshes exactly one entity, bypassing the cursor.
	ExternalID string
}

// Summary is the JSON-facing result of one invocation.
type Summary struct {
	OK         bool                 `json:"ok"`
	StateID    string               `json:"state_id"`
	Mode       catalog.Mode         `json:"mode"`
	StartedAt  time.Time            `json:"started_at"`
	DurationMs int64                `json:"duration_ms"`
	Pages      int                  `json:"pages"`
	Processed  int                  `json:"processed"`
	Refreshed  int                  `json:"refreshed"`
	Enqueued   int                  `json:"enqueued"`
	OKCount    int                  `json:"ok_count"`
	ErrorCount int                  `json:"error_count"`
	Exhausted  bool                 `json:"exhausted"`
	Before     catalog.CrawlState   `json:"cursor_before"`
	After      catalog.CrawlState   `json:"cursor_after"`
	Touched    []catalog.ItemResult `json:"touched,omitempty"`
	Failed     []catalog.ItemResult `json:"failed,omitempty"`
}

// Runner executes the pipeline against one feed per invocation.
type Runner struct {
	feeds     map[string]catalog.Feed
	source    catalog.EntitySource
	states    catalog.StateStore
	mangas    catalog.MangaStore
	deltas    catalog.DeltaStore
	artJobs   catalog.ArtJobStore
	runs      catalog.RunStore
	covers    *covers.Loader
	publisher catalog.Publisher
	clock     catalog.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	feeds []catalog.Feed,
	source catalog.EntitySource,
	states catalog.StateStore,
	mangas catalog.MangaStore,
	deltas catalog.DeltaStore,
	artJobs catalog.ArtJobStore,
	runs catalog.RunStore,
	coverLoader *covers.Loader,
	publisher catalog.Publisher,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 55 * time.Second
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 1000
	}
	if cfg.WindowCap <= 0 {
		cfg.WindowCap = cursor.DefaultWindowCap
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 25
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]catalog.Feed, len(feeds))
	for _, f := range feeds {
		byName[f.Name()] = f
	}
	return &Runner{
		feeds:     byName,
		source:    source,
		states:    states,
		mangas:    mangas,
		deltas:    deltas,
		artJobs:   artJobs,
		runs:      runs,
		covers:    coverLoader,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes one bounded invocation. Resource-acquisition failures (state
// row, page fetch, cursor save) return an error; per-item failures are
// recorded in the summary and processing continues. Telemetry is written on
// both paths, best-effort.
func (r *Runner) Run(ctx context.Context, p Params) (Summary, error) {
	started := r.clock.Now()
	p = r.applyDefaults(p)

	summary := Summary{StateID: p.StateID, StartedAt: started}

	state, err := r.states.GetState(ctx, p.StateID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			err = fmt.Errorf("unknown sync state %q: %w", p.StateID, err)
		}
		r.finish(ctx, &summary, started, err)
		return summary, err
	}
	if p.PageLimit > 0 {
		state.PageLimit = p.PageLimit
	}
	state = cursor.Clamp(state, r.cfg.WindowCap)
	summary.Before = state
	summary.Mode = state.Mode

	if p.ExternalID != "" {
		err = r.refreshOne(ctx, &summary, state, p.ExternalID)
		r.finish(ctx, &summary, started, err)
		return summary, err
	}

	feed, ok := r.feeds[p.StateID]
	if !ok {
		err = fmt.Errorf("no feed registered for state %q", p.StateID)
		r.finish(ctx, &summary, started, err)
		return summary, err
	}

	if p.Peek {
		err = r.peek(ctx, &summary, feed, state)
		r.finish(ctx, &summary, started, err)
		return summary, err
	}

	state, err = r.runLoop(ctx, &summary, feed, state, p, started)
	if err != nil {
		r.finish(ctx, &summary, started, err)
		return summary, err
	}

	state.UpdatedAt = r.clock.Now()
	saved, err := r.states.SaveState(ctx, state)
	if err != nil {
		r.finish(ctx, &summary, started, fmt.Errorf("persist cursor: %w", err))
		return summary, err
	}
	summary.After = saved
	summary.Mode = saved.Mode

	r.finish(ctx, &summary, started, nil)
	return summary, nil
}

func (r *Runner) applyDefaults(p Params) Params {
	if p.MaxPages <= 0 {
		p.MaxPages = r.cfg.MaxPages
	}
	if p.Budget <= 0 {
		p.Budget = r.cfg.Budget
	}
	if p.MaxItems <= 0 {
		p.MaxItems = r.cfg.MaxItems
	}
	return p
}

// runLoop is the fetch→process→advance cycle. It stops before a new page
// when a budget is exhausted, persisting whatever progress was made.
func (r *Runner) runLoop(
	ctx context.Context,
	summary *Summary,
	feed catalog.Feed,
	state catalog.CrawlState,
	p Params,
	started time.Time,
) (catalog.CrawlState, error) {
	for {
		if summary.Pages >= p.MaxPages {
			break
		}
		if summary.Processed+summary.ErrorCount >= p.MaxItems {
			break
		}
		if r.clock.Now().Sub(started) >= p.Budget {
			r.logger.Info("budget exhausted, stopping early",
				zap.String("state", state.ID),
				zap.Int("pages", summary.Pages),
			)
			break
		}

		page, err := feed.FetchPage(ctx, cursor.Query(state))
		if err != nil {
			return state, fmt.Errorf("fetch page for %s: %w", state.ID, err)
		}
		summary.Pages++
		metrics.ObservePage(state.ID)

		okBefore := summary.OKCount
		for i := range page.Items {
			res := r.processItem(ctx, state, page.Items[i])
			r.record(summary, state.ID, res)
		}

		info := cursor.PageInfo{Count: len(page.Items), Total: page.Total}
		if n := len(page.Items); n > 0 {
			info.LastUpdatedAt = page.Items[n-1].UpdatedAt
			info.LastExternalID = page.Items[n-1].ExternalID
		}
		next, exhausted := cursor.Advance(state, info, r.cfg.WindowCap)
		next.Processed = state.Processed + int64(summary.OKCount-okBefore)
		state = next
		summary.Exhausted = exhausted

		if exhausted {
			// Force keeps paging through a "done" cursor, but an empty page
			// means there is genuinely nothing left.
			if !p.Force || len(page.Items) == 0 {
				break
			}
			summary.Exhausted = false
		}
	}
	return state, nil
}

// processItem runs the full per-item pipeline. Every failure is caught and
// returned as an item result; nothing here aborts the batch.
func (r *Runner) processItem(ctx context.Context, state catalog.CrawlState, item catalog.UpstreamManga) catalog.ItemResult {
	externalUpdatedAt := item.UpdatedAt

	if item.NeedsHydration {
		if item.ExternalID == "" {
			return catalog.ItemResult{Error: "activity event has no parent entity"}
		}
		full, err := r.source.GetManga(ctx, item.ExternalID)
		if err != nil {
			return catalog.ItemResult{ExternalID: item.ExternalID, Error: fmt.Sprintf("hydrate: %v", err)}
		}
		item = full
	}

	res := catalog.ItemResult{ExternalID: item.ExternalID}

	// Resolve the pre-upsert row through the external-id link; absence means
	// this is a first sighting.
	var before *catalog.Manga
	id, err := r.mangas.GetIDByExternal(ctx, item.Source, item.ExternalID)
	switch {
	case err == nil:
		row, err := r.mangas.GetByID(ctx, id)
		if err != nil {
			res.Error = fmt.Sprintf("load before snapshot: %v", err)
			return res
		}
		before = &row
	case errors.Is(err, catalog.ErrNotFound):
		// First sighting.
	default:
		res.Error = fmt.Sprintf("resolve external id: %v", err)
		return res
	}

	canonicalID, err := r.mangas.Upsert(ctx, item)
	if err != nil {
		res.Error = fmt.Sprintf("upsert: %v", err)
		return res
	}
	res.MangaID = canonicalID

	after, err := r.mangas.GetByID(ctx, canonicalID)
	if err != nil {
		res.Error = fmt.Sprintf("load after snapshot: %v", err)
		return res
	}

	// The delta log is written before any cover work so a caching failure
	// can never lose the change record.
	entry := diff.Compute(state.ID, before, after, externalUpdatedAt, r.clock.Now())
	if err := r.deltas.Append(ctx, entry); err != nil {
		res.Error = fmt.Sprintf("append delta: %v", err)
		return res
	}
	res.Action = entry.Action

	// Art work is enqueued on every successful upsert, independent of
	// whether the cover below gets cached now: the backlog must stay
	// discoverable for the dedicated art worker.
	if err := r.artJobs.Enqueue(ctx, canonicalID, r.clock.Now()); err != nil {
		res.Error = fmt.Sprintf("enqueue art job: %v", err)
		return res
	}

	if r.publisher != nil && r.cfg.Topic != "" {
		payload := map[string]any{
			"manga_id":    canonicalID,
			"external_id": item.ExternalID,
			"state_id":    state.ID,
		}
		if _, err := r.publisher.Publish(ctx, r.cfg.Topic, payload); err != nil {
			res.Error = fmt.Sprintf("publish art notification: %v", err)
			return res
		}
	}

	if r.covers != nil && item.CoverExternalID != "" {
		cands := []covers.Candidate{{
			ExternalID: item.CoverExternalID,
			Volume:     item.CoverVolume,
			Locale:     item.CoverLocale,
			URLs:       item.CoverCandidates,
		}}
		if _, err := r.covers.Load(ctx, after, cands); err != nil {
			metrics.ObserveCoverDownload("error")
			res.Error = fmt.Sprintf("cache cover: %v", err)
			return res
		}
		metrics.ObserveCoverDownload("ok")
	}

	return res
}

// refreshOne hydrates and processes exactly one entity, including its
// chapter/volume aggregate, without touching the cursor.
func (r *Runner) refreshOne(ctx context.Context, summary *Summary, state catalog.CrawlState, externalID string) error {
	item, err := r.source.GetManga(ctx, externalID)
	if err != nil {
		return fmt.Errorf("fetch entity %s: %w", externalID, err)
	}

	res := r.processItem(ctx, state, item)
	if res.Error == "" && res.MangaID != 0 {
		if totals, err := r.source.GetAggregate(ctx, externalID); err != nil {
			res.Error = fmt.Sprintf("fetch aggregate: %v", err)
		} else if err := r.mangas.UpdateAggregate(ctx, res.MangaID, totals); err != nil {
			res.Error = fmt.Sprintf("update aggregate: %v", err)
		}
	}

	r.record(summary, state.ID, res)
	summary.Refreshed = 1
	summary.Processed = 0
	summary.After = state
	return nil
}

// peek fetches the next page read-only and reports what it would process.
func (r *Runner) peek(ctx context.Context, summary *Summary, feed catalog.Feed, state catalog.CrawlState) error {
	page, err := feed.FetchPage(ctx, cursor.Query(state))
	if err != nil {
		return fmt.Errorf("peek page for %s: %w", state.ID, err)
	}
	summary.Pages = 1
	summary.After = state
	for _, item := range page.Items {
		if len(summary.Touched) >= r.cfg.SampleSize {
			break
		}
		summary.Touched = append(summary.Touched, catalog.ItemResult{ExternalID: item.ExternalID})
	}
	summary.Exhausted = len(page.Items) < state.PageLimit
	return nil
}

// record folds one item result into the summary, keeping bounded samples.
// Only successful items count toward processed; failures count in errors.
func (r *Runner) record(summary *Summary, stateID string, res catalog.ItemResult) {
	if res.Error != "" {
		summary.ErrorCount++
		metrics.ObserveItem(stateID, "error")
		if len(summary.Failed) < r.cfg.SampleSize {
			summary.Failed = append(summary.Failed, res)
		}
		r.logger.Warn("item failed",
			zap.String("state", stateID),
			zap.String("external_id", res.ExternalID),
			zap.String("error", res.Error),
		)
		return
	}
	summary.Processed++
	summary.OKCount++
	summary.Enqueued++
	metrics.ObserveItem(stateID, "ok")
	if len(summary.Touched) < r.cfg.SampleSize {
		summary.Touched = append(summary.Touched, res)
	}
}

// finish stamps the summary and writes the run record. Telemetry failures
// are logged and swallowed so they never mask the primary outcome.
func (r *Runner) finish(ctx context.Context, summary *Summary, started time.Time, runErr error) {
	finished := r.clock.Now()
	summary.DurationMs = finished.Sub(started).Milliseconds()
	summary.OK = runErr == nil

	outcome := "ok"
	if runErr != nil {
		outcome = "error"
	}
	metrics.ObserveRun(summary.StateID, outcome, finished.Sub(started))

	run := catalog.WorkerRun{
		ID:         uuid.NewString(),
		StateID:    summary.StateID,
		Mode:       summary.Mode,
		StartedAt:  started,
		FinishedAt: finished,
		Pages:      summary.Pages,
		Processed:  summary.Processed,
		Refreshed:  summary.Refreshed,
		Enqueued:   summary.Enqueued,
		OKCount:    summary.OKCount,
		ErrorCount: summary.ErrorCount,
		Results:    append(append([]catalog.ItemResult(nil), summary.Touched...), summary.Failed...),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := r.runs.Record(ctx, run); err != nil {
		r.logger.Warn("telemetry write failed",
			zap.String("state", summary.StateID),
			zap.Error(err),
		)
	}
}
