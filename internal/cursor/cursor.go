// Package cursor implements the dual-mode pagination engine. The upstream's
// offset pagination rejects requests past a fixed window, so a crawl that
// outgrows the window switches to addressing by ascending modification time,
// sub-paginating inside each identical-timestamp bucket by offset.
//
// Advance is a pure function: it never mutates shared state and never touches
// storage. The caller persists the returned state after a successful batch.
package cursor

import (
	"time"

	"github.com/plotline/catalog-sync/internal/catalog"
)

// DefaultWindowCap is the upstream's maximum supported offset+limit.
const DefaultWindowCap = 10000

// bucketStep is the smallest time increment the upstream distinguishes;
// sealing a bucket bumps the timestamp by exactly this much so no item is
// skipped or duplicated at the boundary.
const bucketStep = time.Millisecond

// PageInfo summarizes a fetched page for cursor advancement.
type PageInfo struct {
	// Count is the number of items the page returned.
	Count int
	// LastUpdatedAt is the modification timestamp of the final item.
	LastUpdatedAt time.Time
	// LastExternalID is the external id of the final item.
	LastExternalID string
	// Total is the feed size the response reported; 0 = not reported.
	Total int
}

// Query builds the upstream request parameters for the state's current
// position.
func Query(state catalog.CrawlState) catalog.FeedQuery {
	q := catalog.FeedQuery{
		Limit:  state.PageLimit,
		Offset: state.Offset,
	}
	if state.Mode == catalog.ModeUpdatedWindow {
		q.UpdatedSince = state.UpdatedSince
	}
	return q
}

// Clamp bounds an offset-mode cursor so its next fetch cannot cross the
// pagination window. A stored cursor is always valid under its own page
// limit, but a per-request limit override can re-widen the page past the
// remaining room.
func Clamp(state catalog.CrawlState, windowCap int) catalog.CrawlState {
	if windowCap <= 0 {
		windowCap = DefaultWindowCap
	}
	if state.Mode == catalog.ModeUpdatedWindow {
		return state
	}
	if remaining := windowCap - state.Offset; remaining > 0 && state.PageLimit > remaining {
		state.PageLimit = remaining
	}
	return state
}

// Advance returns the state positioned at the next page, and whether the
// feed is exhausted. Within a mode the returned cursor is monotonically
// non-decreasing under the mode's ordering.
func Advance(state catalog.CrawlState, page PageInfo, windowCap int) (catalog.CrawlState, bool) {
	if windowCap <= 0 {
		windowCap = DefaultWindowCap
	}
	if page.Count == 0 {
		return state, true
	}

	state.LastExternalID = page.LastExternalID

	switch state.Mode {
	case catalog.ModeUpdatedWindow:
		return advanceWindow(state, page)
	default:
		return advanceOffset(state, page, windowCap)
	}
}

func advanceOffset(state catalog.CrawlState, page PageInfo, windowCap int) (catalog.CrawlState, bool) {
	if page.Total > 0 {
		state.Total = page.Total
	}

	next := state.Offset + state.PageLimit
	state.Offset = next

	if state.Total > 0 && next >= state.Total {
		return state, true
	}

	// The next fetch would cross the upstream's pagination window; hand the
	// position over to timestamp addressing, seeded from the last item seen.
	if next+state.PageLimit > windowCap {
		state.Mode = catalog.ModeUpdatedWindow
		state.UpdatedSince = page.LastUpdatedAt
		state.Offset = 0
	}
	return state, false
}

func advanceWindow(state catalog.CrawlState, page PageInfo) (catalog.CrawlState, bool) {
	// A short page means the feed is drained. Seal the bucket so the next
	// invocation resumes past everything already seen.
	if page.Count < state.PageLimit {
		state.UpdatedSince = page.LastUpdatedAt.Add(bucketStep)
		state.Offset = 0
		return state, true
	}

	// Full page ending inside the current bucket: keep sub-paginating it.
	if page.LastUpdatedAt.Equal(state.UpdatedSince) {
		state.Offset += state.PageLimit
		return state, false
	}

	// Full page that moved past the bucket: start the next one just beyond
	// the last timestamp seen.
	state.UpdatedSince = page.LastUpdatedAt.Add(bucketStep)
	state.Offset = 0
	return state, false
}

// Rewind resets the cursor for an operator-driven backfill: offset mode with
// a zeroed offset, or window mode rewound to the given timestamp.
func Rewind(state catalog.CrawlState, mode catalog.Mode, since time.Time) catalog.CrawlState {
	state.Mode = mode
	state.Offset = 0
	state.Total = 0
	state.LastExternalID = ""
	if mode == catalog.ModeUpdatedWindow {
		state.UpdatedSince = since
	} else {
		state.UpdatedSince = time.Time{}
	}
	return state
}
