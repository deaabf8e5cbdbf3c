package cursor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plotline/catalog-sync/internal/catalog"
)

func offsetState(offset, limit int) catalog.CrawlState {
	return catalog.CrawlState{
		ID:        "manga",
		Mode:      catalog.ModeOffset,
		Offset:    offset,
		PageLimit: limit,
	}
}

func windowState(since time.Time, offset, limit int) catalog.CrawlState {
	return catalog.CrawlState{
		ID:           "manga",
		Mode:         catalog.ModeUpdatedWindow,
		UpdatedSince: since,
		Offset:       offset,
		PageLimit:    limit,
	}
}

func TestQueryOffsetModeOmitsTimestamp(t *testing.T) {
	t.Parallel()

	q := Query(offsetState(300, 100))
	require.Equal(t, 100, q.Limit)
	require.Equal(t, 300, q.Offset)
	require.True(t, q.UpdatedSince.IsZero())
}

func TestQueryWindowModeCarriesTimestamp(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q := Query(windowState(since, 200, 100))
	require.Equal(t, 100, q.Limit)
	require.Equal(t, 200, q.Offset)
	require.Equal(t, since, q.UpdatedSince)
}

func TestAdvanceEmptyPageIsExhausted(t *testing.T) {
	t.Parallel()

	state := offsetState(500, 100)
	next, exhausted := Advance(state, PageInfo{Count: 0}, DefaultWindowCap)
	require.True(t, exhausted)
	require.Equal(t, state, next)
}

func TestAdvanceOffsetStepsForward(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	next, exhausted := Advance(offsetState(0, 100), PageInfo{
		Count:          100,
		LastUpdatedAt:  ts,
		LastExternalID: "ext-100",
		Total:          84000,
	}, DefaultWindowCap)
	require.False(t, exhausted)
	require.Equal(t, catalog.ModeOffset, next.Mode)
	require.Equal(t, 100, next.Offset)
	require.Equal(t, 84000, next.Total)
	require.Equal(t, "ext-100", next.LastExternalID)
}

func TestAdvanceOffsetExhaustedAtTotal(t *testing.T) {
	t.Parallel()

	state := offsetState(400, 100)
	state.Total = 450
	next, exhausted := Advance(state, PageInfo{Count: 50, LastUpdatedAt: time.Now(), Total: 450}, DefaultWindowCap)
	require.True(t, exhausted)
	require.Equal(t, catalog.ModeOffset, next.Mode)
	require.Equal(t, 500, next.Offset)
}

func TestAdvanceOffsetSmallFeedNeverSwitches(t *testing.T) {
	t.Parallel()

	// Exhaustion is decided before the window check: a feed smaller than
	// the cap finishes in offset mode even at its final page.
	state := offsetState(9900, 100)
	state.Total = 10000
	next, exhausted := Advance(state, PageInfo{Count: 100, LastUpdatedAt: time.Now(), Total: 10000}, DefaultWindowCap)
	require.True(t, exhausted)
	require.Equal(t, catalog.ModeOffset, next.Mode)
}

func TestAdvanceOffsetSwitchesAtWindowCap(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	state := offsetState(9800, 100)
	state.Total = 84000

	// next=9900 still fits; next+limit=10000 fits exactly; only the page after
	// crosses the cap.
	next, exhausted := Advance(state, PageInfo{Count: 100, LastUpdatedAt: ts, Total: 84000}, DefaultWindowCap)
	require.False(t, exhausted)
	require.Equal(t, catalog.ModeOffset, next.Mode)
	require.Equal(t, 9900, next.Offset)

	next, exhausted = Advance(next, PageInfo{Count: 100, LastUpdatedAt: ts, Total: 84000}, DefaultWindowCap)
	require.False(t, exhausted)
	require.Equal(t, catalog.ModeUpdatedWindow, next.Mode)
	require.Equal(t, 0, next.Offset)
	require.Equal(t, ts, next.UpdatedSince)
}

func TestAdvanceWindowShortPageSealsBucket(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	last := since.Add(45 * time.Minute)
	next, exhausted := Advance(windowState(since, 0, 100), PageInfo{
		Count:         40,
		LastUpdatedAt: last,
	}, DefaultWindowCap)
	require.True(t, exhausted)
	require.Equal(t, last.Add(time.Millisecond), next.UpdatedSince)
	require.Equal(t, 0, next.Offset)
}

func TestAdvanceWindowFullPageSameTimestampSubPaginates(t *testing.T) {
	t.Parallel()

	// A burst import can stamp more than one page of items with one
	// timestamp; the cursor must page inside the bucket by offset.
	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	next, exhausted := Advance(windowState(since, 0, 100), PageInfo{
		Count:         100,
		LastUpdatedAt: since,
	}, DefaultWindowCap)
	require.False(t, exhausted)
	require.Equal(t, since, next.UpdatedSince)
	require.Equal(t, 100, next.Offset)

	next, exhausted = Advance(next, PageInfo{Count: 100, LastUpdatedAt: since}, DefaultWindowCap)
	require.False(t, exhausted)
	require.Equal(t, 200, next.Offset)
}

func TestAdvanceWindowFullPageNewTimestampMovesBucket(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	last := since.Add(10 * time.Minute)
	next, exhausted := Advance(windowState(since, 300, 100), PageInfo{
		Count:         100,
		LastUpdatedAt: last,
	}, DefaultWindowCap)
	require.False(t, exhausted)
	require.Equal(t, last.Add(time.Millisecond), next.UpdatedSince)
	require.Equal(t, 0, next.Offset)
}

func TestAdvanceWindowTimestampNeverRegresses(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	state := windowState(since, 0, 100)
	for i := 0; i < 5; i++ {
		next, _ := Advance(state, PageInfo{
			Count:         100,
			LastUpdatedAt: since.Add(time.Duration(i) * time.Minute),
		}, DefaultWindowCap)
		require.False(t, next.UpdatedSince.Before(state.UpdatedSince))
		state = next
	}
}

func TestRewindToOffsetMode(t *testing.T) {
	t.Parallel()

	state := windowState(time.Now(), 300, 100)
	state.Total = 84000
	state.LastExternalID = "ext-9"

	reset := Rewind(state, catalog.ModeOffset, time.Time{})
	require.Equal(t, catalog.ModeOffset, reset.Mode)
	require.Equal(t, 0, reset.Offset)
	require.Equal(t, 0, reset.Total)
	require.Empty(t, reset.LastExternalID)
	require.True(t, reset.UpdatedSince.IsZero())
}

func TestRewindToWindowMode(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reset := Rewind(offsetState(500, 100), catalog.ModeUpdatedWindow, since)
	require.Equal(t, catalog.ModeUpdatedWindow, reset.Mode)
	require.Equal(t, since, reset.UpdatedSince)
	require.Equal(t, 0, reset.Offset)
}

func TestClampBoundsWidenedLimitAtWindowEdge(t *testing.T) {
	t.Parallel()

	// A cursor parked near the window edge stays valid when a request
	// re-widens the page limit.
	clamped := Clamp(offsetState(9950, 100), 10000)
	require.Equal(t, 50, clamped.PageLimit)
	require.Equal(t, 9950, clamped.Offset)
}

func TestClampLeavesRoomyCursorAlone(t *testing.T) {
	t.Parallel()

	state := Clamp(offsetState(100, 100), 10000)
	require.Equal(t, 100, state.PageLimit)
	require.Equal(t, 100, state.Offset)
}

func TestClampIgnoresWindowMode(t *testing.T) {
	t.Parallel()

	// Window-mode offsets are bucket-relative, not window positions.
	state := Clamp(windowState(time.Now(), 9950, 100), 10000)
	require.Equal(t, 100, state.PageLimit)
	require.Equal(t, 9950, state.Offset)
}
