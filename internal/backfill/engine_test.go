package backfill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitals-systems/siphon/internal/aceiot"
	"github.com/vitals-systems/siphon/internal/state"
	"github.com/vitals-systems/siphon/internal/testutil"
	"github.com/vitals-systems/siphon/pkg/types"
)

// pagedAPI serves a fixed number of pages per day, with cursors of the form
// "<day>#<next index>", and records every fetch for assertions.
type pagedAPI struct {
	pagesPerDay int
	fetched     []string // "<day>#<index>" per fetch
	failOn      string   // fetch key that fails
	failWith    error
}

func (p *pagedAPI) fetchKey(day string, idx int) string {
	return fmt.Sprintf("%s#%d", day, idx)
}

func (p *pagedAPI) FetchPage(_ context.Context, site string, start, _ time.Time, cursor string) (*aceiot.Page, error) {
	day := start.UTC().Format("2006-01-02")
	idx := 0
	if cursor != "" {
		parts := strings.SplitN(cursor, "#", 2)
		idx, _ = strconv.Atoi(parts[1])
	}
	key := p.fetchKey(day, idx)
	p.fetched = append(p.fetched, key)
	if key == p.failOn {
		return nil, p.failWith
	}

	page := &aceiot.Page{
		Samples: []types.Sample{{
			Site:      site,
			PointName: "meter/kw",
			Timestamp: start.UnixMilli() + int64(idx)*60_000,
			Value:     float64(idx),
		}},
	}
	if idx+1 < p.pagesPerDay {
		page.NextCursor = p.fetchKey(day, idx+1)
		page.HasMore = true
	}
	return page, nil
}

func (p *pagedAPI) FetchPointsBatch(_ context.Context, site string, _ []string, start, _ time.Time) ([]types.Sample, int, error) {
	day := start.UTC().Format("2006-01-02")
	p.fetched = append(p.fetched, "batch:"+day)
	return []types.Sample{{Site: site, PointName: "meter/kw", Timestamp: start.UnixMilli(), Value: 1}}, 0, nil
}

func newTestEngine(api API, cold ColdStore, states *testutil.MemoryState, cfg Config) *Engine {
	return New(api, cold, states, states, cfg)
}

func startReq() Request {
	return Request{Site: "hq", RangeStart: "2024-12-10", RangeEnd: "2024-12-11"}
}

func TestTrigger_CompletesRangeAcrossInvocations(t *testing.T) {
	states := testutil.NewMemoryState()
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{pagesPerDay: 2}
	e := newTestEngine(api, cold, states, Config{PagesPerInvocation: 2})
	ctx := context.Background()

	// Invocation 1: both pages of day one.
	res, err := e.Trigger(ctx, startReq())
	require.NoError(t, err)
	assert.Equal(t, types.BackfillInProgress, res.Status)
	assert.True(t, res.Continuation)
	assert.Equal(t, []string{"2024-12-10"}, res.Progress.CompletedDates)

	// Invocation 2: both pages of day two, range complete.
	res, err = e.Trigger(ctx, Request{Site: "hq"})
	require.NoError(t, err)
	assert.Equal(t, types.BackfillComplete, res.Status)
	assert.False(t, res.Continuation)
	assert.Equal(t, []string{"2024-12-10", "2024-12-11"}, res.Progress.CompletedDates)
	assert.InDelta(t, 100.0, res.Progress.Percent, 0.01)

	// One cold object per page.
	assert.Equal(t, 4, cold.ObjectCount())

	// A further trigger is a no-op on a complete backfill.
	res, err = e.Trigger(ctx, Request{Site: "hq"})
	require.NoError(t, err)
	assert.Equal(t, types.BackfillComplete, res.Status)
	assert.Len(t, api.fetched, 4)
}

func TestTrigger_ResumesAtExactCursorAfterRestart(t *testing.T) {
	states := testutil.NewMemoryState()
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{pagesPerDay: 3}
	e := newTestEngine(api, cold, states, Config{PagesPerInvocation: 2})
	ctx := context.Background()

	_, err := e.Trigger(ctx, startReq())
	require.NoError(t, err)

	st, err := states.GetBackfillState(ctx, "hq")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "2024-12-10", st.CurrentDate)
	assert.Equal(t, "2024-12-10#2", st.Cursor, "mid-day cursor persisted after every page")

	// Fresh engine instance, same state store: simulates a process restart.
	api2 := &pagedAPI{pagesPerDay: 3}
	e2 := newTestEngine(api2, cold, states, Config{PagesPerInvocation: 2})
	_, err = e2.Trigger(ctx, Request{Site: "hq"})
	require.NoError(t, err)

	// The restarted engine starts at page index 2, never re-fetching pages
	// the cursor already advanced past.
	require.NotEmpty(t, api2.fetched)
	assert.Equal(t, "2024-12-10#2", api2.fetched[0])
}

func TestTrigger_DateAdvancesOnlyOnEmptyCursor(t *testing.T) {
	states := testutil.NewMemoryState()
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{pagesPerDay: 4}
	e := newTestEngine(api, cold, states, Config{PagesPerInvocation: 3})
	ctx := context.Background()

	_, err := e.Trigger(ctx, startReq())
	require.NoError(t, err)

	st, err := states.GetBackfillState(ctx, "hq")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Empty(t, st.CompletedDates, "day with pages remaining is not complete")
	assert.Equal(t, "2024-12-10", st.CurrentDate)

	_, err = e.Trigger(ctx, Request{Site: "hq"})
	require.NoError(t, err)
	st, err = states.GetBackfillState(ctx, "hq")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-12-10"}, st.CompletedDates)
	assert.Equal(t, "2024-12-11", st.CurrentDate)
}

func TestTrigger_TransientErrorRetriesSamePage(t *testing.T) {
	states := testutil.NewMemoryState()
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{
		pagesPerDay: 2,
		failOn:      "2024-12-10#1",
		failWith:    &aceiot.APIError{StatusCode: 500, Body: "gateway error"},
	}
	e := newTestEngine(api, cold, states, Config{PagesPerInvocation: 5})
	ctx := context.Background()

	_, err := e.Trigger(ctx, startReq())
	require.Error(t, err)

	st, err := states.GetBackfillState(ctx, "hq")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, types.BackfillInProgress, st.Status)
	assert.Equal(t, "2024-12-10", st.CurrentDate, "no date advance on error")
	assert.Equal(t, "2024-12-10#1", st.Cursor, "failed page stays current")
	assert.NotEmpty(t, st.Errors)

	// Next invocation retries the exact same page and finishes the range.
	api.failOn = ""
	res, err := e.Trigger(ctx, Request{Site: "hq"})
	require.NoError(t, err)
	assert.Equal(t, types.BackfillComplete, res.Status)
	assert.Contains(t, api.fetched, "2024-12-10#1")
}

func TestTrigger_PermanentErrorEndsBackfill(t *testing.T) {
	states := testutil.NewMemoryState()
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{
		pagesPerDay: 2,
		failOn:      "2024-12-10#0",
		failWith:    &aceiot.APIError{StatusCode: 404, Body: "unknown site"},
	}
	var alerts []types.Alert
	e := New(api, cold, states, states, Config{},
		WithAlertFunc(func(a types.Alert) { alerts = append(alerts, a) }))
	ctx := context.Background()

	_, err := e.Trigger(ctx, startReq())
	require.Error(t, err)

	st, err := states.GetBackfillState(ctx, "hq")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, types.BackfillError, st.Status)
	require.Len(t, alerts, 1)
	assert.Equal(t, types.AlertLevelError, alerts[0].Level)

	// Terminal state: further triggers do not fetch.
	before := len(api.fetched)
	res, err := e.Trigger(ctx, Request{Site: "hq"})
	require.NoError(t, err)
	assert.Equal(t, types.BackfillError, res.Status)
	assert.Len(t, api.fetched, before)
}

func TestTrigger_ResetClearsState(t *testing.T) {
	states := testutil.NewMemoryState()
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{pagesPerDay: 1}
	e := newTestEngine(api, cold, states, Config{PagesPerInvocation: 1})
	ctx := context.Background()

	_, err := e.Trigger(ctx, startReq())
	require.NoError(t, err)

	res, err := e.Trigger(ctx, Request{Site: "hq", Action: types.ActionReset})
	require.NoError(t, err)
	assert.Equal(t, types.BackfillNotStarted, res.Status)

	st, err := states.GetBackfillState(ctx, "hq")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestTrigger_TargetedPointsUseBatchFetch(t *testing.T) {
	states := testutil.NewMemoryState()
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{pagesPerDay: 3}
	e := newTestEngine(api, cold, states, Config{PagesPerInvocation: 5})
	ctx := context.Background()

	req := startReq()
	req.PointNames = []string{"meter/kw", "meter/kvar"}
	res, err := e.Trigger(ctx, req)
	require.NoError(t, err)

	// Targeted mode is one batch call per day, no cursor walking.
	assert.Equal(t, []string{"batch:2024-12-10", "batch:2024-12-11"}, api.fetched)
	assert.Equal(t, types.BackfillComplete, res.Status)
}

func TestTrigger_NewestFirstWalksBackwards(t *testing.T) {
	states := testutil.NewMemoryState()
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{pagesPerDay: 1}
	e := newTestEngine(api, cold, states, Config{PagesPerInvocation: 5})
	ctx := context.Background()

	req := startReq()
	req.NewestFirst = true
	res, err := e.Trigger(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, types.BackfillComplete, res.Status)
	assert.Equal(t, []string{"2024-12-11", "2024-12-10"}, res.Progress.CompletedDates)
}

func TestTrigger_LockContendedSkipsProcessing(t *testing.T) {
	states := testutil.NewMemoryState()
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{pagesPerDay: 2}
	e := newTestEngine(api, cold, states, Config{})
	ctx := context.Background()

	ok, err := states.AcquireLock(ctx, state.BackfillLockKey("hq"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := e.Trigger(ctx, startReq())
	require.NoError(t, err)
	assert.True(t, res.Continuation)
	assert.Empty(t, api.fetched, "contended invocation must not double-process")
}

func TestTrigger_StartRequiresRange(t *testing.T) {
	states := testutil.NewMemoryState()
	e := newTestEngine(&pagedAPI{pagesPerDay: 1}, testutil.NewMemoryCold(), states, Config{})

	_, err := e.Trigger(context.Background(), Request{Site: "hq"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rangeStart")

	_, err = e.Trigger(context.Background(), Request{})
	require.Error(t, err)
}

func TestTrigger_LockFailOpenStillProcesses(t *testing.T) {
	states := testutil.NewMemoryState()
	states.LockErr = errors.New("dynamo unreachable")
	cold := testutil.NewMemoryCold()
	api := &pagedAPI{pagesPerDay: 1}
	e := newTestEngine(api, cold, states, Config{PagesPerInvocation: 5})

	res, err := e.Trigger(context.Background(), startReq())
	require.NoError(t, err)
	assert.Equal(t, types.BackfillComplete, res.Status)
	assert.NotEmpty(t, api.fetched)
}

func TestStatus_UnknownSite(t *testing.T) {
	states := testutil.NewMemoryState()
	e := newTestEngine(&pagedAPI{}, testutil.NewMemoryCold(), states, Config{})

	res, err := e.Status(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, types.BackfillNotStarted, res.Status)
}
