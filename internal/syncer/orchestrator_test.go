package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitals-systems/siphon/internal/aceiot"
	"github.com/vitals-systems/siphon/internal/state"
	"github.com/vitals-systems/siphon/internal/testutil"
	"github.com/vitals-systems/siphon/pkg/types"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(api API, hot HotStore, states *testutil.MemoryState, cfg Config) *Orchestrator {
	return New(api, hot, states, states, cfg, WithClock(func() time.Time { return testNow }))
}

func pageOf(samples ...types.Sample) *aceiot.Page {
	return &aceiot.Page{Samples: samples}
}

func sample(site, point string, at time.Time, v float64) types.Sample {
	return types.Sample{Site: site, PointName: point, Timestamp: at.UnixMilli(), Value: v}
}

func TestRun_FirstSyncAdvancesCursorToMaxWritten(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	newest := testNow.Add(-30 * time.Second)
	api := &testutil.FakeAPI{
		FetchPageFunc: func(_ context.Context, site string, _, _ time.Time, _ string) (*aceiot.Page, error) {
			return pageOf(
				sample(site, "ahu1/temp", testNow.Add(-60*time.Second), 21.5),
				sample(site, "ahu1/temp", newest, 21.7),
			), nil
		},
	}
	o := newTestOrchestrator(api, hot, states, Config{Sites: []string{"hq"}})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SitesSynced)
	assert.Zero(t, report.SitesFailed)
	assert.True(t, report.LockAcquired)

	st, err := states.GetSyncState(context.Background(), "hq")
	require.NoError(t, err)
	require.NotNil(t, st)
	// Cursor is the max timestamp actually written, never the wall clock.
	assert.Equal(t, newest.UnixMilli(), st.LastSync)
	assert.Equal(t, 2, hot.Count())
}

func TestRun_ZeroSamplesLeavesCursorUnchanged(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	api := &testutil.FakeAPI{
		FetchPageFunc: func(context.Context, string, time.Time, time.Time, string) (*aceiot.Page, error) {
			return pageOf(), nil
		},
	}
	o := newTestOrchestrator(api, hot, states, Config{Sites: []string{"hq"}, MaxCycles: 1})

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	st, err := states.GetSyncState(context.Background(), "hq")
	require.NoError(t, err)
	assert.Nil(t, st, "empty window must not create or advance a cursor")
}

func TestRun_CursorNeverDecreases(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	ahead := testNow.Add(-time.Minute)
	require.NoError(t, states.PutSyncState(context.Background(), types.SyncState{
		Site: "hq", LastSync: ahead.UnixMilli(), UpdatedAt: testNow,
	}))
	api := &testutil.FakeAPI{
		FetchPageFunc: func(_ context.Context, site string, _, _ time.Time, _ string) (*aceiot.Page, error) {
			// Lookback overlap re-surfaces an older sample.
			return pageOf(sample(site, "ahu1/temp", testNow.Add(-10*time.Minute), 20.0)), nil
		},
	}
	o := newTestOrchestrator(api, hot, states, Config{Sites: []string{"hq"}, MaxCycles: 1})

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	st, err := states.GetSyncState(context.Background(), "hq")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, ahead.UnixMilli(), st.LastSync)
}

func TestRun_PaginatesUntilCursorEmpty(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	api := &testutil.FakeAPI{
		FetchPageFunc: func(_ context.Context, site string, _, _ time.Time, cursor string) (*aceiot.Page, error) {
			if cursor == "" {
				p := pageOf(sample(site, "a", testNow.Add(-2*time.Minute), 1))
				p.NextCursor = "page2"
				p.HasMore = true
				return p, nil
			}
			// has_more lies on the last page; the empty cursor is
			// authoritative.
			p := pageOf(sample(site, "b", testNow.Add(-time.Minute), 2))
			p.HasMore = true
			return p, nil
		},
	}
	o := newTestOrchestrator(api, hot, states, Config{Sites: []string{"hq"}, MaxCycles: 1})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Sites, 1)
	assert.Equal(t, 2, report.Sites[0].Pages)
	assert.Equal(t, 2, report.Sites[0].SamplesWritten)
}

func TestRun_SiteFailureDoesNotAbortBatch(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	api := &testutil.FakeAPI{
		FetchPageFunc: func(_ context.Context, site string, _, _ time.Time, _ string) (*aceiot.Page, error) {
			if site == "broken" {
				return nil, &aceiot.APIError{StatusCode: 404, Body: "unknown site"}
			}
			return pageOf(sample(site, "p", testNow.Add(-time.Minute), 3)), nil
		},
	}
	o := newTestOrchestrator(api, hot, states, Config{Sites: []string{"broken", "hq"}, MaxCycles: 1})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SitesFailed)
	assert.Equal(t, 1, report.SitesSynced)

	st, err := states.GetSyncState(context.Background(), "hq")
	require.NoError(t, err)
	require.NotNil(t, st, "healthy site still advances despite sibling failure")
	brokenSt, err := states.GetSyncState(context.Background(), "broken")
	require.NoError(t, err)
	assert.Nil(t, brokenSt)
}

func TestRun_LockFailsOpen(t *testing.T) {
	states := testutil.NewMemoryState()
	states.LockErr = errors.New("dynamo unreachable")
	hot := testutil.NewMemoryHot()
	api := &testutil.FakeAPI{
		FetchPageFunc: func(_ context.Context, site string, _, _ time.Time, _ string) (*aceiot.Page, error) {
			return pageOf(sample(site, "p", testNow.Add(-time.Minute), 1)), nil
		},
	}
	var alerts []types.Alert
	o := New(api, hot, states, states, Config{Sites: []string{"hq"}, MaxCycles: 1},
		WithClock(func() time.Time { return testNow }),
		WithAlertFunc(func(a types.Alert) { alerts = append(alerts, a) }))

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.LockFailOpen)
	assert.Equal(t, 1, report.SitesSynced, "lock store failure must not stall the pipeline")
	require.Len(t, alerts, 1)
	assert.Equal(t, types.AlertLevelWarning, alerts[0].Level)
}

func TestRun_LockContendedSkipsInvocation(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	fetches := 0
	api := &testutil.FakeAPI{
		FetchPageFunc: func(context.Context, string, time.Time, time.Time, string) (*aceiot.Page, error) {
			fetches++
			return pageOf(), nil
		},
	}
	ok, err := states.AcquireLock(context.Background(), state.SyncLockKey(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	o := newTestOrchestrator(api, hot, states, Config{Sites: []string{"hq"}})
	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.LockAcquired)
	assert.Zero(t, fetches, "contended invocation must not double-process")
}

func TestRun_CatchUpStopsAtCycleCap(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	cycles := 0
	api := &testutil.FakeAPI{
		FetchPageFunc: func(_ context.Context, site string, _, _ time.Time, _ string) (*aceiot.Page, error) {
			cycles++
			// Data stays an hour behind, so lag never reaches target.
			return pageOf(sample(site, "p", testNow.Add(-time.Hour), float64(cycles))), nil
		},
	}
	o := newTestOrchestrator(api, hot, states, Config{
		Sites: []string{"hq"}, MaxCycles: 3, Budget: time.Hour,
	})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Cycles)
	assert.Equal(t, 3, cycles)
}

func TestRun_CatchUpExitsOnceFresh(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	fetches := 0
	api := &testutil.FakeAPI{
		FetchPageFunc: func(_ context.Context, site string, _, _ time.Time, _ string) (*aceiot.Page, error) {
			fetches++
			return pageOf(sample(site, "p", testNow.Add(-10*time.Second), 1)), nil
		},
	}
	o := newTestOrchestrator(api, hot, states, Config{
		Sites: []string{"hq"}, MaxCycles: 5, Budget: time.Hour,
	})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cycles, "fresh data exits the catch-up loop early")
	assert.Equal(t, 1, fetches)
}

func TestSelectSites_UrgentFirstThenRotation(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	ctx := context.Background()

	// a and b are fresh, c is stale beyond urgent, d has no data at all.
	_, err := hot.UpsertSamples(ctx, []types.Sample{
		sample("a", "p", testNow.Add(-10*time.Second), 1),
		sample("b", "p", testNow.Add(-20*time.Second), 1),
		sample("c", "p", testNow.Add(-2*time.Hour), 1),
	})
	require.NoError(t, err)

	o := newTestOrchestrator(&testutil.FakeAPI{}, hot, states, Config{
		Sites: []string{"a", "b", "c", "d"}, MaxSitesPerRun: 2,
	})

	selected, _, err := o.selectSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, selected)
}

func TestSelectSites_RotationAdvancesAcrossInvocations(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	ctx := context.Background()

	// All sites fresh: selection is purely rotational.
	for _, site := range []string{"a", "b", "c", "d"} {
		_, err := hot.UpsertSamples(ctx, []types.Sample{sample(site, "p", testNow.Add(-time.Second), 1)})
		require.NoError(t, err)
	}

	o := newTestOrchestrator(&testutil.FakeAPI{}, hot, states, Config{
		Sites: []string{"a", "b", "c", "d"}, MaxSitesPerRun: 2,
	})

	first, _, err := o.selectSites(ctx)
	require.NoError(t, err)
	second, _, err := o.selectSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, first)
	assert.Equal(t, []string{"c", "d"}, second)
}

func TestCandidateSites_FallsBackToDiscovery(t *testing.T) {
	states := testutil.NewMemoryState()
	hot := testutil.NewMemoryHot()
	api := &testutil.FakeAPI{
		ListSitesFunc: func(context.Context) ([]string, error) {
			return []string{"remote-1", "remote-2"}, nil
		},
	}
	o := newTestOrchestrator(api, hot, states, Config{})

	sites, err := o.candidateSites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"remote-1", "remote-2"}, sites)
}
