// Package syncer implements the incremental sync orchestrator: per-site time
// windows, bounded site selection, idempotent hot-store writes, and the
// catch-up loop that runs extra cycles while hot data trails the present.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vitals-systems/siphon/internal/aceiot"
	"github.com/vitals-systems/siphon/internal/metrics"
	"github.com/vitals-systems/siphon/internal/state"
	"github.com/vitals-systems/siphon/internal/telemetry"
	"github.com/vitals-systems/siphon/pkg/types"
)

// Default tuning. Overridable per deployment through Config.
const (
	DefaultLookback         = 5 * time.Minute
	DefaultFirstRunLookback = 24 * time.Hour
	DefaultMaxWindow        = 30 * time.Minute
	DefaultMaxSitesPerRun   = 6
	DefaultTargetLag        = 90 * time.Second
	DefaultUrgentLag        = 15 * time.Minute
	DefaultMaxCycles        = 5
	DefaultBudget           = 90 * time.Second
	DefaultLockTTL          = 2 * time.Minute
)

// API is the slice of the timeseries client the orchestrator consumes.
type API interface {
	FetchPage(ctx context.Context, site string, start, end time.Time, cursor string) (*aceiot.Page, error)
	ListSites(ctx context.Context) ([]string, error)
}

// HotStore is the slice of the hot store the orchestrator consumes.
type HotStore interface {
	UpsertSamples(ctx context.Context, samples []types.Sample) (int, error)
	MaxSampleTime(ctx context.Context, site string) (int64, bool, error)
	DistinctSites(ctx context.Context) ([]string, error)
}

// Config tunes one orchestrator instance. Zero fields take package defaults.
type Config struct {
	Sites            []string // empty = discover
	Lookback         time.Duration
	FirstRunLookback time.Duration
	MaxWindow        time.Duration
	MaxSitesPerRun   int
	TargetLag        time.Duration
	UrgentLag        time.Duration
	MaxCycles        int
	Budget           time.Duration
	LockTTL          time.Duration
}

func (c Config) withDefaults() Config {
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	if c.FirstRunLookback <= 0 {
		c.FirstRunLookback = DefaultFirstRunLookback
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = DefaultMaxWindow
	}
	if c.MaxSitesPerRun <= 0 {
		c.MaxSitesPerRun = DefaultMaxSitesPerRun
	}
	if c.TargetLag <= 0 {
		c.TargetLag = DefaultTargetLag
	}
	if c.UrgentLag <= 0 {
		c.UrgentLag = DefaultUrgentLag
	}
	if c.MaxCycles <= 0 {
		c.MaxCycles = DefaultMaxCycles
	}
	if c.Budget <= 0 {
		c.Budget = DefaultBudget
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	return c
}

// Orchestrator drives one sync invocation end to end.
type Orchestrator struct {
	api     API
	hot     HotStore
	states  state.Store
	locker  state.Locker
	cfg     Config
	alertFn func(types.Alert)
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithAlertFunc sets the alert callback for retry exhaustion and lock
// fail-open events.
func WithAlertFunc(fn func(types.Alert)) Option {
	return func(o *Orchestrator) { o.alertFn = fn }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(api API, hot HotStore, states state.Store, locker state.Locker, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:     api,
		hot:     hot,
		states:  states,
		locker:  locker,
		cfg:     cfg.withDefaults(),
		alertFn: func(types.Alert) {},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one sync invocation: acquire the run lock, sync the selected
// sites, then repeat bounded catch-up cycles while any site still lags the
// target. Per-site failures are reported, not propagated; only an
// unavailable state store aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (*types.SyncRunReport, error) {
	started := o.now()
	report := &types.SyncRunReport{
		RunID:     ulid.Make().String(),
		StartedAt: started,
	}
	metrics.SyncRunsTotal.Add(1)

	ctx, span := telemetry.StartSpan(ctx, "syncer.run", telemetry.AttrRunID.String(report.RunID))
	defer span.End()

	acquired, err := o.locker.AcquireLock(ctx, state.SyncLockKey(), o.cfg.LockTTL)
	if err != nil {
		// The lock only prevents wasted duplicate work; idempotent upserts
		// protect correctness. Fail open.
		metrics.LockFailOpens.Add(1)
		o.logger.Warn("lock store unreachable, proceeding without lock", "error", err)
		o.alertFn(types.Alert{
			Level:     types.AlertLevelWarning,
			Category:  "lock_fail_open",
			Message:   "sync run lock store unreachable, proceeding unlocked",
			Details:   map[string]interface{}{"error": err.Error()},
			Timestamp: o.now(),
		})
		report.LockAcquired = true
		report.LockFailOpen = true
	} else if !acquired {
		metrics.LockContended.Add(1)
		o.logger.Info("sync run lock held elsewhere, skipping invocation")
		report.DurationMS = o.now().Sub(started).Milliseconds()
		return report, nil
	} else {
		report.LockAcquired = true
		defer func() {
			if err := o.locker.ReleaseLock(ctx, state.SyncLockKey()); err != nil {
				o.logger.Warn("failed to release sync lock", "error", err)
			}
		}()
	}

	sites, _, err := o.selectSites(ctx)
	if err != nil {
		return report, fmt.Errorf("selecting sites: %w", err)
	}
	report.SitesTotal = len(sites)

	deadline := started.Add(o.cfg.Budget)
	for cycle := 1; cycle <= o.cfg.MaxCycles; cycle++ {
		report.Cycles = cycle
		if cycle > 1 {
			metrics.CatchUpCycles.Add(1)
		}
		behind := o.runCycle(ctx, sites, cycle, report)
		if behind == 0 {
			break
		}
		if o.now().After(deadline) {
			o.logger.Info("catch-up budget exhausted", "cycles", cycle, "sitesBehind", behind)
			break
		}
	}

	report.DurationMS = o.now().Sub(started).Milliseconds()
	o.logger.Info("sync run complete",
		"runId", report.RunID,
		"sites", report.SitesTotal,
		"synced", report.SitesSynced,
		"failed", report.SitesFailed,
		"cycles", report.Cycles,
		"durationMs", report.DurationMS)
	return report, nil
}

// runCycle syncs every site once and returns how many still lag the target.
// Site reports from later cycles replace the earlier entry for the same site
// so the run report reflects the final cursor position.
func (o *Orchestrator) runCycle(ctx context.Context, sites []string, cycle int, report *types.SyncRunReport) int {
	behind := 0
	for _, site := range sites {
		if ctx.Err() != nil {
			return behind
		}
		siteRep, err := o.syncSite(ctx, site)
		if err != nil {
			metrics.SyncSiteFailures.Add(1)
			o.logger.Error("site sync failed", "site", site, "cycle", cycle, "error", err)
			siteRep.Error = err.Error()
		}
		o.recordSite(report, siteRep)
		if siteRep.LagSeconds > o.cfg.TargetLag.Seconds() {
			behind++
		}
	}
	return behind
}

func (o *Orchestrator) recordSite(report *types.SyncRunReport, rep types.SiteSyncReport) {
	merged := false
	for i := range report.Sites {
		if report.Sites[i].Site == rep.Site {
			prev := report.Sites[i]
			rep.Pages += prev.Pages
			rep.SamplesFetched += prev.SamplesFetched
			rep.SamplesWritten += prev.SamplesWritten
			rep.SamplesDropped += prev.SamplesDropped
			report.Sites[i] = rep
			merged = true
			break
		}
	}
	if !merged {
		report.Sites = append(report.Sites, rep)
	}
	report.SitesSynced, report.SitesFailed = 0, 0
	for _, s := range report.Sites {
		if s.Error == "" {
			report.SitesSynced++
		} else {
			report.SitesFailed++
		}
	}
}

// syncSite fetches one window for a site, upserts the samples, and advances
// the cursor to the newest timestamp actually written. A window that returns
// zero samples leaves the cursor untouched so the next invocation retries the
// same range instead of silently skipping it.
func (o *Orchestrator) syncSite(ctx context.Context, site string) (types.SiteSyncReport, error) {
	st, err := o.states.GetSyncState(ctx, site)
	if err != nil {
		return types.SiteSyncReport{Site: site}, fmt.Errorf("loading sync state: %w", err)
	}

	win := computeWindow(st, o.now(), o.cfg)
	rep := types.SiteSyncReport{Site: site, WindowStart: win.Start, WindowEnd: win.End}
	if st != nil {
		rep.LastSync = st.LastSync
	}

	var (
		maxTS  int64
		points = make(map[string]struct{})
		cursor string
	)
	for {
		page, err := o.api.FetchPage(ctx, site, win.Start, win.End, cursor)
		if err != nil {
			return rep, fmt.Errorf("fetching window page: %w", err)
		}
		rep.Pages++
		rep.SamplesFetched += len(page.Samples)
		rep.SamplesDropped += page.Dropped

		if len(page.Samples) > 0 {
			written, err := o.hot.UpsertSamples(ctx, page.Samples)
			if err != nil {
				return rep, fmt.Errorf("upserting samples: %w", err)
			}
			rep.SamplesWritten += written
			metrics.SamplesWritten.Add(int64(written))
			for _, sm := range page.Samples {
				points[sm.PointName] = struct{}{}
				if sm.Timestamp > maxTS {
					maxTS = sm.Timestamp
				}
			}
		}

		// An empty cursor ends the window even when has_more claims
		// otherwise; the gateway's has_more flag trails the cursor by one
		// page on some firmware versions.
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	rep.UniquePoints = len(points)

	if maxTS > 0 {
		next := types.SyncState{Site: site, LastSync: maxTS, UpdatedAt: o.now()}
		if st != nil && st.LastSync > next.LastSync {
			// Never move the cursor backwards; the lookback overlap can
			// surface older samples than a previous run already covered.
			next.LastSync = st.LastSync
		}
		if err := o.states.PutSyncState(ctx, next); err != nil {
			return rep, fmt.Errorf("advancing sync cursor: %w", err)
		}
		rep.LastSync = next.LastSync
	}

	if fresh, err := o.Freshness(ctx, site); err == nil {
		rep.LagSeconds = fresh.LagSeconds
	}
	return rep, nil
}
