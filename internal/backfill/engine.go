package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitals-systems/siphon/internal/aceiot"
	"github.com/vitals-systems/siphon/internal/metrics"
	"github.com/vitals-systems/siphon/internal/state"
	"github.com/vitals-systems/siphon/internal/telemetry"
	"github.com/vitals-systems/siphon/pkg/types"
)

const (
	// DefaultPagesPerInvocation bounds how many pages one trigger call
	// processes, keeping each invocation inside its execution budget.
	DefaultPagesPerInvocation = 5

	// DefaultLockTTL bounds a per-site backfill lock.
	DefaultLockTTL = 2 * time.Minute

	// maxStoredErrors caps the error history carried in the state record.
	maxStoredErrors = 20

	dayLayout = "2006-01-02"
)

// ErrInvalidRequest wraps trigger validation failures so transport adapters
// can distinguish caller mistakes from engine faults.
var ErrInvalidRequest = errors.New("invalid backfill request")

// API is the slice of the timeseries client the engine consumes.
type API interface {
	FetchPage(ctx context.Context, site string, start, end time.Time, cursor string) (*aceiot.Page, error)
	FetchPointsBatch(ctx context.Context, site string, pointNames []string, start, end time.Time) ([]types.Sample, int, error)
}

// ColdStore is the slice of the cold store the engine consumes. Page objects
// are keyed by (site, day, page index); a retried page overwrites the same
// key, so partial invocations never produce duplicates.
type ColdStore interface {
	BackfillPageKey(site, day string, page int) string
	Encode(samples []types.Sample) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Config tunes one engine instance. Zero fields take package defaults.
type Config struct {
	PagesPerInvocation int
	LockTTL            time.Duration
}

func (c Config) withDefaults() Config {
	if c.PagesPerInvocation <= 0 {
		c.PagesPerInvocation = DefaultPagesPerInvocation
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	return c
}

// Request asks the engine to start, continue, or reset one site's backfill.
type Request struct {
	Action      types.TriggerAction `json:"action,omitempty"` // default: start-or-continue
	Site        string              `json:"site"`
	RangeStart  string              `json:"rangeStart,omitempty"` // "2006-01-02"
	RangeEnd    string              `json:"rangeEnd,omitempty"`   // inclusive
	NewestFirst bool                `json:"newestFirst,omitempty"`
	PointNames  []string            `json:"pointNames,omitempty"` // explicit filter, empty = all points
}

// Progress summarizes how far a backfill has advanced.
type Progress struct {
	CurrentDate    string   `json:"currentDate,omitempty"`
	CompletedDates []string `json:"completedDates,omitempty"`
	TotalDates     int      `json:"totalDates"`
	Percent        float64  `json:"percent"`
	SamplesFetched int64    `json:"samplesFetched"`
	PagesThisRun   int      `json:"pagesThisRun,omitempty"`
}

// Result is one invocation's outcome. Continuation is true while more pages
// remain and the caller should re-trigger.
type Result struct {
	Status       types.BackfillStatus `json:"status"`
	Progress     Progress             `json:"progress"`
	Continuation bool                 `json:"continuation"`
	Errors       []string             `json:"errors,omitempty"`
}

// Engine walks a site's historical range through the cold store.
type Engine struct {
	api     API
	cold    ColdStore
	states  state.Store
	locker  state.Locker
	cfg     Config
	alertFn func(types.Alert)
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithAlertFunc sets the alert callback.
func WithAlertFunc(fn func(types.Alert)) Option {
	return func(e *Engine) { e.alertFn = fn }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(api API, cold ColdStore, states state.Store, locker state.Locker, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		api:     api,
		cold:    cold,
		states:  states,
		locker:  locker,
		cfg:     cfg.withDefaults(),
		alertFn: func(types.Alert) {},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Trigger is the engine entry point for one invocation. A reset deletes the
// continuation record; start creates one when none exists; anything else
// continues from the persisted cursor.
func (e *Engine) Trigger(ctx context.Context, req Request) (*Result, error) {
	if req.Site == "" {
		return nil, fmt.Errorf("%w: site is required", ErrInvalidRequest)
	}

	if req.Action == types.ActionReset {
		if err := e.states.DeleteBackfillState(ctx, req.Site); err != nil {
			return nil, fmt.Errorf("resetting backfill state: %w", err)
		}
		e.logger.Info("backfill state reset", "site", req.Site)
		return &Result{Status: types.BackfillNotStarted}, nil
	}

	st, err := e.states.GetBackfillState(ctx, req.Site)
	if err != nil {
		return nil, fmt.Errorf("loading backfill state: %w", err)
	}
	if st == nil {
		st, err = e.initState(ctx, req)
		if err != nil {
			return nil, err
		}
	}
	if IsTerminal(st.Status) {
		return e.result(st, 0), nil
	}
	return e.processPages(ctx, st)
}

// Status returns the current continuation state without advancing it.
func (e *Engine) Status(ctx context.Context, site string) (*Result, error) {
	st, err := e.states.GetBackfillState(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("loading backfill state: %w", err)
	}
	if st == nil {
		return &Result{Status: types.BackfillNotStarted}, nil
	}
	return e.result(st, 0), nil
}

func (e *Engine) initState(ctx context.Context, req Request) (*types.BackfillState, error) {
	if req.RangeStart == "" || req.RangeEnd == "" {
		return nil, fmt.Errorf("%w: rangeStart and rangeEnd are required to start a backfill", ErrInvalidRequest)
	}
	startDay, err := time.Parse(dayLayout, req.RangeStart)
	if err != nil {
		return nil, fmt.Errorf("%w: bad rangeStart %q: %v", ErrInvalidRequest, req.RangeStart, err)
	}
	endDay, err := time.Parse(dayLayout, req.RangeEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: bad rangeEnd %q: %v", ErrInvalidRequest, req.RangeEnd, err)
	}
	if endDay.Before(startDay) {
		return nil, fmt.Errorf("%w: rangeEnd %s precedes rangeStart %s", ErrInvalidRequest, req.RangeEnd, req.RangeStart)
	}

	first := req.RangeStart
	if req.NewestFirst {
		first = req.RangeEnd
	}
	st := &types.BackfillState{
		Site:        req.Site,
		RangeStart:  req.RangeStart,
		RangeEnd:    req.RangeEnd,
		CurrentDate: first,
		NewestFirst: req.NewestFirst,
		PointNames:  req.PointNames,
		Status:      types.BackfillNotStarted,
		StartedAt:   e.now(),
		UpdatedAt:   e.now(),
	}
	if err := Transition(st, types.BackfillInProgress); err != nil {
		return nil, err
	}
	if err := e.states.PutBackfillState(ctx, *st); err != nil {
		return nil, fmt.Errorf("creating backfill state: %w", err)
	}
	e.logger.Info("backfill started",
		"site", req.Site, "rangeStart", req.RangeStart, "rangeEnd", req.RangeEnd,
		"newestFirst", req.NewestFirst, "points", len(req.PointNames))
	return st, nil
}

// processPages advances the continuation by at most PagesPerInvocation
// pages, persisting state after every page. A fetch error leaves the cursor
// exactly where it was so the next invocation retries the same page.
func (e *Engine) processPages(ctx context.Context, st *types.BackfillState) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "backfill.process",
		telemetry.AttrSite.String(st.Site), telemetry.AttrDay.String(st.CurrentDate))
	defer span.End()

	lockKey := state.BackfillLockKey(st.Site)
	acquired, err := e.locker.AcquireLock(ctx, lockKey, e.cfg.LockTTL)
	if err != nil {
		metrics.LockFailOpens.Add(1)
		e.logger.Warn("lock store unreachable, proceeding without lock", "site", st.Site, "error", err)
	} else if !acquired {
		metrics.LockContended.Add(1)
		e.logger.Info("backfill lock held elsewhere, skipping invocation", "site", st.Site)
		return e.result(st, 0), nil
	} else {
		defer func() {
			if err := e.locker.ReleaseLock(ctx, lockKey); err != nil {
				e.logger.Warn("failed to release backfill lock", "site", st.Site, "error", err)
			}
		}()
	}

	pages := 0
	for pages < e.cfg.PagesPerInvocation && st.Status == types.BackfillInProgress {
		if ctx.Err() != nil {
			break
		}
		if err := e.processOnePage(ctx, st); err != nil {
			metrics.BackfillErrors.Add(1)
			span.RecordError(err)
			e.recordError(ctx, st, err)
			return e.result(st, pages), fmt.Errorf("backfill page for %s on %s: %w", st.Site, st.CurrentDate, err)
		}
		pages++
		metrics.BackfillPages.Add(1)
	}
	return e.result(st, pages), nil
}

// processOnePage fetches and stores exactly one page, then persists the
// advanced state. Day completion (empty next cursor) advances the calendar
// cursor; walking past the range boundary completes the backfill.
func (e *Engine) processOnePage(ctx context.Context, st *types.BackfillState) error {
	dayStart, err := time.Parse(dayLayout, st.CurrentDate)
	if err != nil {
		return fmt.Errorf("bad current date %q: %w", st.CurrentDate, err)
	}
	dayEnd := dayStart.Add(24 * time.Hour)

	var (
		samples []types.Sample
		next    string
	)
	if len(st.PointNames) > 0 {
		// Targeted mode: one batch fetch covers the whole day, no cursor.
		samples, _, err = e.api.FetchPointsBatch(ctx, st.Site, st.PointNames, dayStart, dayEnd)
		if err != nil {
			return err
		}
	} else {
		page, err := e.api.FetchPage(ctx, st.Site, dayStart, dayEnd, st.Cursor)
		if err != nil {
			return err
		}
		samples = page.Samples
		next = page.NextCursor
	}

	if len(samples) > 0 {
		data, err := e.cold.Encode(samples)
		if err != nil {
			return fmt.Errorf("encoding page: %w", err)
		}
		key := e.cold.BackfillPageKey(st.Site, st.CurrentDate, st.PageInDay)
		if err := e.cold.Put(ctx, key, data); err != nil {
			return fmt.Errorf("storing page: %w", err)
		}
		st.SamplesFetched += int64(len(samples))
		st.SamplesWritten += int64(len(samples))
	}

	if next == "" {
		e.completeDay(st)
	} else {
		st.Cursor = next
		st.PageInDay++
	}

	st.UpdatedAt = e.now()
	if err := e.states.PutBackfillState(ctx, *st); err != nil {
		return fmt.Errorf("persisting backfill state: %w", err)
	}
	return nil
}

// completeDay marks the current date done and steps the calendar cursor,
// finishing the whole backfill once the cursor walks off the range.
func (e *Engine) completeDay(st *types.BackfillState) {
	st.CompletedDates = append(st.CompletedDates, st.CurrentDate)
	st.Cursor = ""
	st.PageInDay = 0
	metrics.BackfillDaysDone.Add(1)

	day, _ := time.Parse(dayLayout, st.CurrentDate)
	var nextDay time.Time
	if st.NewestFirst {
		nextDay = day.AddDate(0, 0, -1)
	} else {
		nextDay = day.AddDate(0, 0, 1)
	}
	st.CurrentDate = nextDay.Format(dayLayout)

	if e.pastRange(st) {
		st.CurrentDate = ""
		if err := Transition(st, types.BackfillComplete); err == nil {
			e.logger.Info("backfill complete",
				"site", st.Site, "days", len(st.CompletedDates), "samples", st.SamplesFetched)
		}
	}
}

func (e *Engine) pastRange(st *types.BackfillState) bool {
	if st.NewestFirst {
		return st.CurrentDate < st.RangeStart
	}
	return st.CurrentDate > st.RangeEnd
}

// recordError appends a bounded error history and, for permanent failures,
// drives the state machine to its error status. Transient failures keep the
// status in progress so the same page is retried next invocation.
func (e *Engine) recordError(ctx context.Context, st *types.BackfillState, cause error) {
	msg := fmt.Sprintf("%s %s: %v", e.now().Format(time.RFC3339), st.CurrentDate, cause)
	st.Errors = append(st.Errors, msg)
	if len(st.Errors) > maxStoredErrors {
		st.Errors = st.Errors[len(st.Errors)-maxStoredErrors:]
	}

	if aceiot.Classify(cause) == types.FailurePermanent {
		if err := Transition(st, types.BackfillError); err == nil {
			e.alertFn(types.Alert{
				Level:     types.AlertLevelError,
				Category:  "backfill_failed",
				Site:      st.Site,
				Message:   fmt.Sprintf("backfill for %s hit a non-retryable error on %s", st.Site, st.CurrentDate),
				Details:   map[string]interface{}{"error": cause.Error()},
				Timestamp: e.now(),
			})
		}
	}

	st.UpdatedAt = e.now()
	if err := e.states.PutBackfillState(ctx, *st); err != nil {
		e.logger.Error("failed to persist backfill error state", "site", st.Site, "error", err)
	}
}

func (e *Engine) result(st *types.BackfillState, pages int) *Result {
	total := totalDates(st.RangeStart, st.RangeEnd)
	percent := 0.0
	if total > 0 {
		percent = float64(len(st.CompletedDates)) / float64(total) * 100
	}
	return &Result{
		Status: st.Status,
		Progress: Progress{
			CurrentDate:    st.CurrentDate,
			CompletedDates: st.CompletedDates,
			TotalDates:     total,
			Percent:        percent,
			SamplesFetched: st.SamplesFetched,
			PagesThisRun:   pages,
		},
		Continuation: st.Status == types.BackfillInProgress,
		Errors:       st.Errors,
	}
}

func totalDates(rangeStart, rangeEnd string) int {
	start, err1 := time.Parse(dayLayout, rangeStart)
	end, err2 := time.Parse(dayLayout, rangeEnd)
	if err1 != nil || err2 != nil || end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}
