// Package archive implements the hot-to-cold migration engine. Aged
// partitions are encoded to compressed columnar objects, uploaded, verified
// by a metadata read, and only then deleted from the hot store, in that
// order and never reordered.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vitals-systems/siphon/internal/metrics"
	"github.com/vitals-systems/siphon/internal/state"
	"github.com/vitals-systems/siphon/internal/telemetry"
	"github.com/vitals-systems/siphon/pkg/types"
)

// Default tuning. Overridable per deployment through Config.
const (
	DefaultRetentionDays       = 30
	DefaultMaxPartitionsPerRun = 50
	DefaultUploadAttempts      = 3
	DefaultConcurrency         = 4
	DefaultLockTTL             = 10 * time.Minute
	DefaultUploadBackoff       = time.Second
)

// HotStore is the slice of the hot store the archiver consumes.
type HotStore interface {
	ListAgedPartitions(ctx context.Context, cutoff time.Time) ([]types.Partition, error)
	ReadPartitionRows(ctx context.Context, p types.Partition) ([]types.Sample, error)
	CountPartitionRows(ctx context.Context, p types.Partition) (int64, error)
	DeletePartitionRows(ctx context.Context, p types.Partition) (int64, error)
}

// ColdStore is the slice of the cold store the archiver consumes.
type ColdStore interface {
	PartitionKey(p types.Partition) string
	Encode(samples []types.Sample) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Stat(ctx context.Context, key string) (int64, bool, error)
}

// Config tunes one archiver instance. Zero fields take package defaults.
type Config struct {
	RetentionDays       int
	MaxPartitionsPerRun int
	UploadAttempts      int
	Concurrency         int
	UploadBackoff       time.Duration
	LockTTL             time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	if c.MaxPartitionsPerRun <= 0 {
		c.MaxPartitionsPerRun = DefaultMaxPartitionsPerRun
	}
	if c.UploadAttempts <= 0 {
		c.UploadAttempts = DefaultUploadAttempts
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.UploadBackoff <= 0 {
		c.UploadBackoff = DefaultUploadBackoff
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	return c
}

// Archiver migrates aged hot partitions into cold storage.
type Archiver struct {
	hot     HotStore
	cold    ColdStore
	states  state.Store
	locker  state.Locker
	cfg     Config
	alertFn func(types.Alert)
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes an Archiver.
type Option func(*Archiver)

// WithLogger sets the archiver logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) { a.logger = l }
}

// WithAlertFunc sets the alert callback for verification failures.
func WithAlertFunc(fn func(types.Alert)) Option {
	return func(a *Archiver) { a.alertFn = fn }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// New creates an Archiver.
func New(hot HotStore, cold ColdStore, states state.Store, locker state.Locker, cfg Config, opts ...Option) *Archiver {
	a := &Archiver{
		hot:     hot,
		cold:    cold,
		states:  states,
		locker:  locker,
		cfg:     cfg.withDefaults(),
		alertFn: func(types.Alert) {},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes one archival pass: enumerate aged partitions, move a bounded
// batch of them, and record run metrics. Partition failures are collected,
// not propagated; a partition that fails before verification simply stays in
// the hot store for the next scheduled run.
func (a *Archiver) Run(ctx context.Context) (*types.ArchiveRunMetrics, error) {
	started := a.now()
	cutoff := started.AddDate(0, 0, -a.cfg.RetentionDays)
	m := &types.ArchiveRunMetrics{
		RunID:     ulid.Make().String(),
		Cutoff:    cutoff.UTC().Format("2006-01-02"),
		StartedAt: started,
	}

	ctx, span := telemetry.StartSpan(ctx, "archive.run", telemetry.AttrRunID.String(m.RunID))
	defer span.End()

	acquired, err := a.locker.AcquireLock(ctx, state.ArchiveLockKey(), a.cfg.LockTTL)
	if err != nil {
		metrics.LockFailOpens.Add(1)
		a.logger.Warn("lock store unreachable, proceeding without lock", "error", err)
	} else if !acquired {
		metrics.LockContended.Add(1)
		a.logger.Info("archive run lock held elsewhere, skipping invocation")
		return m, nil
	} else {
		defer func() {
			if err := a.locker.ReleaseLock(ctx, state.ArchiveLockKey()); err != nil {
				a.logger.Warn("failed to release archive lock", "error", err)
			}
		}()
	}

	parts, err := a.hot.ListAgedPartitions(ctx, cutoff)
	if err != nil {
		return m, fmt.Errorf("enumerating aged partitions: %w", err)
	}
	m.PartitionsExamined = len(parts)
	if len(parts) > a.cfg.MaxPartitionsPerRun {
		parts = parts[:a.cfg.MaxPartitionsPerRun]
	}

	a.movePartitions(ctx, parts, m)

	done := a.now()
	m.CompletedAt = &done
	if err := a.states.PutArchiveMetrics(ctx, *m); err != nil {
		a.logger.Warn("failed to persist archive run metrics", "runId", m.RunID, "error", err)
	}
	a.logger.Info("archive run complete",
		"runId", m.RunID,
		"examined", m.PartitionsExamined,
		"archived", m.PartitionsArchived,
		"skipped", m.PartitionsSkipped,
		"failed", m.PartitionsFailed,
		"rows", m.RowsArchived)
	return m, nil
}

// movePartitions archives a batch with bounded concurrency. Partitions of
// the same site never overlap in (point, day), so parallel moves touch
// disjoint hot rows and disjoint object keys.
func (a *Archiver) movePartitions(ctx context.Context, parts []types.Partition, m *types.ArchiveRunMetrics) {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)

	for _, p := range parts {
		g.Go(func() error {
			res, err := a.movePartition(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				metrics.PartitionsFailed.Add(1)
				m.PartitionsFailed++
				m.Errors = append(m.Errors, fmt.Sprintf("%s/%s/%s: %v", p.Site, p.PointName, p.Day, err))
				a.logger.Error("partition archive failed",
					"site", p.Site, "point", p.PointName, "day", p.Day, "error", err)
			case res.skipped:
				metrics.PartitionsSkipped.Add(1)
				m.PartitionsSkipped++
			default:
				metrics.PartitionsArchived.Add(1)
				metrics.ArchiveRowsDeleted.Add(res.rowsDeleted)
				m.PartitionsArchived++
				m.RowsArchived += res.rowsArchived
				m.RowsDeleted += res.rowsDeleted
				m.BytesUploaded += res.bytes
			}
			return nil
		})
	}
	_ = g.Wait()
}

type moveResult struct {
	skipped      bool
	rowsArchived int64
	rowsDeleted  int64
	bytes        int64
}

// movePartition runs the non-negotiable sequence for one partition: read,
// encode, upload, verify, delete. Any failure before verification leaves the
// hot store untouched.
func (a *Archiver) movePartition(ctx context.Context, p types.Partition) (moveResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "archive.partition",
		telemetry.AttrSite.String(p.Site),
		telemetry.AttrPoint.String(p.PointName),
		telemetry.AttrDay.String(p.Day))
	defer span.End()

	key := a.cold.PartitionKey(p)

	// Already-archived partitions (a prior run died between verify and
	// delete, or the delete raced a retry) go straight to deletion.
	size, exists, err := a.cold.Stat(ctx, key)
	if err != nil {
		return moveResult{}, fmt.Errorf("checking cold store: %w", err)
	}
	if exists && size > 0 {
		deleted, err := a.deleteVerified(ctx, p)
		if err != nil {
			return moveResult{}, err
		}
		if deleted == 0 {
			return moveResult{skipped: true}, nil
		}
		return moveResult{rowsDeleted: deleted}, nil
	}

	rows, err := a.hot.ReadPartitionRows(ctx, p)
	if err != nil {
		return moveResult{}, fmt.Errorf("reading hot rows: %w", err)
	}
	if len(rows) == 0 {
		return moveResult{skipped: true}, nil
	}

	data, err := a.cold.Encode(rows)
	if err != nil {
		return moveResult{}, fmt.Errorf("encoding partition: %w", err)
	}

	if err := a.upload(ctx, key, data); err != nil {
		return moveResult{}, err
	}

	// Mandatory verification: metadata read against the just-written
	// object. Deletion is unreachable without it.
	size, exists, err = a.cold.Stat(ctx, key)
	if err != nil || !exists || size == 0 {
		metrics.ArchiveVerifyFailed.Add(1)
		a.alertFn(types.Alert{
			Level:     types.AlertLevelError,
			Category:  "archive_verify_failed",
			Site:      p.Site,
			Message:   fmt.Sprintf("cold object %s not confirmed after upload", key),
			Details:   map[string]interface{}{"exists": exists, "size": size},
			Timestamp: a.now(),
		})
		if err != nil {
			return moveResult{}, fmt.Errorf("verifying upload: %w", err)
		}
		return moveResult{}, fmt.Errorf("verifying upload: object missing or empty (exists=%v size=%d)", exists, size)
	}

	deleted, err := a.deleteVerified(ctx, p)
	if err != nil {
		return moveResult{}, err
	}
	if deleted != int64(len(rows)) {
		// Rows written after the read (late arrivals) stay hot; log for
		// observability, never fail the partition over it.
		a.logger.Warn("deleted row count differs from archived row count",
			"site", p.Site, "point", p.PointName, "day", p.Day,
			"archived", len(rows), "deleted", deleted)
	}
	span.SetAttributes(telemetry.AttrRows.Int64(deleted), telemetry.AttrBytes.Int(len(data)))
	return moveResult{rowsArchived: int64(len(rows)), rowsDeleted: deleted, bytes: int64(len(data))}, nil
}

// upload retries the cold-store put with exponential backoff up to the
// configured attempt cap.
func (a *Archiver) upload(ctx context.Context, key string, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.UploadAttempts; attempt++ {
		if err := a.cold.Put(ctx, key, data); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == a.cfg.UploadAttempts {
			break
		}
		wait := a.cfg.UploadBackoff << (attempt - 1)
		a.logger.Warn("cold store upload failed, retrying",
			"key", key, "attempt", attempt, "backoff", wait, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("uploading %s: attempts exhausted: %w", key, lastErr)
}

// deleteVerified removes the hot rows for a partition whose cold object has
// been confirmed.
func (a *Archiver) deleteVerified(ctx context.Context, p types.Partition) (int64, error) {
	deleted, err := a.hot.DeletePartitionRows(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("deleting hot rows: %w", err)
	}
	return deleted, nil
}

// LastRuns returns the most recent archive run metrics for the status
// surface, newest first.
func (a *Archiver) LastRuns(ctx context.Context, limit int) ([]types.ArchiveRunMetrics, error) {
	return a.states.ListArchiveMetrics(ctx, limit)
}
