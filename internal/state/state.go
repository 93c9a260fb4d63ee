// Package state defines the durable continuation-state surfaces: sync
// cursors, backfill progress, archive run metrics, and run locks.
package state

import (
	"context"
	"time"

	"github.com/vitals-systems/siphon/pkg/types"
)

// Store persists small per-site continuation records. Lookups return
// (nil, nil) when no record exists; a site that has never synced or never
// started a backfill is a normal condition, not an error.
type Store interface {
	// Sync cursors
	GetSyncState(ctx context.Context, site string) (*types.SyncState, error)
	PutSyncState(ctx context.Context, st types.SyncState) error

	// Backfill continuations
	GetBackfillState(ctx context.Context, site string) (*types.BackfillState, error)
	PutBackfillState(ctx context.Context, st types.BackfillState) error
	DeleteBackfillState(ctx context.Context, site string) error

	// Round-robin rotation cursor for site selection
	GetRotationCursor(ctx context.Context) (int, error)
	PutRotationCursor(ctx context.Context, position int) error

	// Archive run metrics, newest first
	PutArchiveMetrics(ctx context.Context, m types.ArchiveRunMetrics) error
	ListArchiveMetrics(ctx context.Context, limit int) ([]types.ArchiveRunMetrics, error)

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Locker provides TTL-bounded advisory run locks. Acquire reports
// (false, nil) when another holder has an unexpired lock; an error means the
// lock store itself is unreachable, and the caller decides whether to fail
// open.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// SyncLockKey is the run lock scope for the incremental sync worker. Sync
// runs cover many sites per invocation, so the scope is global.
func SyncLockKey() string { return "sync" }

// BackfillLockKey scopes backfill locks per site so distinct sites can
// backfill concurrently.
func BackfillLockKey(site string) string { return "backfill:" + site }

// ArchiveLockKey is the run lock scope for the archival worker.
func ArchiveLockKey() string { return "archive" }
