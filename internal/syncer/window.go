package syncer

import (
	"time"

	"github.com/vitals-systems/siphon/pkg/types"
)

// Window is one bounded sync interval for a site.
type Window struct {
	Start time.Time
	End   time.Time
}

// computeWindow derives the next sync window for a site. The lower bound is
// the persisted cursor minus a lookback buffer so late-arriving samples near
// the previous upper bound are re-fetched; the upsert makes the overlap
// harmless. A site with no cursor gets the first-run window. The window
// length is capped so one invocation never asks the gateway for an unbounded
// range after a long outage.
func computeWindow(st *types.SyncState, now time.Time, cfg Config) Window {
	var start time.Time
	if st == nil || st.LastSync == 0 {
		start = now.Add(-cfg.FirstRunLookback)
	} else {
		start = time.UnixMilli(st.LastSync).Add(-cfg.Lookback)
	}
	end := now
	if end.Sub(start) > cfg.MaxWindow {
		end = start.Add(cfg.MaxWindow)
	}
	return Window{Start: start.UTC(), End: end.UTC()}
}
