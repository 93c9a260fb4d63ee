package syncer

import (
	"context"
	"time"

	"github.com/vitals-systems/siphon/pkg/types"
)

// Freshness measures how far a site's hot data trails the wall clock and
// drives both the catch-up loop exit condition and urgent site selection.
func (o *Orchestrator) Freshness(ctx context.Context, site string) (types.FreshnessReport, error) {
	now := o.now()
	rep := types.FreshnessReport{Site: site, CheckedAt: now}

	ts, ok, err := o.hot.MaxSampleTime(ctx, site)
	if err != nil {
		return rep, err
	}
	if !ok {
		// No hot rows at all: treat as maximally stale so the site gets
		// picked up on the next selection pass.
		rep.LagSeconds = o.cfg.FirstRunLookback.Seconds()
		rep.Level = types.FreshnessUrgent
		return rep, nil
	}

	newest := time.UnixMilli(ts).UTC()
	rep.MaxSample = &newest
	rep.LagSeconds = now.Sub(newest).Seconds()
	rep.Level = o.classifyLag(rep.LagSeconds)
	return rep, nil
}

func (o *Orchestrator) classifyLag(lagSeconds float64) types.Freshness {
	switch {
	case lagSeconds > o.cfg.UrgentLag.Seconds():
		return types.FreshnessUrgent
	case lagSeconds > o.cfg.TargetLag.Seconds():
		return types.FreshnessLagging
	default:
		return types.FreshnessFresh
	}
}
