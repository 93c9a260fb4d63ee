package syncer

import (
	"context"
	"fmt"
	"sort"

	"github.com/vitals-systems/siphon/pkg/types"
)

// candidateSites returns the sites this deployment syncs. Configured sites
// win; otherwise sites already present in the hot store, falling back to
// gateway discovery for a completely fresh deployment.
func (o *Orchestrator) candidateSites(ctx context.Context) ([]string, error) {
	if len(o.cfg.Sites) > 0 {
		return o.cfg.Sites, nil
	}
	sites, err := o.hot.DistinctSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing hot-store sites: %w", err)
	}
	if len(sites) > 0 {
		return sites, nil
	}
	sites, err = o.api.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering sites: %w", err)
	}
	sort.Strings(sites)
	return sites, nil
}

// selectSites picks at most MaxSitesPerRun sites for this invocation. Sites
// whose lag exceeds the urgent threshold go first; remaining slots are filled
// round-robin from a persisted rotation cursor so no site starves across
// invocations. The rotation cursor advance is best-effort: losing it costs a
// repeated site, never a skipped range.
func (o *Orchestrator) selectSites(ctx context.Context) ([]string, []types.FreshnessReport, error) {
	candidates, err := o.candidateSites(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) <= o.cfg.MaxSitesPerRun {
		return candidates, nil, nil
	}

	reports := make([]types.FreshnessReport, 0, len(candidates))
	var urgent []string
	urgentSet := make(map[string]bool)
	for _, site := range candidates {
		rep, err := o.Freshness(ctx, site)
		if err != nil {
			o.logger.Warn("freshness check failed, treating site as urgent", "site", site, "error", err)
			rep = types.FreshnessReport{Site: site, Level: types.FreshnessUrgent}
		}
		reports = append(reports, rep)
		if rep.Level == types.FreshnessUrgent && len(urgent) < o.cfg.MaxSitesPerRun {
			urgent = append(urgent, site)
			urgentSet[site] = true
		}
	}

	selected := urgent
	if len(selected) < o.cfg.MaxSitesPerRun {
		pos, err := o.states.GetRotationCursor(ctx)
		if err != nil {
			o.logger.Warn("rotation cursor unavailable, starting from zero", "error", err)
			pos = 0
		}
		for scanned := 0; scanned < len(candidates) && len(selected) < o.cfg.MaxSitesPerRun; scanned++ {
			site := candidates[pos%len(candidates)]
			pos++
			if !urgentSet[site] {
				selected = append(selected, site)
			}
		}
		if err := o.states.PutRotationCursor(ctx, pos%len(candidates)); err != nil {
			o.logger.Warn("failed to persist rotation cursor", "error", err)
		}
	}
	return selected, reports, nil
}
