package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitals-systems/siphon/pkg/types"
)

const statusTimeout = 30 * time.Second

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var site string

	cmd := &cobra.Command{
		Use:   "status [site]",
		Short: "Show per-site freshness, sync cursors, and recent archive runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				site = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
			defer cancel()
			return runStatus(ctx, site)
		},
	}
	return cmd
}

func runStatus(ctx context.Context, site string) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	sites := []string{site}
	if site == "" {
		sites, err = d.hot.DistinctSites(ctx)
		if err != nil {
			return fmt.Errorf("listing sites: %w", err)
		}
	}
	if len(sites) == 0 {
		fmt.Println("No synced sites yet.")
		return nil
	}

	fmt.Printf("%-24s %-10s %-10s %-22s %s\n", "SITE", "FRESHNESS", "LAG", "CURSOR", "BACKFILL")
	for _, s := range sites {
		fr, err := d.syncer.Freshness(ctx, s)
		if err != nil {
			return fmt.Errorf("checking freshness for %s: %w", s, err)
		}

		cursor := "-"
		if st, err := d.states.GetSyncState(ctx, s); err == nil && st != nil {
			cursor = time.UnixMilli(st.LastSync).UTC().Format(time.RFC3339)
		}

		backfillStatus := string(types.BackfillNotStarted)
		if bf, err := d.backfill.Status(ctx, s); err == nil {
			backfillStatus = string(bf.Status)
		}

		fmt.Printf("%-24s %-10s %-10s %-22s %s\n",
			s, fr.Level, formatLag(fr.LagSeconds), cursor, backfillStatus)
	}

	runs, err := d.archiver.LastRuns(ctx, 3)
	if err != nil || len(runs) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println("Recent archive runs:")
	for _, r := range runs {
		fmt.Printf("  %s  cutoff=%s archived=%d skipped=%d failed=%d rows=%d\n",
			r.StartedAt.UTC().Format(time.RFC3339), r.Cutoff,
			r.PartitionsArchived, r.PartitionsSkipped, r.PartitionsFailed, r.RowsArchived)
	}
	return nil
}
