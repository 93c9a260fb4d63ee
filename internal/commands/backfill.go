package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitals-systems/siphon/internal/backfill"
	"github.com/vitals-systems/siphon/pkg/types"
)

// NewBackfillCmd creates the backfill command.
func NewBackfillCmd() *cobra.Command {
	var (
		site        string
		rangeStart  string
		rangeEnd    string
		newestFirst bool
		points      []string
		reset       bool
		follow      bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Start, continue, or reset a site's historical backfill",
		Long: `Advances a site's backfill by one bounded batch of pages. Run again (or
use --follow) to continue from the persisted continuation point. A new
backfill needs --start and --end; continuing an existing one does not.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			req := backfill.Request{
				Site:        site,
				RangeStart:  rangeStart,
				RangeEnd:    rangeEnd,
				NewestFirst: newestFirst,
				PointNames:  points,
			}
			if reset {
				req.Action = types.ActionReset
			}

			for {
				result, err := d.backfill.Trigger(ctx, req)
				if err != nil {
					return err
				}
				if err := printJSON(result); err != nil {
					return err
				}
				if !follow || !result.Continuation {
					return nil
				}
				// Successive batches only continue; never re-send the range.
				req = backfill.Request{Site: site}
				time.Sleep(time.Second)
			}
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "site to backfill (required)")
	cmd.Flags().StringVar(&rangeStart, "start", "", "range start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&rangeEnd, "end", "", "range end date, YYYY-MM-DD (inclusive)")
	cmd.Flags().BoolVar(&newestFirst, "newest-first", false, "walk the range newest day first")
	cmd.Flags().StringSliceVar(&points, "points", nil, "explicit point names (default: all points)")
	cmd.Flags().BoolVar(&reset, "reset", false, "discard saved progress for the site")
	cmd.Flags().BoolVar(&follow, "follow", false, "keep triggering batches until the backfill finishes")
	_ = cmd.MarkFlagRequired("site")

	cmd.AddCommand(newBackfillStatusCmd())
	return cmd
}

func newBackfillStatusCmd() *cobra.Command {
	var site string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a site's backfill progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			result, err := d.backfill.Status(ctx, site)
			if err != nil {
				return fmt.Errorf("reading backfill state: %w", err)
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "site to inspect (required)")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}
