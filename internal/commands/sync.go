package commands

import (
	"github.com/spf13/cobra"
)

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one incremental sync pass and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			report, err := d.syncer.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}
