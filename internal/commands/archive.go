package commands

import (
	"github.com/spf13/cobra"
)

// NewArchiveCmd creates the archive command.
func NewArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Run one hot-to-cold archival pass and print its metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			m, err := d.archiver.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(m)
		},
	}
}
