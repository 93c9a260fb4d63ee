package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitals-systems/siphon/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "siphon",
		Short: "Building-sensor timeseries pipeline: sync, backfill, archive",
		Long: `Siphon keeps a hot Postgres store of building-sensor timeseries in step
with a remote gateway API. It syncs recent samples incrementally with
persisted cursors, backfills historical ranges page by page, and ages
cold partitions out to object storage with verify-before-delete.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewMigrateCmd(),
		commands.NewSyncCmd(),
		commands.NewBackfillCmd(),
		commands.NewArchiveCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
