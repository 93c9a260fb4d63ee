package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitals-systems/siphon/internal/config"
	"github.com/vitals-systems/siphon/internal/hotstore"
	"github.com/vitals-systems/siphon/internal/state/dynamo"
)

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the hot-store schema and the state table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			hot, err := hotstore.New(ctx, *cfg.HotStore)
			if err != nil {
				return fmt.Errorf("connecting hot store: %w", err)
			}
			defer hot.Close()
			if err := hot.Migrate(ctx); err != nil {
				return fmt.Errorf("migrating hot store: %w", err)
			}
			fmt.Println("hot store schema up to date")

			states, err := dynamo.New(ctx, *cfg.State, dynamo.WithCreateTable())
			if err != nil {
				return fmt.Errorf("creating state store: %w", err)
			}
			if err := states.Start(ctx); err != nil {
				return fmt.Errorf("creating state table: %w", err)
			}
			fmt.Println("state table ready")
			return nil
		},
	}
}
