package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vitals-systems/siphon/internal/config"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [project-name]",
		Short: "Scaffold a new siphon project directory",
		Long:  "Creates a project directory with a starter siphon.yaml.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0])
		},
	}
}

func runInit(projectName string) error {
	if err := os.MkdirAll(projectName, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", projectName, err)
	}

	configPath := filepath.Join(projectName, config.FileName)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	configContent := `api:
  baseUrl: https://flightdeck.aceiot.cloud/api
  # token: set here or via ACEIOT_API_TOKEN
  pageSize: 500

hotStore:
  # dsn: set here or via SIPHON_HOT_DSN
  maxConns: 8

coldStore:
  bucket: siphon-archive
  prefix: timeseries
  region: us-east-1
  compression: zstd

state:
  tableName: siphon-state
  region: us-east-1

server:
  addr: ":3000"

sync:
  lookbackSeconds: 300
  maxWindowMinutes: 30
  maxSitesPerRun: 6
  targetLagSeconds: 90
  urgentLag: 15m
  budget: 90s

backfill:
  pagesPerInvocation: 5

archive:
  retentionDays: 30
  maxPartitionsPerRun: 50
  concurrency: 4

alerts:
  - type: console
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Scaffolded %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  export ACEIOT_API_TOKEN=... SIPHON_HOT_DSN=...")
	fmt.Println("  siphon migrate")
	fmt.Println("  siphon sync")
	return nil
}
