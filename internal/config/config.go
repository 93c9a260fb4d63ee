// Package config handles loading and validation of siphon.yaml project
// configuration, plus the duration/engine-config conversions shared by the
// CLI, the HTTP server, and the Lambda workers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitals-systems/siphon/internal/archive"
	"github.com/vitals-systems/siphon/internal/backfill"
	"github.com/vitals-systems/siphon/internal/syncer"
	"github.com/vitals-systems/siphon/pkg/types"
)

// FileName is the project config file loaded by Load.
const FileName = "siphon.yaml"

// Load reads and parses siphon.yaml from the given directory. Secrets may
// be supplied via environment instead of the file: ACEIOT_API_TOKEN
// overrides api.token and SIPHON_HOT_DSN overrides hotStore.dsn.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *types.ProjectConfig) {
	if v := os.Getenv("ACEIOT_API_TOKEN"); v != "" && cfg.API != nil {
		cfg.API.Token = v
	}
	if v := os.Getenv("SIPHON_HOT_DSN"); v != "" && cfg.HotStore != nil {
		cfg.HotStore.DSN = v
	}
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.API == nil || cfg.API.BaseURL == "" {
		return fmt.Errorf("api.baseUrl is required")
	}
	if cfg.API.Token == "" {
		return fmt.Errorf("api.token is required (or set ACEIOT_API_TOKEN)")
	}
	if cfg.HotStore == nil || cfg.HotStore.DSN == "" {
		return fmt.Errorf("hotStore.dsn is required (or set SIPHON_HOT_DSN)")
	}
	if cfg.ColdStore == nil || cfg.ColdStore.Bucket == "" {
		return fmt.Errorf("coldStore.bucket is required")
	}
	if cfg.State == nil || cfg.State.TableName == "" {
		return fmt.Errorf("state.tableName is required")
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"api.timeout", durOrEmpty(cfg.API)},
		{"sync.budget", syncBudget(cfg.Sync)},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

func durOrEmpty(api *types.APIConfig) string {
	if api == nil {
		return ""
	}
	return api.Timeout
}

func syncBudget(s *types.SyncConfig) string {
	if s == nil {
		return ""
	}
	return s.Budget
}

// Duration parses a duration string, returning fallback when the string is
// empty or malformed. Config validation catches malformed values on the
// fields that matter; this keeps call sites simple.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// SyncerConfig converts the project sync section to the orchestrator config.
func SyncerConfig(p *types.ProjectConfig) syncer.Config {
	var c syncer.Config
	s := p.Sync
	if s == nil {
		return c
	}
	c.Sites = s.Sites
	c.Lookback = time.Duration(s.LookbackSeconds) * time.Second
	c.FirstRunLookback = Duration(s.FirstRunLookback, 0)
	c.MaxWindow = time.Duration(s.MaxWindowMinutes) * time.Minute
	c.MaxSitesPerRun = s.MaxSitesPerRun
	c.TargetLag = time.Duration(s.TargetLagSeconds) * time.Second
	c.UrgentLag = Duration(s.UrgentLag, 0)
	c.MaxCycles = s.MaxCycles
	c.Budget = Duration(s.Budget, 0)
	c.LockTTL = Duration(s.LockTTL, 0)
	return c
}

// BackfillConfig converts the project backfill section to the engine config.
func BackfillConfig(p *types.ProjectConfig) backfill.Config {
	var c backfill.Config
	b := p.Backfill
	if b == nil {
		return c
	}
	c.PagesPerInvocation = b.PagesPerInvocation
	c.LockTTL = Duration(b.LockTTL, 0)
	return c
}

// ArchiveConfig converts the project archive section to the archiver config.
func ArchiveConfig(p *types.ProjectConfig) archive.Config {
	var c archive.Config
	a := p.Archive
	if a == nil {
		return c
	}
	c.RetentionDays = a.RetentionDays
	c.MaxPartitionsPerRun = a.MaxPartitionsPerRun
	c.UploadAttempts = a.UploadAttempts
	c.Concurrency = a.Concurrency
	c.LockTTL = Duration(a.LockTTL, 0)
	return c
}
