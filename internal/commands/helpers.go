// Package commands implements the CLI subcommands for the siphon binary.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/vitals-systems/siphon/internal/aceiot"
	"github.com/vitals-systems/siphon/internal/alert"
	"github.com/vitals-systems/siphon/internal/archive"
	"github.com/vitals-systems/siphon/internal/backfill"
	"github.com/vitals-systems/siphon/internal/coldstore"
	"github.com/vitals-systems/siphon/internal/config"
	"github.com/vitals-systems/siphon/internal/hotstore"
	"github.com/vitals-systems/siphon/internal/state/dynamo"
	"github.com/vitals-systems/siphon/internal/syncer"
	"github.com/vitals-systems/siphon/pkg/types"
)

// deps bundles everything a subcommand can need, built from siphon.yaml in
// the working directory.
type deps struct {
	cfg      *types.ProjectConfig
	api      *aceiot.Client
	hot      *hotstore.Store
	cold     *coldstore.Store
	states   *dynamo.Store
	alerts   *alert.Dispatcher
	logger   *slog.Logger
	syncer   *syncer.Orchestrator
	backfill *backfill.Engine
	archiver *archive.Archiver
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}
	alertFn := dispatcher.AlertFunc()

	apiCfg := aceiot.Config{
		BaseURL:  cfg.API.BaseURL,
		Token:    cfg.API.Token,
		PageSize: cfg.API.PageSize,
		Timeout:  config.Duration(cfg.API.Timeout, 0),
		Logger:   logger,
	}
	if cfg.Retry != nil {
		apiCfg.Retry = *cfg.Retry
	}
	api := aceiot.New(apiCfg)

	hot, err := hotstore.New(ctx, *cfg.HotStore)
	if err != nil {
		return nil, fmt.Errorf("connecting hot store: %w", err)
	}

	cold, err := coldstore.New(ctx, *cfg.ColdStore)
	if err != nil {
		hot.Close()
		return nil, fmt.Errorf("creating cold store: %w", err)
	}

	states, err := dynamo.New(ctx, *cfg.State, dynamo.WithLogger(logger))
	if err != nil {
		hot.Close()
		return nil, fmt.Errorf("creating state store: %w", err)
	}

	d := &deps{
		cfg:    cfg,
		api:    api,
		hot:    hot,
		cold:   cold,
		states: states,
		alerts: dispatcher,
		logger: logger,
	}
	d.syncer = syncer.New(api, hot, states, states, config.SyncerConfig(cfg),
		syncer.WithLogger(logger), syncer.WithAlertFunc(alertFn))
	d.backfill = backfill.New(api, cold, states, states, config.BackfillConfig(cfg),
		backfill.WithLogger(logger), backfill.WithAlertFunc(alertFn))
	d.archiver = archive.New(hot, cold, states, states, config.ArchiveConfig(cfg),
		archive.WithLogger(logger), archive.WithAlertFunc(alertFn))
	return d, nil
}

func (d *deps) close() {
	if d.hot != nil {
		d.hot.Close()
	}
}

// printJSON writes v to stdout, indented.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatLag renders a freshness lag for table output.
func formatLag(lagSeconds float64) string {
	d := time.Duration(lagSeconds * float64(time.Second))
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
