// Package worker provides shared types and initialization for the Lambda
// workers. Each worker builds its dependencies once per container from
// environment variables and reuses them across invocations.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/vitals-systems/siphon/internal/aceiot"
	"github.com/vitals-systems/siphon/internal/alert"
	"github.com/vitals-systems/siphon/internal/archive"
	"github.com/vitals-systems/siphon/internal/backfill"
	"github.com/vitals-systems/siphon/internal/coldstore"
	"github.com/vitals-systems/siphon/internal/config"
	"github.com/vitals-systems/siphon/internal/hotstore"
	"github.com/vitals-systems/siphon/internal/state"
	"github.com/vitals-systems/siphon/internal/state/dynamo"
	"github.com/vitals-systems/siphon/internal/syncer"
	"github.com/vitals-systems/siphon/pkg/types"
)

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	API      *aceiot.Client
	Hot      *hotstore.Store
	Cold     *coldstore.Store
	States   state.Store
	Locker   state.Locker
	Syncer   *syncer.Orchestrator
	Backfill *backfill.Engine
	Archiver *archive.Archiver
	AlertFn  func(types.Alert)
	Logger   *slog.Logger
}

// Init creates shared dependencies from environment variables.
// Reads: ACEIOT_BASE_URL, ACEIOT_API_TOKEN, SIPHON_HOT_DSN, COLD_BUCKET,
// STATE_TABLE, AWS_REGION; optional SNS_TOPIC_ARN, COLD_PREFIX, and the
// tuning variables documented alongside each engine.
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	baseURL := os.Getenv("ACEIOT_BASE_URL")
	token := os.Getenv("ACEIOT_API_TOKEN")
	dsn := os.Getenv("SIPHON_HOT_DSN")
	bucket := os.Getenv("COLD_BUCKET")
	table := os.Getenv("STATE_TABLE")
	region := os.Getenv("AWS_REGION")
	switch {
	case baseURL == "":
		return nil, fmt.Errorf("ACEIOT_BASE_URL environment variable required")
	case token == "":
		return nil, fmt.Errorf("ACEIOT_API_TOKEN environment variable required")
	case dsn == "":
		return nil, fmt.Errorf("SIPHON_HOT_DSN environment variable required")
	case bucket == "":
		return nil, fmt.Errorf("COLD_BUCKET environment variable required")
	case table == "":
		return nil, fmt.Errorf("STATE_TABLE environment variable required")
	case region == "":
		return nil, fmt.Errorf("AWS_REGION environment variable required")
	}

	api := aceiot.New(aceiot.Config{
		BaseURL:  baseURL,
		Token:    token,
		PageSize: envInt("ACEIOT_PAGE_SIZE", 0),
		Timeout:  envDuration("ACEIOT_TIMEOUT", 0),
		Logger:   logger,
	})

	hot, err := hotstore.New(ctx, types.HotStoreConfig{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("connecting hot store: %w", err)
	}

	cold, err := coldstore.New(ctx, types.ColdStoreConfig{
		Bucket:   bucket,
		Prefix:   os.Getenv("COLD_PREFIX"),
		Region:   region,
		Endpoint: os.Getenv("COLD_ENDPOINT"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating cold store: %w", err)
	}

	states, err := dynamo.New(ctx, types.StateStoreConfig{
		TableName: table,
		Region:    region,
		Endpoint:  os.Getenv("STATE_ENDPOINT"),
	}, dynamo.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating state store: %w", err)
	}

	var alertFn func(types.Alert)
	if topicARN := os.Getenv("SNS_TOPIC_ARN"); topicARN != "" {
		snsSink, err := alert.NewSNSSink(topicARN)
		if err != nil {
			return nil, fmt.Errorf("creating SNS sink: %w", err)
		}
		dispatcher, err := alert.NewDispatcher(nil, logger)
		if err != nil {
			return nil, fmt.Errorf("creating alert dispatcher: %w", err)
		}
		dispatcher.AddSink(snsSink)
		alertFn = dispatcher.AlertFunc()
	} else {
		alertFn = func(a types.Alert) {
			logger.Warn("alert", "level", a.Level, "category", a.Category, "site", a.Site, "message", a.Message)
		}
	}

	d := &Deps{
		API:     api,
		Hot:     hot,
		Cold:    cold,
		States:  states,
		Locker:  states,
		AlertFn: alertFn,
		Logger:  logger,
	}
	d.Syncer = syncer.New(api, hot, states, states, syncConfigFromEnv(),
		syncer.WithLogger(logger), syncer.WithAlertFunc(alertFn))
	d.Backfill = backfill.New(api, cold, states, states, backfill.Config{
		PagesPerInvocation: envInt("BACKFILL_PAGES_PER_INVOCATION", 0),
		LockTTL:            envDuration("BACKFILL_LOCK_TTL", 0),
	}, backfill.WithLogger(logger), backfill.WithAlertFunc(alertFn))
	d.Archiver = archive.New(hot, cold, states, states, archive.Config{
		RetentionDays:       envInt("ARCHIVE_RETENTION_DAYS", 0),
		MaxPartitionsPerRun: envInt("ARCHIVE_MAX_PARTITIONS", 0),
		Concurrency:         envInt("ARCHIVE_CONCURRENCY", 0),
	}, archive.WithLogger(logger), archive.WithAlertFunc(alertFn))

	return d, nil
}

// Close releases pooled connections. Lambda containers normally never call
// this; the CLI does.
func (d *Deps) Close() {
	if d.Hot != nil {
		d.Hot.Close()
	}
}

func syncConfigFromEnv() syncer.Config {
	return syncer.Config{
		Sites:          splitEnvList("SYNC_SITES"),
		Lookback:       envDuration("SYNC_LOOKBACK", 0),
		MaxWindow:      envDuration("SYNC_MAX_WINDOW", 0),
		MaxSitesPerRun: envInt("SYNC_MAX_SITES", 0),
		TargetLag:      envDuration("SYNC_TARGET_LAG", 0),
		UrgentLag:      envDuration("SYNC_URGENT_LAG", 0),
		MaxCycles:      envInt("SYNC_MAX_CYCLES", 0),
		Budget:         envDuration("SYNC_BUDGET", 0),
		LockTTL:        envDuration("SYNC_LOCK_TTL", 0),
	}
}

func splitEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	return config.Duration(os.Getenv(key), fallback)
}
