// sync Lambda runs one incremental sync pass across the configured sites.
// Invoked by EventBridge on a regular interval (e.g. every 2 minutes).
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/vitals-systems/siphon/internal/worker"
)

var (
	deps     *worker.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*worker.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = worker.Init(context.Background())
	})
	return deps, depsErr
}

func handler(ctx context.Context, _ worker.SyncRequest) (worker.SyncResponse, error) {
	d, err := getDeps()
	if err != nil {
		return worker.SyncResponse{}, err
	}

	report, err := d.Syncer.Run(ctx)
	if err != nil {
		return worker.SyncResponse{}, err
	}

	d.Logger.Info("sync run complete",
		"runId", report.RunID,
		"sitesSynced", report.SitesSynced,
		"sitesFailed", report.SitesFailed,
		"cycles", report.Cycles,
		"durationMs", report.DurationMS,
	)
	return worker.SyncResponse{Report: report}, nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
