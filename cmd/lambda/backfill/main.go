// backfill Lambda advances one site's historical backfill by a bounded
// number of pages. Step Functions re-invokes it while the result reports a
// continuation.
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

func handler(ctx context.Context, req worker.BackfillRequest) (worker.BackfillResponse, error) {
	d, err := getDeps()
	if err != nil {
		return worker.BackfillResponse{}, err
	}

	result, err := d.Backfill.Trigger(ctx, req)
	if err != nil {
		d.Logger.Error("backfill invocation failed", "site", req.Site, "error", err)
		if result != nil {
			// A transient mid-batch failure still carries Continuation, so
			// the state machine retries by re-invoking with the partial
			// progress in hand. Only a result-less failure (bad request,
			// state store down) fails the invocation outright.
			return worker.BackfillResponse{Result: result, Error: err.Error()}, nil
		}
		return worker.BackfillResponse{}, err
	}

	d.Logger.Info("backfill invocation complete",
		"site", req.Site,
		"status", result.Status,
		"currentDate", result.Progress.CurrentDate,
		"continuation", result.Continuation,
	)
	return worker.BackfillResponse{Result: result}, nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
