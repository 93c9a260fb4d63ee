// archive Lambda moves aged hot partitions to cold storage. Invoked by
// EventBridge once a day, off-peak.
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

func handler(ctx context.Context, _ worker.ArchiveRequest) (worker.ArchiveResponse, error) {
	d, err := getDeps()
	if err != nil {
		return worker.ArchiveResponse{}, err
	}

	metrics, err := d.Archiver.Run(ctx)
	if err != nil {
		return worker.ArchiveResponse{}, err
	}

	d.Logger.Info("archive run complete",
		"runId", metrics.RunID,
		"archived", metrics.PartitionsArchived,
		"skipped", metrics.PartitionsSkipped,
		"failed", metrics.PartitionsFailed,
		"rowsArchived", metrics.RowsArchived,
	)
	return worker.ArchiveResponse{Metrics: metrics}, nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
