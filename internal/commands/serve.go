package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitals-systems/siphon/internal/server"
	"github.com/vitals-systems/siphon/internal/server/handlers"
	"github.com/vitals-systems/siphon/internal/telemetry"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the siphon control server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	var shutdownTracing func(context.Context) error
	if d.cfg.Tracing != nil {
		shutdownTracing, err = telemetry.Init(ctx, *d.cfg.Tracing)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
	}

	addr := ":3000"
	var apiKey string
	var maxBody int64
	if d.cfg.Server != nil {
		if d.cfg.Server.Addr != "" {
			addr = d.cfg.Server.Addr
		}
		apiKey = d.cfg.Server.APIKey
		maxBody = d.cfg.Server.MaxRequestBody
	}
	srv := server.New(addr, handlers.Deps{
		Syncer:   d.syncer,
		Backfill: d.backfill,
		Archiver: d.archiver,
		States:   d.states,
		Hot:      d.hot,
		Config:   d.cfg,
		Logger:   d.logger,
	}, apiKey, maxBody)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		d.logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		if shutdownTracing != nil {
			_ = shutdownTracing(shutdownCtx)
		}
		d.logger.Info("server stopped")
		return nil
	}
}
