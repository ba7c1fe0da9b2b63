// Command publisher runs a single publication pass followed by one
// reconciliation round, for invocation from an external scheduler.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postflow/internal/app"
	"postflow/internal/config"
	"postflow/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	skipReconcile := flag.Bool("skip-reconcile", false, "only run the publication pass")
	flag.Parse()

	cfg := config.Load()
	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg, *skipReconcile); err != nil {
		logger.Error("publisher run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, skipReconcile bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Executor.RunPass(ctx, time.Now())
	logger.Info("pass complete",
		zap.Int("claimed", report.Claimed),
		zap.Int("published", report.Published),
		zap.Int("failed", report.Failed),
		zap.Int("incomplete", report.Incomplete))
	if err != nil {
		return err
	}

	if skipReconcile {
		return nil
	}
	resumed, err := a.Reconciler.RunOnce(ctx)
	if err != nil {
		return err
	}
	logger.Info("reconcile complete", zap.Int("resumed", resumed))
	return nil
}
