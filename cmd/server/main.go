package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"postflow/internal/api"
	"postflow/internal/app"
	"postflow/internal/config"
	"postflow/internal/service"
	"postflow/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// 2. Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Wire infrastructure, repositories and services
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// 4. Background Tasks
	var trigger *service.Trigger
	var background sync.WaitGroup
	if cfg.Publisher.Embedded {
		trigger, err = service.NewTrigger(ctx, cfg.Publisher.Schedule, a.Executor)
		if err != nil {
			return err
		}
		trigger.Start()

		background.Add(1)
		go func() {
			defer background.Done()
			logger.Info("starting reconciler")
			a.Reconciler.Run(ctx)
		}()
	}

	// 5. Setup HTTP Server
	r := api.RegisterRoutes(api.NewJobHandler(a.Scheduler, a), api.RouterConfig{
		Codec:             a.Codec,
		DevMode:           cfg.Auth.DevMode,
		Redis:             a.Redis,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	// 6. Start Server
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown Signal Wait
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Publisher.PublishTimeout+10*time.Second)
	defer shutdownCancel()

	// Signal all workers to stop; a running pass finishes its in-flight jobs
	cancel()
	if trigger != nil {
		trigger.Stop(shutdownCtx)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// the deferred Close must not pull the database from under a resume
	if !waitContext(shutdownCtx, &background) {
		logger.Warn("reconciler still running at shutdown deadline, its job is left for the next process")
	}

	logger.Info("server exited properly")
	return nil
}

// waitContext waits for wg and reports false if ctx ended first.
func waitContext(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
