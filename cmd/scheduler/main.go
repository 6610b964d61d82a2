// Package main implements the dwellops scheduler daemon. It runs the
// notification dispatch loop, the daily transition and reminder sequence,
// the retention sweep, and the stats tick as concurrent loops over one
// shared task runner, plus the ops HTTP listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"dwellops/internal/app"
	"dwellops/internal/config"
	"dwellops/internal/ops"
	"dwellops/internal/runner"
	"dwellops/internal/types"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "scheduler exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env support for local development; absent in deployed environments.
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, types.RealClock{}, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	logger.InfoContext(ctx, "scheduler starting",
		"service", cfg.Service,
		"environment", cfg.Environment,
		"dispatch_interval", cfg.Schedule.DispatchInterval,
		"daily_interval", cfg.Schedule.DailyInterval,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return application.Runner.Loop(gctx, runner.TaskDispatchNotifications)
	})
	g.Go(func() error {
		return application.Runner.LoopSequence(gctx, cfg.Schedule.DailyInterval, app.DailySequence)
	})
	g.Go(func() error {
		return application.Runner.Loop(gctx, runner.TaskRetentionSweep)
	})
	g.Go(func() error {
		return application.Runner.Loop(gctx, runner.TaskNotificationStats)
	})

	if cfg.Ops.Enabled {
		opsServer := ops.NewServer(cfg.Ops, application.Pool, application.Stats, logger)
		g.Go(func() error {
			return opsServer.Run(gctx)
		})
	}

	err = g.Wait()
	logger.Info("scheduler stopped")
	return err
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With(
		"service", cfg.Service,
		"env", cfg.Environment,
	)
}
