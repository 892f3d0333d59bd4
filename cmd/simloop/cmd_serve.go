package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-sim-loop/internal/api"
	"go-sim-loop/internal/api/handler"
	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/config"
	"go-sim-loop/internal/pipeline"
	"go-sim-loop/internal/simulate"
	"go-sim-loop/internal/store"
	"go-sim-loop/pkg/router"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the feedback loop and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				a.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.logger)
		},
	}
	cmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	return cmd
}

// serve runs the loop, the API and the model cleanup until ctx is done or one
// of them fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	models := store.NewModelFiles(cfg.Models.Dir, cfg.Models.Retention)
	if err := models.EnsureDir(); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	broker := bus.NewMemoryBroker(bus.Options{
		RedeliveryDelay: cfg.Bus.RedeliveryDelay,
		MaxRedeliveries: cfg.Bus.MaxRedeliveries,
		Logger:          logger.With("component", "bus"),
	})
	defer broker.Close()

	loop, err := pipeline.NewLoop(cfg, pipeline.Deps{
		Broker:    broker,
		Models:    models,
		Simulator: simulate.NewBouncingBall(),
		Store:     st,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := loop.Hydrate(ctx); err != nil {
		return err
	}

	r := router.New(logger.With("component", "http"))
	api.RegisterRoutes(r, handler.New(loop, st, models, logger.With("component", "api")))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		return r.Start(gctx, fmt.Sprintf(":%d", cfg.Server.Port), cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		cleanupModels(gctx, models, cfg.Models.CleanupInterval, logger)
		return nil
	})
	return g.Wait()
}

// cleanupModels removes expired model files now and then on every interval.
func cleanupModels(ctx context.Context, models *store.ModelFiles, interval time.Duration, logger *slog.Logger) {
	sweep := func() {
		removed, err := models.Cleanup(time.Now())
		if err != nil {
			logger.Warn("model cleanup failed", "error", err)
			return
		}
		if removed > 0 {
			logger.Info("expired models removed", "count", removed, "dir", models.BaseDir)
		}
	}

	sweep()
	if interval <= 0 || models.Retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
