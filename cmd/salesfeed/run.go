package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rickgao/salesfeed/internal/config"
	"github.com/rickgao/salesfeed/internal/version"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run the sales feed service",
		Action: func(c *cli.Context) error {
			logger, err := newLogger(c)
			if err != nil {
				return err
			}

			logger.Info("starting salesfeed",
				"version", version.Version,
				"commit", version.Commit,
				"config", c.String("config"),
			)

			cfg, err := config.LoadAndValidate(c.String("config"))
			if err != nil {
				return err
			}

			logger.Info("configuration loaded",
				"instance_id", cfg.Instance.ID,
				"ws_url", cfg.API.WSURL,
				"topics", len(cfg.Topics),
			)

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			if err := app.Start(ctx); err != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = app.Stop(shutdownCtx)
				return err
			}

			logger.Info("salesfeed running", "instance_id", cfg.Instance.ID)

			<-ctx.Done()
			logger.Info("shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.Stop(shutdownCtx); err != nil {
				return err
			}

			logger.Info("salesfeed stopped")
			return nil
		},
	}
}
