package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"library-lending/api"
)

func newServeCmd(g *globals) *cobra.Command {
	var (
		accessLog     bool
		sweepInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

			mgr, err := openManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if sweepInterval > 0 {
				go sweepEvery(ctx, mgr, logger, sweepInterval)
			}

			srv := api.New(mgr, api.Options{JWTSecret: cfg.JWTSecret, Logger: logger, AccessLog: accessLog})
			errc := make(chan error, 1)
			go func() { errc <- srv.Listen(":" + cfg.Port) }()
			logger.Info("listening", "port", cfg.Port, "driver", cfg.DBDriver, "env", cfg.Env)

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&accessLog, "access-log", false, "log every request")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", time.Hour, "how often to run the overdue and hold sweep (0 disables)")
	return cmd
}
