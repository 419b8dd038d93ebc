package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"library-lending/library"
)

func newSweepCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Persist overdue loans, send due-soon reminders and expire lapsed holds",
		Long: `sweep visits every open loan and every notified reservation once. Reads
never change state, so run it from cron when the API is not running with
--sweep-interval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
			mgr, err := openManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()
			return runSweep(cmd.Context(), mgr, logger)
		},
	}
}

func runSweep(ctx context.Context, mgr *library.LibraryManager, logger *slog.Logger) error {
	loans, err := mgr.SyncOpenLoans(ctx)
	if err != nil {
		return fmt.Errorf("sync loans: %w", err)
	}
	expired, err := mgr.ExpireReservations(ctx)
	if err != nil {
		return fmt.Errorf("expire reservations: %w", err)
	}
	logger.InfoContext(ctx, "sweep finished", "open_loans", loans, "reservations_expired", expired)
	return nil
}

func sweepEvery(ctx context.Context, mgr *library.LibraryManager, logger *slog.Logger, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := runSweep(ctx, mgr, logger); err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}
