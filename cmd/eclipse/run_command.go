package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"eclipse/internal/bot"
	"eclipse/internal/config"
	"eclipse/internal/instagram"
	"eclipse/internal/linkref"
	"eclipse/internal/logging"
	"eclipse/internal/session"
	"eclipse/internal/store"
	"eclipse/internal/telegram"
	"eclipse/internal/transcode"
	"eclipse/internal/workflow"
)

func newRunCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot and process links until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			// One process per data directory; a second instance would fight
			// over the poll offset and the job ledger.
			lock := flock.New(cfg.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire instance lock: %w", err)
			}
			if !locked {
				return errors.New("another eclipse instance is already running")
			}
			defer func() { _ = lock.Unlock() }()

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if stale, err := st.FailStale(ctx, "interrupted by restart"); err != nil {
				logger.Warn("stale job sweep failed", logging.Error(err))
			} else if stale > 0 {
				logger.Info("stale jobs failed at startup", logging.Int64("count", stale))
			}

			sessions := session.NewProvider(cfg, logger)
			fetcher := instagram.NewClient(cfg, sessions, logger)
			fitter := transcode.New(cfg, logger)
			if err := fitter.Preflight(); err != nil {
				// Photos and small videos still work without ffmpeg.
				logger.Warn("ffmpeg unavailable, oversized videos will be rejected", logging.Error(err))
			}
			tgClient := telegram.NewClient(cfg, logger)
			batcher := telegram.NewBatcher(cfg, tgClient, logger)

			manager := workflow.NewManager(cfg, st, logger,
				workflow.ResolverFunc(linkref.Resolve), fetcher, fitter, batcher)

			b := bot.New(cfg, tgClient, manager, logger)
			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
