// Package bot wires the Telegram listener, the task scheduler and the
// metrics endpoint together and manages their lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/chatdigest/internal/config"
	"github.com/edgard/chatdigest/internal/metrics"
)

// Listener receives Telegram updates until ctx is cancelled.
type Listener interface {
	Start(ctx context.Context)
}

// TaskScheduler runs the scheduled tasks in the background.
type TaskScheduler interface {
	Start() error
	Stop() error
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	listener  Listener
	scheduler TaskScheduler
}

// NewBot creates a new bot orchestrator.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	listener Listener,
	scheduler TaskScheduler,
) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		cfg:       cfg,
		listener:  listener,
		scheduler: scheduler,
	}
}

// Run starts all components and blocks until ctx is cancelled or one of
// them fails.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.listener.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	if addr := b.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error {
			return metrics.Serve(gCtx, addr, b.logger)
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
