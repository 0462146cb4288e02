// Package main contains the entrypoint for the chat digest bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/chatdigest/internal/bot"
	"github.com/edgard/chatdigest/internal/bot/handlers"
	"github.com/edgard/chatdigest/internal/bot/tasks"
	"github.com/edgard/chatdigest/internal/config"
	"github.com/edgard/chatdigest/internal/database"
	"github.com/edgard/chatdigest/internal/digest"
	"github.com/edgard/chatdigest/internal/gemini"
	"github.com/edgard/chatdigest/internal/logger"
	"github.com/edgard/chatdigest/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components, blocks until shutdown and returns the
// process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "", "Path to configuration file (default ./config.yaml, optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	loc, err := cfg.Digest.Location()
	if err != nil {
		log.Error("Invalid digest time zone", "error", err)
		return 1
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, nil, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Store:  store,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewIngestHandler(hDeps)),
		tgbot.WithAllowedUpdates(tgbot.AllowedUpdates{"message", "channel_post"}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	composer := digest.NewComposer(gemClient, cfg.Gemini.Timeout, log)
	aggregator := digest.NewAggregator(store, composer, cfg.Digest.StoreTimeout, log)
	sender := telegram.NewSender(tg, cfg.Digest.DeliveryTimeout, log)
	dispatcher := digest.NewDispatcher(store, aggregator, sender, nil, digest.Options{
		Window:          cfg.Digest.Window,
		MaxLength:       cfg.Digest.MaxLength,
		RetentionDays:   cfg.Digest.RetentionDays,
		StoreTimeout:    cfg.Digest.StoreTimeout,
		DeliveryTimeout: cfg.Digest.DeliveryTimeout,
	}, log)

	tDeps := tasks.TaskDeps{
		Logger:     log,
		Store:      store,
		Dispatcher: dispatcher,
	}
	sched, err := bot.NewScheduler(log, bot.ScheduledJobs(cfg), tasks.RegisterAllTasks(tDeps), loc, nil)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, tg, sched)

	log.Info("Starting bot...", "digest_schedule", cfg.Digest.CronExpression(), "timezone", loc.String())
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}
