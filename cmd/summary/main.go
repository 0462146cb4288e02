// Package main runs a one-off digest over every active chat, summarizing
// each chat as a whole. By default the digests are printed; with -send they
// are delivered to the chats instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

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

func run(ctx context.Context) int {
	configPath := flag.String("config", "", "Path to configuration file (default ./config.yaml, optional)")
	send := flag.Bool("send", false, "Deliver digests to the chats instead of printing them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}
	log := logger.New(os.Stderr, cfg.Logger.Level, cfg.Logger.JSON)

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
	aggregator := digest.NewAggregator(store, digest.NewComposer(gemClient, cfg.Gemini.Timeout, log), cfg.Digest.StoreTimeout, log)

	var sender *telegram.Sender
	if *send {
		tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithSkipGetMe())
		if err != nil {
			log.Error("Failed to create Telegram bot", "error", err)
			return 1
		}
		sender = telegram.NewSender(tg, cfg.Digest.DeliveryTimeout, log)
	}

	since := time.Now().UTC().Add(-cfg.Digest.Window)
	chatIDs, err := store.ActiveConversations(ctx, since)
	if err != nil {
		log.Error("Failed to list active chats", "error", err)
		return 1
	}
	if len(chatIDs) == 0 {
		fmt.Println("Нет активных чатов за последние 24 часа.")
		return 0
	}

	for _, chatID := range chatIDs {
		if ctx.Err() != nil {
			log.Warn("Interrupted", "error", ctx.Err())
			return 1
		}

		text, ok, err := aggregator.WholeChat(ctx, chatID, since)
		if err != nil {
			log.Error("Failed to summarize chat", "chat_id", chatID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		text = digest.Truncate(text, cfg.Digest.MaxLength)

		if sender == nil {
			fmt.Printf("\n=== Саммари для чата %d ===\n%s\n", chatID, text)
			continue
		}
		if err := sender.Deliver(ctx, chatID, text); err != nil {
			log.Error("Failed to deliver digest", "chat_id", chatID, "error", err)
			continue
		}
		fmt.Printf("Отправлено саммари в чат %d\n", chatID)
	}
	return 0
}
