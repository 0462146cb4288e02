package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatdigest/internal/config"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler processes the /start command using injected dependencies.
type startHandler struct {
	deps HandlerDeps
}

// StartGreeting describes what the bot does and when the digest arrives.
func StartGreeting(cfg config.DigestConfig) string {
	window := "24 часа"
	if cfg.Window != 24*time.Hour {
		window = fmt.Sprintf("%.0f ч.", cfg.Window.Hours())
	}
	return fmt.Sprintf(
		"Привет! Я бот для дневных саммари чата.\n"+
			"— Сохраняю все текстовые сообщения.\n"+
			"— В %02d:%02d %s отправляю краткое саммари за последние %s.\n"+
			"— Использую Google Gemini для саммаризации.",
		cfg.Hour, cfg.Minute, cfg.Timezone, window)
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil {
		log.WarnContext(ctx, "Start handler received update with nil message", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	log.InfoContext(ctx, "Handling /start command", "chat_id", chatID)

	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: StartGreeting(h.deps.Config.Digest)})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send welcome message", "error", err, "chat_id", chatID)
	}
}
