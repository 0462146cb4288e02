package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatdigest/internal/errs"
)

// DefaultDeliveryTimeout bounds a single outbound message.
const DefaultDeliveryTimeout = 10 * time.Second

// MessageSender is the part of *bot.Bot used for outbound messages.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Sender delivers plain-text digests to Telegram chats.
type Sender struct {
	api     MessageSender
	timeout time.Duration
	log     *slog.Logger
}

// NewSender creates a Sender on top of api. A zero timeout means
// DefaultDeliveryTimeout.
func NewSender(api MessageSender, timeout time.Duration, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &Sender{
		api:     api,
		timeout: timeout,
		log:     logger.With("component", "telegram_sender"),
	}
}

// Deliver sends text to chatID as a single message. Any failure is returned
// as an *errs.DeliveryError.
func (s *Sender) Deliver(ctx context.Context, chatID int64, text string) error {
	if text == "" {
		return errs.NewDeliveryError(chatID, "refusing to send an empty message", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
		return errs.NewDeliveryError(chatID, fmt.Sprintf("failed to send message to chat %d", chatID), err)
	}

	s.log.DebugContext(ctx, "Message sent", "chat_id", chatID, "message_id", msg.ID, "length", len(text))
	return nil
}
