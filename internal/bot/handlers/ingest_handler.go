package handlers

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatdigest/internal/config"
	"github.com/edgard/chatdigest/internal/database"
	"github.com/edgard/chatdigest/internal/errs"
	"github.com/edgard/chatdigest/internal/metrics"
)

// NewIngestHandler returns the default handler that records every plain text
// message and channel post. Storage failures are logged and the message is
// dropped.
func NewIngestHandler(deps HandlerDeps) bot.HandlerFunc {
	timeout := config.DefaultDigestIngestTimeout
	if deps.Config != nil && deps.Config.Digest.IngestTimeout > 0 {
		timeout = deps.Config.Digest.IngestTimeout
	}
	return ingestHandler{deps: deps, timeout: timeout}.Handle
}

type ingestHandler struct {
	deps    HandlerDeps
	timeout time.Duration
}

func (h ingestHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg, ok := MessageFromUpdate(update)
	if !ok {
		return
	}
	log := h.deps.Logger.With("handler", "ingest", "chat_id", msg.ChatID)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	stored, err := h.deps.Store.Record(ctx, msg)
	if err != nil {
		log.WarnContext(ctx, "Dropping message that could not be stored", "update_id", update.ID, "error", err)
		metrics.MessagesDropped.WithLabelValues(errs.Code(err)).Inc()
		return
	}

	metrics.MessagesRecorded.Inc()
	log.DebugContext(ctx, "Message recorded", "message_id", stored.ID)
}

// MessageFromUpdate extracts the storable message from a Telegram update.
// It reports false for updates without text, for bot commands and for
// update kinds other than messages and channel posts.
func MessageFromUpdate(update *models.Update) (database.NewMessage, bool) {
	if update == nil {
		return database.NewMessage{}, false
	}

	m := update.Message
	channel := false
	if m == nil {
		m = update.ChannelPost
		channel = true
	}
	if m == nil || strings.TrimSpace(m.Text) == "" || isCommand(m) {
		return database.NewMessage{}, false
	}

	msg := database.NewMessage{
		ChatID:    m.Chat.ID,
		Author:    authorOf(m, channel),
		Text:      m.Text,
		Timestamp: time.Unix(int64(m.Date), 0).UTC(),
	}
	if m.Date == 0 {
		msg.Timestamp = time.Now().UTC()
	}
	if m.MessageThreadID != 0 {
		msg.ThreadID = sql.NullInt64{Int64: int64(m.MessageThreadID), Valid: true}
	}
	return msg, true
}

func isCommand(m *models.Message) bool {
	for _, e := range m.Entities {
		if e.Type == models.MessageEntityTypeBotCommand && e.Offset == 0 {
			return true
		}
	}
	return false
}

func authorOf(m *models.Message, channel bool) sql.NullString {
	name := ""
	switch {
	case m.From != nil && !channel:
		name = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		if name == "" {
			name = m.From.Username
		}
		if name == "" {
			name = strconv.FormatInt(m.From.ID, 10)
		}
	case m.AuthorSignature != "":
		name = m.AuthorSignature
	case m.SenderChat != nil:
		name = m.SenderChat.Title
	case channel:
		name = m.Chat.Title
	}
	return sql.NullString{String: name, Valid: name != ""}
}
