package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatdigest/internal/errs"
)

// Store defines the message store operations. All time arguments are
// normalized to UTC before they reach the database, and every failure is
// returned as an *errs.StorageError.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// Record appends a message and returns it with the id assigned by the store.
	Record(ctx context.Context, msg NewMessage) (*Message, error)

	// ActiveConversations lists, in ascending order, the chats with at least
	// one message at or after since.
	ActiveConversations(ctx context.Context, since time.Time) ([]int64, error)

	// ActiveThreads lists the distinct thread ids seen in a chat at or after
	// since. The main thread (invalid id) sorts first, then ascending ids.
	ActiveThreads(ctx context.Context, chatID int64, since time.Time) ([]sql.NullInt64, error)

	// MessagesSince returns the messages of a chat at or after since, oldest
	// first, restricted by filter.
	MessagesSince(ctx context.Context, chatID int64, since time.Time, filter ThreadFilter) ([]Message, error)

	// PruneOlderThan deletes every message older than retentionDays days and
	// reports how many were removed.
	PruneOlderThan(ctx context.Context, retentionDays int) (int64, error)

	// RunSQLMaintenance compacts the database file.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store on top of sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewStore creates a Store backed by db. The clock decides "now" for pruning;
// nil means the real clock.
func NewStore(db *sqlx.DB, clock clockwork.Clock, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &sqlxStore{
		db:     db,
		clock:  clock,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errs.NewStorageError("ping failed", err)
	}
	return nil
}

func (s *sqlxStore) Record(ctx context.Context, msg NewMessage) (*Message, error) {
	if msg.ChatID == 0 {
		return nil, errs.NewStorageError("message must have a non-zero chat_id", nil)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, errs.NewStorageError("message must have non-empty text", nil)
	}
	if msg.Timestamp.IsZero() {
		return nil, errs.NewStorageError("message must have a non-zero timestamp", nil)
	}

	row := messageRow{
		ChatID:    msg.ChatID,
		ThreadID:  msg.ThreadID,
		Author:    msg.Author,
		Text:      msg.Text,
		Timestamp: FormatTimestamp(msg.Timestamp),
	}

	query := `
        INSERT INTO messages (chat_id, thread_id, author, text, timestamp)
        VALUES (:chat_id, :thread_id, :author, :text, :timestamp);
    `

	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message", "chat_id", msg.ChatID, "error", err)
		return nil, errs.NewStorageError(fmt.Sprintf("failed to save message (chat %d)", msg.ChatID), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, errs.NewStorageError("could not retrieve id of saved message", err)
	}

	stored := &Message{
		ID:        id,
		ChatID:    msg.ChatID,
		ThreadID:  msg.ThreadID,
		Author:    msg.Author,
		Text:      msg.Text,
		Timestamp: msg.Timestamp.UTC(),
	}

	s.logger.DebugContext(ctx, "Message saved successfully",
		"chat_id", msg.ChatID, "thread_id", InThread(msg.ThreadID).String(), "message_id", id)
	return stored, nil
}

func (s *sqlxStore) ActiveConversations(ctx context.Context, since time.Time) ([]int64, error) {
	var chatIDs []int64
	query := `SELECT DISTINCT chat_id FROM messages WHERE timestamp >= ? ORDER BY chat_id;`

	if err := s.db.SelectContext(ctx, &chatIDs, query, FormatTimestamp(since)); err != nil {
		s.logger.ErrorContext(ctx, "Error listing active conversations", "since", since, "error", err)
		return nil, errs.NewStorageError("failed to list active conversations", err)
	}

	s.logger.DebugContext(ctx, "Fetched active conversations", "since", since, "count", len(chatIDs))
	return chatIDs, nil
}

func (s *sqlxStore) ActiveThreads(ctx context.Context, chatID int64, since time.Time) ([]sql.NullInt64, error) {
	var threads []sql.NullInt64
	// SQLite orders NULL before any integer in ascending order.
	query := `
        SELECT DISTINCT thread_id
        FROM messages
        WHERE chat_id = ? AND timestamp >= ?
        ORDER BY thread_id;
    `

	if err := s.db.SelectContext(ctx, &threads, query, chatID, FormatTimestamp(since)); err != nil {
		s.logger.ErrorContext(ctx, "Error listing active threads", "chat_id", chatID, "error", err)
		return nil, errs.NewStorageError(fmt.Sprintf("failed to list active threads for chat %d", chatID), err)
	}

	return threads, nil
}

func (s *sqlxStore) MessagesSince(ctx context.Context, chatID int64, since time.Time, filter ThreadFilter) ([]Message, error) {
	var b strings.Builder
	b.WriteString(`
        SELECT id, chat_id, thread_id, author, text, timestamp
        FROM messages
        WHERE chat_id = ? AND timestamp >= ?`)
	args := []any{chatID, FormatTimestamp(since)}

	switch {
	case filter.all:
	case filter.id.Valid:
		b.WriteString(` AND thread_id = ?`)
		args = append(args, filter.id.Int64)
	default:
		b.WriteString(` AND thread_id IS NULL`)
	}
	b.WriteString(` ORDER BY timestamp ASC, id ASC;`)

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, b.String(), args...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching messages", "chat_id", chatID, "error", err)
		} else {
			s.logger.ErrorContext(ctx, "Error fetching messages", "chat_id", chatID, "thread", filter.String(), "error", err)
		}
		return nil, errs.NewStorageError(fmt.Sprintf("failed to get messages for chat %d", chatID), err)
	}

	messages := make([]Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toMessage()
		if err != nil {
			return nil, errs.NewStorageError("malformed message row", err)
		}
		messages = append(messages, m)
	}

	s.logger.DebugContext(ctx, "Fetched messages", "chat_id", chatID, "thread", filter.String(), "count", len(messages))
	return messages, nil
}

func (s *sqlxStore) PruneOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, errs.NewStorageError(fmt.Sprintf("retention must not be negative, got %d days", retentionDays), nil)
	}

	threshold := s.clock.Now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?;`, FormatTimestamp(threshold))
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning messages", "threshold", threshold, "error", err)
		return 0, errs.NewStorageError("failed to prune messages", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errs.NewStorageError("could not read pruned row count", err)
	}

	s.logger.InfoContext(ctx, "Pruned old messages", "retention_days", retentionDays, "threshold", threshold, "deleted", deleted)
	return deleted, nil
}

// RunSQLMaintenance executes VACUUM followed by PRAGMA optimize. VACUUM must
// run outside a transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")
	startTime := time.Now()

	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Failed to run VACUUM", "error", err)
		return errs.NewStorageError("vacuum failed", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		s.logger.WarnContext(ctx, "Failed to run PRAGMA optimize", "error", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed", "duration", time.Since(startTime))
	return nil
}
