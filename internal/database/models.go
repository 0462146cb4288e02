package database

import (
	"database/sql"
	"fmt"
	"time"
)

// timestampLayout is fixed-width and always UTC, so comparing stored values
// as text orders them chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Message is a single ingested chat message. It is never mutated after it is
// written and is only removed by retention pruning.
type Message struct {
	ID        int64
	ChatID    int64
	ThreadID  sql.NullInt64 // invalid means the main thread
	Author    sql.NullString
	Text      string
	Timestamp time.Time // always UTC
}

// NewMessage carries the fields supplied by the ingestion path. The store
// assigns the id.
type NewMessage struct {
	ChatID    int64
	ThreadID  sql.NullInt64
	Author    sql.NullString
	Text      string
	Timestamp time.Time
}

// messageRow is the on-disk shape of a Message.
type messageRow struct {
	ID        int64          `db:"id"`
	ChatID    int64          `db:"chat_id"`
	ThreadID  sql.NullInt64  `db:"thread_id"`
	Author    sql.NullString `db:"author"`
	Text      string         `db:"text"`
	Timestamp string         `db:"timestamp"`
}

func (r messageRow) toMessage() (Message, error) {
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("message %d: %w", r.ID, err)
	}
	return Message{
		ID:        r.ID,
		ChatID:    r.ChatID,
		ThreadID:  r.ThreadID,
		Author:    r.Author,
		Text:      r.Text,
		Timestamp: ts,
	}, nil
}

// FormatTimestamp renders t in the normalized storage form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp reads a stored timestamp back as a UTC time. Values written
// by other tools in RFC 3339 form are accepted too.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ThreadFilter selects which thread MessagesSince reads.
type ThreadFilter struct {
	all bool
	id  sql.NullInt64
}

// AllThreads matches every message of the conversation regardless of thread.
// Only whole-chat callers use it; the thread-aware path always names a thread.
func AllThreads() ThreadFilter {
	return ThreadFilter{all: true}
}

// InThread matches exactly one thread. An invalid id selects the main thread
// only, never the named ones.
func InThread(id sql.NullInt64) ThreadFilter {
	return ThreadFilter{id: id}
}

// String is used in log attributes.
func (f ThreadFilter) String() string {
	switch {
	case f.all:
		return "all"
	case f.id.Valid:
		return fmt.Sprintf("%d", f.id.Int64)
	default:
		return "main"
	}
}
