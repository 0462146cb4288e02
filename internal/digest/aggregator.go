package digest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/chatdigest/internal/database"
)

// Section labels and the separator drawn between merged sections.
const (
	MainThreadLabel = "Основной чат"
	threadLabelFmt  = "Тема %d"
)

// SectionSeparator is the visual divider between thread sections of a merged digest.
var SectionSeparator = "\n\n" + strings.Repeat("═", 50) + "\n\n"

// MessageSource is the read side of the message store used by the aggregator.
type MessageSource interface {
	ActiveThreads(ctx context.Context, chatID int64, since time.Time) ([]sql.NullInt64, error)
	MessagesSince(ctx context.Context, chatID int64, since time.Time, filter database.ThreadFilter) ([]database.Message, error)
}

// Section is one labelled thread digest inside a merged Result.
type Section struct {
	ThreadID sql.NullInt64
	Label    string
	Text     string
}

// Result is either a single digest (one active thread, no header) or a merged
// list of labelled per-thread digests.
type Result struct {
	merged   bool
	single   string
	sections []Section
}

// Single builds a single-thread Result.
func Single(text string) Result {
	return Result{single: text}
}

// Merged builds a multi-thread Result.
func Merged(sections []Section) Result {
	return Result{merged: true, sections: sections}
}

// IsMerged reports whether r holds per-thread sections.
func (r Result) IsMerged() bool {
	return r.merged
}

// Sections returns the per-thread sections of a merged Result.
func (r Result) Sections() []Section {
	return r.sections
}

// Text flattens the Result into the delivered message.
func (r Result) Text() string {
	if !r.IsMerged() {
		return r.single
	}
	parts := make([]string, 0, len(r.sections))
	for _, s := range r.sections {
		parts = append(parts, fmt.Sprintf("🔖 **%s**\n%s", s.Label, s.Text))
	}
	return strings.Join(parts, SectionSeparator)
}

// ThreadLabel names a thread in a merged digest.
func ThreadLabel(threadID sql.NullInt64) string {
	if threadID.Valid {
		return fmt.Sprintf(threadLabelFmt, threadID.Int64)
	}
	return MainThreadLabel
}

// Aggregator decides between one digest and one digest per active thread.
type Aggregator struct {
	source       MessageSource
	composer     *Composer
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewAggregator creates an Aggregator reading from source. Each store query
// is bounded by storeTimeout (DefaultStoreTimeout when zero).
func NewAggregator(source MessageSource, composer *Composer, storeTimeout time.Duration, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Aggregator{
		source:       source,
		composer:     composer,
		storeTimeout: storeTimeout,
		logger:       logger.With("component", "thread_aggregator"),
	}
}

// Aggregate builds the digest of chatID since the given instant. ok is false
// when there is nothing to deliver. With several active threads, a failing
// thread is logged and left out; the remaining sections are still returned.
func (a *Aggregator) Aggregate(ctx context.Context, chatID int64, since time.Time) (res Result, ok bool, err error) {
	log := a.logger.With("chat_id", chatID)

	threads, err := a.activeThreads(ctx, chatID, since)
	if err != nil {
		return Result{}, false, fmt.Errorf("chat %d: %w", chatID, err)
	}

	switch len(threads) {
	case 0:
		log.DebugContext(ctx, "No active threads")
		return Result{}, false, nil
	case 1:
		text, found, err := a.threadDigest(ctx, chatID, since, threads[0])
		if err != nil {
			return Result{}, false, fmt.Errorf("chat %d: %w", chatID, err)
		}
		if !found {
			return Result{}, false, nil
		}
		return Single(text), true, nil
	}

	log.InfoContext(ctx, "Summarizing threads separately", "threads", len(threads))

	sections := make([]Section, 0, len(threads))
	for _, threadID := range threads {
		text, found, err := a.threadDigest(ctx, chatID, since, threadID)
		if err != nil {
			log.ErrorContext(ctx, "Thread digest failed, skipping", "thread", database.InThread(threadID).String(), "error", err)
			continue
		}
		if !found {
			continue
		}
		sections = append(sections, Section{ThreadID: threadID, Label: ThreadLabel(threadID), Text: text})
	}

	if len(sections) == 0 {
		log.WarnContext(ctx, "No thread produced a digest", "threads", len(threads))
		return Result{}, false, nil
	}
	return Merged(sections), true, nil
}

func (a *Aggregator) threadDigest(ctx context.Context, chatID int64, since time.Time, threadID sql.NullInt64) (string, bool, error) {
	msgs, err := a.messages(ctx, chatID, since, database.InThread(threadID))
	if err != nil {
		return "", false, err
	}
	if len(msgs) == 0 {
		return "", false, nil
	}

	text, err := a.composer.Digest(ctx, msgs)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// WholeChat summarizes every message of chatID since the given instant
// without splitting by thread. ok is false when the chat was silent.
func (a *Aggregator) WholeChat(ctx context.Context, chatID int64, since time.Time) (text string, ok bool, err error) {
	msgs, err := a.messages(ctx, chatID, since, database.AllThreads())
	if err != nil {
		return "", false, fmt.Errorf("chat %d: %w", chatID, err)
	}
	if len(msgs) == 0 {
		return "", false, nil
	}
	text, err = a.composer.Digest(ctx, msgs)
	if err != nil {
		return "", false, fmt.Errorf("chat %d: %w", chatID, err)
	}
	return text, true, nil
}

func (a *Aggregator) activeThreads(ctx context.Context, chatID int64, since time.Time) ([]sql.NullInt64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	return a.source.ActiveThreads(ctx, chatID, since)
}

func (a *Aggregator) messages(ctx context.Context, chatID int64, since time.Time, filter database.ThreadFilter) ([]database.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	return a.source.MessagesSince(ctx, chatID, since, filter)
}
