// Package digest turns stored chat messages into daily digests: it projects
// messages into a transcript, asks the language model for a summary, merges
// per-thread summaries and drives the daily multi-chat run.
package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/chatdigest/internal/database"
	"github.com/edgard/chatdigest/internal/errs"
)

// UnknownAuthor replaces a missing author name in the transcript.
const UnknownAuthor = "Unknown"

// Generator is the language-model collaborator. Implementations must respect
// ctx and fail rather than block.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Composer turns an ordered set of messages into a digest with one Generator call.
type Composer struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

// NewComposer creates a Composer. A zero timeout leaves the deadline to the
// caller's context.
func NewComposer(gen Generator, timeout time.Duration, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Composer{
		gen:     gen,
		timeout: timeout,
		logger:  logger.With("component", "digest_composer"),
	}
}

// MessageLine renders one transcript line: "author: text" with the text
// collapsed onto a single line.
func MessageLine(m database.Message) string {
	author := UnknownAuthor
	if m.Author.Valid && strings.TrimSpace(m.Author.String) != "" {
		author = m.Author.String
	}
	text := strings.TrimSpace(m.Text)
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return author + ": " + text
}

// FormatBlock bullets every non-blank line and joins them with newlines,
// keeping their order.
func FormatBlock(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(line)
	}
	return b.String()
}

// BuildPrompt prepends the fixed instruction to a transcript block.
func BuildPrompt(block string) string {
	return SystemPrompt + "\n\n" + transcriptMarker + block
}

// Summarize asks the Generator for a digest of block. Any collaborator
// failure, including an empty answer, is returned as *errs.SummarizationError.
func (c *Composer) Summarize(ctx context.Context, block string) (string, error) {
	if c.gen == nil {
		return "", errs.NewSummarizationError("no language model configured", nil)
	}
	if strings.TrimSpace(block) == "" {
		return "", errs.NewSummarizationError("nothing to summarize", nil)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	text, err := c.gen.Generate(ctx, BuildPrompt(block))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.WarnContext(ctx, "Summarization timed out", "timeout", c.timeout)
		}
		return "", errs.NewSummarizationError("language model call failed", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.NewSummarizationError("language model returned an empty summary", nil)
	}

	c.logger.DebugContext(ctx, "Summary generated", "block_len", len(block), "summary_len", len(text), "duration", time.Since(startTime))
	return text, nil
}

// Digest projects msgs into a transcript and summarizes it.
func (c *Composer) Digest(ctx context.Context, msgs []database.Message) (string, error) {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, MessageLine(m))
	}
	return c.Summarize(ctx, FormatBlock(lines))
}
