// Package tasks implements the scheduled jobs of the bot and their
// registration table.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/chatdigest/internal/database"
	"github.com/edgard/chatdigest/internal/digest"
)

// DigestRunner performs one daily digest run.
type DigestRunner interface {
	Run(ctx context.Context) (digest.Report, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger     *slog.Logger
	Store      database.Store
	Dispatcher DigestRunner
}
