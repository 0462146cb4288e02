package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/chatdigest/internal/digest"
)

// newDailyDigestTask creates the task that summarizes and delivers every
// active conversation, then prunes expired messages.
func newDailyDigestTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", DailyDigestTask)

	return func(ctx context.Context) error {
		report, err := deps.Dispatcher.Run(ctx)
		if errors.Is(err, digest.ErrRunInProgress) {
			log.WarnContext(ctx, "Previous digest run has not finished, skipping this trigger")
			return nil
		}
		if err != nil {
			return fmt.Errorf("daily digest failed: %w", err)
		}
		if report.PruneErr != nil {
			log.WarnContext(ctx, "Daily digest completed but pruning failed", "error", report.PruneErr)
		}
		if report.Failed > 0 {
			log.WarnContext(ctx, "Some conversations did not receive a digest", "failed", report.Failed, "delivered", report.Delivered)
		}
		return nil
	}
}
