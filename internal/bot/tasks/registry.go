package tasks

import (
	"context"
)

// Task names, used as keys in the scheduler configuration.
const (
	DailyDigestTask    = "daily_digest"
	SQLMaintenanceTask = "sql_maintenance"
)

// ScheduledTaskFunc defines the signature of every scheduled task. The
// context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns all scheduled tasks keyed by name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	tasks[DailyDigestTask] = newDailyDigestTask(deps)
	tasks[SQLMaintenanceTask] = newSQLMaintenanceTask(deps)

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
