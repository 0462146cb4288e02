package bot

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/chatdigest/internal/bot/tasks"
	"github.com/edgard/chatdigest/internal/config"
)

// ScheduledJobs returns the configured maintenance tasks plus the daily
// digest, whose schedule is derived from the digest hour and minute.
func ScheduledJobs(cfg *config.Config) map[string]config.TaskConfig {
	jobs := make(map[string]config.TaskConfig, len(cfg.Scheduler.Tasks)+1)
	maps.Copy(jobs, cfg.Scheduler.Tasks)
	jobs[tasks.DailyDigestTask] = config.TaskConfig{
		Enabled:  true,
		Schedule: cfg.Digest.CronExpression(),
	}
	return jobs
}

// Scheduler manages scheduled tasks using the gocron library.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	jobs      map[string]config.TaskConfig
	taskMap   map[string]tasks.ScheduledTaskFunc
	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
}

// NewScheduler creates a scheduler evaluating cron expressions in loc. A nil
// clock means the real clock.
func NewScheduler(
	logger *slog.Logger,
	jobs map[string]config.TaskConfig,
	taskMap map[string]tasks.ScheduledTaskFunc,
	loc *time.Location,
	clock clockwork.Clock,
) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	log := logger.With("component", "scheduler")

	opts := []gocron.SchedulerOption{
		gocron.WithLocation(loc),
		gocron.WithLogger(log),
	}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}

	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    log,
		jobs:      jobs,
		taskMap:   taskMap,
	}, nil
}

// Start registers all enabled tasks and starts the scheduler. Each job runs
// in singleton mode: a trigger that fires while the previous run of the same
// job is still active is skipped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())

	var registered []gocron.Job
	for _, taskName := range slices.Sorted(maps.Keys(s.jobs)) {
		taskConfig := s.jobs[taskName]
		if !taskConfig.Enabled {
			s.logger.Info("Skipping disabled task", "task_name", taskName)
			continue
		}

		taskFunc, exists := s.taskMap[taskName]
		if !exists {
			s.logger.Warn("Scheduled task configured but not found in registry, skipping", "task_name", taskName)
			continue
		}

		if taskConfig.Schedule == "" {
			s.logger.Warn("Scheduled task enabled but has empty schedule, skipping", "task_name", taskName)
			continue
		}

		name := taskName
		job, err := s.scheduler.NewJob(
			gocron.CronJob(taskConfig.Schedule, false),
			gocron.NewTask(func() { s.runTask(ctx, name, taskFunc) }),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			s.removeJobs(registered)
			return fmt.Errorf("failed to schedule task %s (%q): %w", name, taskConfig.Schedule, err)
		}

		s.logger.Info("Scheduled task", "task_name", name, "schedule", taskConfig.Schedule)
		registered = append(registered, job)
	}

	s.scheduler.Start()
	s.cancel = cancel
	s.running = true
	s.logger.Info("Scheduler started", "tasks_scheduled", len(registered))
	return nil
}

// removeJobs unregisters jobs added by a Start that failed part way, leaving
// the scheduler empty so Start can be retried.
func (s *Scheduler) removeJobs(jobs []gocron.Job) {
	for _, j := range jobs {
		if err := s.scheduler.RemoveJob(j.ID()); err != nil {
			s.logger.Warn("Failed to remove job after scheduling error", "task_name", j.Name(), "error", err)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, name string, taskFunc tasks.ScheduledTaskFunc) {
	s.logger.InfoContext(ctx, "Running scheduled task", "task_name", name)
	startTime := time.Now()
	if err := taskFunc(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Scheduled task failed", "task_name", name, "error", err)
	}
	s.logger.InfoContext(ctx, "Finished scheduled task", "task_name", name, "duration", time.Since(startTime))
}

// JobNames lists the names of the registered jobs in ascending order.
func (s *Scheduler) JobNames() []string {
	var names []string
	for _, j := range s.scheduler.Jobs() {
		names = append(names, j.Name())
	}
	slices.Sort(names)
	return names
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("Scheduler is not running, nothing to stop.")
		return nil
	}

	s.logger.Debug("Stopping scheduler gracefully (waiting for jobs)...")
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.cancel()
	s.running = false
	return err
}
