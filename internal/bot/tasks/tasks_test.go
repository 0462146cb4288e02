package tasks_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/edgard/chatdigest/internal/bot/tasks"
	"github.com/edgard/chatdigest/internal/database"
	"github.com/edgard/chatdigest/internal/digest"
)

type fakeRunner struct {
	report digest.Report
	err    error
	calls  int
}

func (f *fakeRunner) Run(context.Context) (digest.Report, error) {
	f.calls++
	return f.report, f.err
}

type fakeStore struct {
	database.Store
	err   error
	calls int
}

func (f *fakeStore) RunSQLMaintenance(context.Context) error {
	f.calls++
	return f.err
}

func deps(runner *fakeRunner, store *fakeStore) tasks.TaskDeps {
	return tasks.TaskDeps{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:      store,
		Dispatcher: runner,
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	all := tasks.RegisterAllTasks(deps(&fakeRunner{}, &fakeStore{}))
	for _, name := range []string{tasks.DailyDigestTask, tasks.SQLMaintenanceTask} {
		if all[name] == nil {
			t.Errorf("task %q not registered", name)
		}
	}
}

func TestDailyDigestTask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		runner  *fakeRunner
		wantErr bool
	}{
		{"success", &fakeRunner{report: digest.Report{Delivered: 2}}, false},
		{"partial failures", &fakeRunner{report: digest.Report{Delivered: 1, Failed: 1, PruneErr: errors.New("locked")}}, false},
		{"overlapping trigger", &fakeRunner{err: digest.ErrRunInProgress}, false},
		{"listing failed", &fakeRunner{err: errors.New("no such table")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			task := tasks.RegisterAllTasks(deps(tt.runner, &fakeStore{}))[tasks.DailyDigestTask]
			err := task(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("task() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.runner.calls != 1 {
				t.Errorf("Run called %d times, want 1", tt.runner.calls)
			}
		})
	}
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	task := tasks.RegisterAllTasks(deps(&fakeRunner{}, store))[tasks.SQLMaintenanceTask]
	if err := task(context.Background()); err != nil || store.calls != 1 {
		t.Errorf("task() = %v after %d calls", err, store.calls)
	}

	store = &fakeStore{err: errors.New("disk full")}
	task = tasks.RegisterAllTasks(deps(&fakeRunner{}, store))[tasks.SQLMaintenanceTask]
	if err := task(context.Background()); err == nil {
		t.Error("task() succeeded although maintenance failed")
	}
}
