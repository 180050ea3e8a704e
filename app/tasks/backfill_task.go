package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/psp-tools/group-archive/app/ingest"
)

type BackfillTask struct {
	Task
	runner *ingest.BackfillRunner
}

// NewBackfillTask wraps one backfill run. Not retried by the scheduler: the
// runner checkpoints after every page, so the next periodic tick resumes
// from the saved token instead of replaying the run.
func NewBackfillTask(runner *ingest.BackfillRunner) *BackfillTask {
	task := NewTask(TaskTypeBackfill)
	task.MaxRetries = 0

	return &BackfillTask{
		Task:   task,
		runner: runner,
	}
}

func (t *BackfillTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("backfill run failed: %w", err)
	}

	slog.Info("Task completed",
		"type", "Backfill",
		"duration", t.GetDuration(),
		"pages", result.Pages,
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"completed", result.Completed)

	return nil
}
