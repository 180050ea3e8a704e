package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/psp-tools/group-archive/app/ingest"
)

type FetchNewTask struct {
	Task
	syncer *ingest.IncrementalSyncer
}

// NewFetchNewTask wraps one incremental sync cycle. The task is not retried
// by the scheduler: the source client retries transient failures itself, and
// a failed cycle leaves the cursor untouched so the next periodic tick simply
// runs the whole cycle again.
func NewFetchNewTask(syncer *ingest.IncrementalSyncer) *FetchNewTask {
	task := NewTask(TaskTypeFetchNew)
	task.MaxRetries = 0

	return &FetchNewTask{
		Task:   task,
		syncer: syncer,
	}
}

func (t *FetchNewTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.syncer.Run(ctx)
	if err != nil {
		return fmt.Errorf("incremental sync failed: %w", err)
	}

	slog.Info("Task completed",
		"type", "FetchNew",
		"duration", t.GetDuration(),
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"newest_id", result.NewestID)

	return nil
}
