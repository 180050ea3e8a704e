package tasks

import (
	"testing"
	"time"
)

func TestNewTask(t *testing.T) {
	task := NewTask(TaskTypeFetchNew)

	if task.ID == "" {
		t.Error("Expected task to have an id")
	}
	if task.Type != TaskTypeFetchNew {
		t.Errorf("Expected fetch_new type, got %s", task.Type)
	}
	if task.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected default max retries %d, got %d", DefaultMaxRetries, task.MaxRetries)
	}

	other := NewTask(TaskTypeFetchNew)
	if task.ID == other.ID {
		t.Error("Expected unique task ids")
	}
}

func TestTask_RetryAccounting(t *testing.T) {
	task := NewTask(TaskTypeReindexSearch)

	for i := 0; i < DefaultMaxRetries; i++ {
		if !task.CanRetry() {
			t.Fatalf("Expected retry %d to be allowed", i+1)
		}
		task.IncrementRetryCount()
	}
	if task.CanRetry() {
		t.Error("Expected retries exhausted")
	}
}

func TestSyncTasksAreNotRetried(t *testing.T) {
	fetch := NewFetchNewTask(nil)
	if fetch.CanRetry() {
		t.Error("Expected fetch task to not be retried by the scheduler")
	}

	backfill := NewBackfillTask(nil)
	if backfill.CanRetry() {
		t.Error("Expected backfill task to not be retried by the scheduler")
	}
}

func TestTask_Duration(t *testing.T) {
	task := NewTask(TaskTypeBackfill)

	if task.GetDuration() != 0 {
		t.Error("Expected zero duration before start")
	}

	task.Start()
	time.Sleep(10 * time.Millisecond)

	if task.GetDuration() < 10*time.Millisecond {
		t.Errorf("Expected duration to accumulate, got %v", task.GetDuration())
	}
}
