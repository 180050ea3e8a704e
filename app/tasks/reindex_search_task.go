package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/psp-tools/group-archive/app/database"
	"github.com/psp-tools/group-archive/app/message"
)

const reindexBatchSize = 500

type ReindexSearchTask struct {
	Task
	messages database.MessageRepository
}

// NewReindexSearchTask recomputes derived fields for messages stored before
// search text derivation existed. It runs in batches until no unindexed
// messages remain, so interrupting it mid-way loses nothing.
func NewReindexSearchTask(messages database.MessageRepository) *ReindexSearchTask {
	return &ReindexSearchTask{
		Task:     NewTask(TaskTypeReindexSearch),
		messages: messages,
	}
}

func (t *ReindexSearchTask) Execute(ctx context.Context) error {
	updated := 0
	var lastBatchStart int64 = -1

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rows, err := t.messages.ListMessagesForReindex(reindexBatchSize)
		if err != nil {
			return fmt.Errorf("failed to list messages for reindex: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		// A markup-only body can derive an empty search text again; bail out
		// instead of reprocessing the same batch forever.
		if rows[0].ID == lastBatchStart {
			break
		}
		lastBatchStart = rows[0].ID

		for _, row := range rows {
			price := message.ExtractPrice(row.Subject, row.Body)
			searchText := message.BuildSearchText(row.Subject, row.Body)

			if err := t.messages.UpdateDerivedFields(row.ID, price, searchText); err != nil {
				return fmt.Errorf("failed to update message %d: %w", row.ID, err)
			}
			updated++
		}

		if len(rows) < reindexBatchSize {
			break
		}
	}

	if updated > 0 {
		slog.Info("Task completed",
			"type", "ReindexSearch",
			"duration", t.GetDuration(),
			"updated", updated)
	}

	return nil
}
