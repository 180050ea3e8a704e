package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/psp-tools/group-archive/app/database"
	"github.com/psp-tools/group-archive/app/message"
	"github.com/psp-tools/group-archive/app/source"
)

// BackfillResult summarizes one backfill run, complete or interrupted.
type BackfillResult struct {
	Pages      int
	Fetched    int
	Inserted   int
	Duplicates int
	Skipped    int
	Completed  bool
}

// BackfillStatus reports where the history walk currently stands.
type BackfillStatus struct {
	Started         bool
	Completed       bool
	OldestMessageID *int64
	PageToken       *int64
}

// BackfillRunner walks the full group history newest-to-oldest, one page at
// a time, checkpointing its continuation token after every page so that a
// restart picks up exactly where the previous run stopped.
type BackfillRunner struct {
	client     SourceClient
	normalizer *message.Normalizer
	messages   database.MessageRepository
	state      database.SyncStateRepository
	pageSize   int
	delay      time.Duration
}

func NewBackfillRunner(client SourceClient, normalizer *message.Normalizer,
	messages database.MessageRepository, state database.SyncStateRepository,
	pageSize int, delay time.Duration) *BackfillRunner {
	return &BackfillRunner{
		client:     client,
		normalizer: normalizer,
		messages:   messages,
		state:      state,
		pageSize:   pageSize,
		delay:      delay,
	}
}

// Run resumes (or starts) the history walk. A context cancellation between
// pages is not an error: the in-flight page is finished and checkpointed
// first, then the run returns with Completed false.
func (b *BackfillRunner) Run(ctx context.Context) (*BackfillResult, error) {
	state, err := b.state.GetSyncState()
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	result := &BackfillResult{}

	// A cleared token with an oldest id on record means a previous run
	// already reached the end of history.
	if state.BackfillPageToken == nil && state.OldestMessageID != nil {
		result.Completed = true
		return result, nil
	}

	pageToken := state.BackfillPageToken
	if pageToken != nil {
		slog.Info("Resuming backfill", "page_token", *pageToken)
	} else {
		slog.Info("Starting backfill from the newest message")
	}

	for {
		page, err := b.client.FetchPage(ctx, source.DirectionNewest, pageToken, b.pageSize)
		if err != nil {
			return result, fmt.Errorf("failed to fetch page: %w", err)
		}
		result.Pages++

		var pageOldest, pageNewest int64
		for i := range page.Records {
			raw := page.Records[i]
			result.Fetched++

			msg, err := b.normalizer.Run(raw)
			if err != nil {
				var decodeErr *message.DecodeError
				if errors.As(err, &decodeErr) {
					slog.Warn("Skipping undecodable message", "id", raw.ID, "reason", decodeErr.Reason)
					result.Skipped++
					continue
				}
				return result, fmt.Errorf("failed to normalize message %d: %w", raw.ID, err)
			}

			inserted, err := b.messages.InsertMessage(msg)
			if err != nil {
				return result, fmt.Errorf("failed to store message %d: %w", msg.ID, err)
			}
			if inserted {
				result.Inserted++
			} else {
				result.Duplicates++
			}

			if pageOldest == 0 || msg.ID < pageOldest {
				pageOldest = msg.ID
			}
			if msg.ID > pageNewest {
				pageNewest = msg.ID
			}
		}

		if !page.HasMore || page.NextPageToken == nil {
			if pageOldest != 0 {
				if err := b.state.UpdateBackfillCursor(nil, pageOldest, pageNewest); err != nil {
					return result, fmt.Errorf("failed to checkpoint backfill: %w", err)
				}
			}
			if err := b.state.ClearBackfillToken(); err != nil {
				return result, fmt.Errorf("failed to clear backfill token: %w", err)
			}
			result.Completed = true
			slog.Info("Backfill complete",
				"pages", result.Pages, "fetched", result.Fetched, "inserted", result.Inserted)
			return result, nil
		}

		pageToken = page.NextPageToken
		if pageOldest != 0 {
			if err := b.state.UpdateBackfillCursor(pageToken, pageOldest, pageNewest); err != nil {
				return result, fmt.Errorf("failed to checkpoint backfill: %w", err)
			}
		}

		slog.Debug("Backfill page checkpointed",
			"page", result.Pages, "page_token", *pageToken, "inserted", result.Inserted)

		if ctx.Err() != nil {
			slog.Info("Backfill interrupted, checkpoint saved", "pages", result.Pages)
			return result, nil
		}

		if err := sleepCtx(ctx, b.delay); err != nil {
			slog.Info("Backfill interrupted, checkpoint saved", "pages", result.Pages)
			return result, nil
		}
	}
}

// Status inspects the persisted cursors without touching the upstream API.
func (b *BackfillRunner) Status() (*BackfillStatus, error) {
	state, err := b.state.GetSyncState()
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	status := &BackfillStatus{
		Started:         state.BackfillPageToken != nil || state.OldestMessageID != nil,
		Completed:       state.BackfillPageToken == nil && state.OldestMessageID != nil,
		OldestMessageID: state.OldestMessageID,
		PageToken:       state.BackfillPageToken,
	}
	return status, nil
}

// Reset forgets the walk's progress so the next Run starts over from the
// newest message. Stored messages are left alone.
func (b *BackfillRunner) Reset() error {
	if err := b.state.ResetBackfill(); err != nil {
		return fmt.Errorf("failed to reset backfill: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
