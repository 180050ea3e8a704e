package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ SyncStateRepository = (*syncStateRepository)(nil)

type syncStateRepository struct {
	db *DB
}

func NewSyncStateRepository(db *DB) SyncStateRepository {
	return &syncStateRepository{db: db}
}

func (r *syncStateRepository) GetSyncState() (*SyncState, error) {
	var lastFetchMs, newestID, oldestID, pageToken sql.NullInt64

	err := r.db.QueryRow(`
		SELECT last_fetch_at, newest_message_id, oldest_message_id, backfill_page_token
		FROM sync_state
		WHERE id = 1
	`).Scan(&lastFetchMs, &newestID, &oldestID, &pageToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	return &SyncState{
		LastFetchAt:       msToTime(lastFetchMs),
		NewestMessageID:   nullInt64Ptr(newestID),
		OldestMessageID:   nullInt64Ptr(oldestID),
		BackfillPageToken: nullInt64Ptr(pageToken),
	}, nil
}

func (r *syncStateRepository) UpdateIncrementalCursor(lastFetchAt time.Time, newestID int64) error {
	_, err := r.db.Exec(`
		UPDATE sync_state
		SET last_fetch_at = ?,
		    newest_message_id = MAX(COALESCE(newest_message_id, 0), ?)
		WHERE id = 1
	`, lastFetchAt.UnixMilli(), newestID)
	if err != nil {
		return fmt.Errorf("failed to update incremental cursor: %w", err)
	}
	return nil
}

func (r *syncStateRepository) UpdateBackfillCursor(token *int64, oldestID, newestID int64) error {
	var tokenValue interface{}
	if token != nil {
		tokenValue = *token
	}

	_, err := r.db.Exec(`
		UPDATE sync_state
		SET backfill_page_token = ?,
		    oldest_message_id = MIN(COALESCE(oldest_message_id, ?), ?),
		    newest_message_id = MAX(COALESCE(newest_message_id, 0), ?)
		WHERE id = 1
	`, tokenValue, oldestID, oldestID, newestID)
	if err != nil {
		return fmt.Errorf("failed to update backfill cursor: %w", err)
	}
	return nil
}

func (r *syncStateRepository) ClearBackfillToken() error {
	_, err := r.db.Exec(`
		UPDATE sync_state
		SET backfill_page_token = NULL
		WHERE id = 1
	`)
	if err != nil {
		return fmt.Errorf("failed to clear backfill token: %w", err)
	}
	return nil
}

func (r *syncStateRepository) ResetBackfill() error {
	_, err := r.db.Exec(`
		UPDATE sync_state
		SET backfill_page_token = NULL,
		    oldest_message_id = NULL
		WHERE id = 1
	`)
	if err != nil {
		return fmt.Errorf("failed to reset backfill: %w", err)
	}
	return nil
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}
