package database

import (
	"errors"
	"time"

	"github.com/psp-tools/group-archive/app/message"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("not found")

type MessageRepository interface {
	// InsertMessage stores a message with its hashtags and attachments.
	// A primary-key conflict is not an error: it returns (false, nil),
	// the "already known" signal the sync drivers rely on.
	InsertMessage(msg *message.Message) (bool, error)

	// ListMessages returns one page ordered by id descending, plus whether
	// strictly more matching rows exist past it.
	ListMessages(filter ListFilter) ([]message.Message, bool, error)

	GetMessage(id int64) (*message.Message, error)
	GetTopicMessages(topicID int64) ([]message.Message, error)
	ListHashtags() ([]HashtagCount, error)
	GetArchiveStats() (total int, oldest, newest *time.Time, err error)
	DeleteMessage(id int64) error

	ListMessagesForReindex(limit int) ([]ReindexRow, error)
	UpdateDerivedFields(id int64, price, searchText string) error
}

type SyncStateRepository interface {
	GetSyncState() (*SyncState, error)

	// UpdateIncrementalCursor is called only by the incremental driver after
	// a successful cycle. newest_message_id only ever moves forward.
	UpdateIncrementalCursor(lastFetchAt time.Time, newestID int64) error

	// UpdateBackfillCursor checkpoints the continuation token and widens the
	// observed id range. Called only by the backfill driver, after each page.
	UpdateBackfillCursor(token *int64, oldestID, newestID int64) error

	ClearBackfillToken() error
	ResetBackfill() error
}
