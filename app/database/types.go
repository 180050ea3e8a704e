package database

import (
	"time"
)

// SyncState is the singleton cursor record. Nil fields have never been set.
type SyncState struct {
	LastFetchAt       *time.Time
	NewestMessageID   *int64
	OldestMessageID   *int64
	BackfillPageToken *int64
}

// HashtagCount is one row of the aggregated hashtag listing.
type HashtagCount struct {
	Name     string
	ColorHex string
	Count    int
}

// ListFilter narrows a message listing. Zero values mean "no filter";
// filters combine with logical AND. Hashtag matching is case-insensitive
// and matches any of the given names.
type ListFilter struct {
	Cursor   *int64
	Since    *time.Time
	Hashtags []string
	Search   string
	Limit    int
}

// ReindexRow carries the source fields needed to recompute derived fields
// for one message.
type ReindexRow struct {
	ID      int64
	Subject string
	Body    string
}
