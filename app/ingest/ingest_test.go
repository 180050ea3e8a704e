package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/psp-tools/group-archive/app/database"
	"github.com/psp-tools/group-archive/app/message"
	"github.com/psp-tools/group-archive/app/source"
)

// fakeClient serves a fixed id-descending history with token pagination,
// the way the upstream archive endpoint does.
type fakeClient struct {
	records   []source.RawMessage // sorted by id descending
	calls     int
	failAfter int // fail on call number failAfter (1-based), 0 disables
	onFetch   func(call int)
}

func (c *fakeClient) FetchPage(ctx context.Context, direction source.Direction, pageToken *int64, limit int) (*source.Page, error) {
	c.calls++
	if c.onFetch != nil {
		c.onFetch(c.calls)
	}
	if c.failAfter > 0 && c.calls >= c.failAfter {
		return nil, fmt.Errorf("%w: simulated outage", source.ErrUnavailable)
	}

	offset := 0
	if pageToken != nil {
		offset = int(*pageToken)
	}
	if offset > len(c.records) {
		offset = len(c.records)
	}

	end := offset + limit
	if end > len(c.records) {
		end = len(c.records)
	}

	page := &source.Page{
		Records:    c.records[offset:end],
		HasMore:    end < len(c.records),
		TotalCount: len(c.records),
	}
	if page.HasMore {
		next := int64(end)
		page.NextPageToken = &next
	}

	return page, nil
}

// fakeStore keeps messages in a map and mirrors the store's
// insert-if-absent contract.
type fakeStore struct {
	messages  map[int64]*message.Message
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[int64]*message.Message)}
}

func (s *fakeStore) InsertMessage(msg *message.Message) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, exists := s.messages[msg.ID]; exists {
		return false, nil
	}
	s.messages[msg.ID] = msg
	return true, nil
}

func (s *fakeStore) ListMessages(filter database.ListFilter) ([]message.Message, bool, error) {
	return nil, false, nil
}

func (s *fakeStore) GetMessage(id int64) (*message.Message, error) {
	msg, ok := s.messages[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return msg, nil
}

func (s *fakeStore) GetTopicMessages(topicID int64) ([]message.Message, error) {
	return nil, nil
}

func (s *fakeStore) ListHashtags() ([]database.HashtagCount, error) {
	return nil, nil
}

func (s *fakeStore) GetArchiveStats() (int, *time.Time, *time.Time, error) {
	return len(s.messages), nil, nil, nil
}

func (s *fakeStore) DeleteMessage(id int64) error {
	delete(s.messages, id)
	return nil
}

func (s *fakeStore) ListMessagesForReindex(limit int) ([]database.ReindexRow, error) {
	return nil, nil
}

func (s *fakeStore) UpdateDerivedFields(id int64, price, searchText string) error {
	return nil
}

// fakeState is an in-memory sync_state row.
type fakeState struct {
	state database.SyncState
}

func (f *fakeState) GetSyncState() (*database.SyncState, error) {
	copied := f.state
	return &copied, nil
}

func (f *fakeState) UpdateIncrementalCursor(lastFetchAt time.Time, newestID int64) error {
	f.state.LastFetchAt = &lastFetchAt
	if newestID > 0 && (f.state.NewestMessageID == nil || newestID > *f.state.NewestMessageID) {
		f.state.NewestMessageID = &newestID
	}
	return nil
}

func (f *fakeState) UpdateBackfillCursor(token *int64, oldestID, newestID int64) error {
	f.state.BackfillPageToken = token
	if f.state.OldestMessageID == nil || oldestID < *f.state.OldestMessageID {
		f.state.OldestMessageID = &oldestID
	}
	if f.state.NewestMessageID == nil || newestID > *f.state.NewestMessageID {
		f.state.NewestMessageID = &newestID
	}
	return nil
}

func (f *fakeState) ClearBackfillToken() error {
	f.state.BackfillPageToken = nil
	return nil
}

func (f *fakeState) ResetBackfill() error {
	f.state.BackfillPageToken = nil
	f.state.OldestMessageID = nil
	return nil
}

func rawMessagesDesc(newest, oldest int64) []source.RawMessage {
	var records []source.RawMessage
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for id := newest; id >= oldest; id-- {
		ts := created.Add(time.Duration(id) * time.Minute)
		records = append(records, source.RawMessage{
			ID:      id,
			TopicID: id,
			GroupID: 1,
			Created: &ts,
			Subject: fmt.Sprintf("message %d", id),
			Body:    "body",
		})
	}
	return records
}
