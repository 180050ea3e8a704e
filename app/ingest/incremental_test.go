package ingest

import (
	"context"
	"testing"

	"github.com/psp-tools/group-archive/app/message"
)

func TestIncrementalSyncer_Run_StopsAtFirstKnownMessage(t *testing.T) {
	store := newFakeStore()
	for id := int64(100); id <= 110; id++ {
		store.messages[id] = &message.Message{ID: id}
	}

	client := &fakeClient{records: rawMessagesDesc(115, 104)}
	state := &fakeState{}
	syncer := NewIncrementalSyncer(client, message.NewNormalizer(), store, state, 3, 1000)

	result, err := syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Inserted != 5 {
		t.Errorf("Expected 5 inserted, got %d", result.Inserted)
	}
	for id := int64(111); id <= 115; id++ {
		if _, ok := store.messages[id]; !ok {
			t.Errorf("Expected message %d to be stored", id)
		}
	}
	if result.NewestID != 115 {
		t.Errorf("Expected newest id 115, got %d", result.NewestID)
	}
	if state.state.NewestMessageID == nil || *state.state.NewestMessageID != 115 {
		t.Errorf("Expected cursor advanced to 115, got %v", state.state.NewestMessageID)
	}
	if state.state.LastFetchAt == nil {
		t.Error("Expected last fetch time to be recorded")
	}
}

func TestIncrementalSyncer_Run_SecondRunIsIdempotent(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{records: rawMessagesDesc(110, 101)}
	state := &fakeState{}
	syncer := NewIncrementalSyncer(client, message.NewNormalizer(), store, state, 5, 1000)

	if _, err := syncer.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error on first run: %v", err)
	}
	if len(store.messages) != 10 {
		t.Fatalf("Expected 10 messages after first run, got %d", len(store.messages))
	}

	result, err := syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error on second run: %v", err)
	}

	if result.Inserted != 0 {
		t.Errorf("Expected nothing inserted on second run, got %d", result.Inserted)
	}
	if result.Fetched != 1 {
		t.Errorf("Expected the run to stop on the first known message, fetched %d", result.Fetched)
	}
	if len(store.messages) != 10 {
		t.Errorf("Expected store unchanged, got %d messages", len(store.messages))
	}
}

func TestIncrementalSyncer_Run_FailureLeavesCursorUntouched(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{records: rawMessagesDesc(110, 101), failAfter: 1}
	state := &fakeState{}
	syncer := NewIncrementalSyncer(client, message.NewNormalizer(), store, state, 5, 1000)

	if _, err := syncer.Run(context.Background()); err == nil {
		t.Fatal("Expected error from failing client")
	}

	if state.state.NewestMessageID != nil {
		t.Errorf("Expected cursor untouched, got %v", *state.state.NewestMessageID)
	}
	if state.state.LastFetchAt != nil {
		t.Error("Expected no fetch time recorded on failure")
	}
}

func TestIncrementalSyncer_Run_RespectsPerCycleCap(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{records: rawMessagesDesc(200, 101)}
	state := &fakeState{}
	syncer := NewIncrementalSyncer(client, message.NewNormalizer(), store, state, 10, 25)

	result, err := syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Fetched != 25 {
		t.Errorf("Expected 25 fetched at the cap, got %d", result.Fetched)
	}
	if len(store.messages) != 25 {
		t.Errorf("Expected 25 stored, got %d", len(store.messages))
	}
}

func TestIncrementalSyncer_Run_SkipsUndecodableRecords(t *testing.T) {
	store := newFakeStore()
	records := rawMessagesDesc(105, 101)
	records[2].ID = 0 // undecodable
	client := &fakeClient{records: records}
	state := &fakeState{}
	syncer := NewIncrementalSyncer(client, message.NewNormalizer(), store, state, 10, 1000)

	result, err := syncer.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Skipped != 1 {
		t.Errorf("Expected 1 skipped record, got %d", result.Skipped)
	}
	if result.Inserted != 4 {
		t.Errorf("Expected 4 inserted, got %d", result.Inserted)
	}
}
