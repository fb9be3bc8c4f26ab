package backfill

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/chatdigest/internal/msglog"
)

type fakeSource struct {
	batch []Incoming
	err   error
}

func (f *fakeSource) RecentMessages(ctx context.Context) ([]Incoming, error) {
	return f.batch, f.err
}

func newTestAdapter(t *testing.T, source Source) (*Adapter, *msglog.Store) {
	t.Helper()
	store := msglog.NewStore(filepath.Join(t.TempDir(), "group_messages.csv"))
	return NewAdapter(source, store, nil), store
}

var syncBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

func TestSyncFiltersCandidates(t *testing.T) {
	source := &fakeSource{batch: []Incoming{
		{ChatID: 5, UserID: 1, Username: "alice", Text: "keep me", Date: syncBase},
		{ChatID: 6, UserID: 1, Username: "alice", Text: "wrong chat", Date: syncBase.Add(time.Second)},
		{ChatID: 5, UserID: 2, Username: "bob", Text: "/summarize 1day", Date: syncBase.Add(2 * time.Second)},
		{ChatID: 5, UserID: 2, Username: "bob", Text: "also a command", Date: syncBase.Add(3 * time.Second), IsCommand: true},
		{ChatID: 5, UserID: 3, Username: "carol", Text: "   ", Date: syncBase.Add(4 * time.Second)},
		{ChatID: 5, UserID: 4, Username: "", Text: "anon message", Date: syncBase.Add(5 * time.Second)},
	}}

	adapter, store := newTestAdapter(t, source)
	added, err := adapter.Sync(context.Background(), 5)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("store has %d records, want 2", len(records))
	}
	if records[0].Text != "keep me" {
		t.Errorf("first record text = %q", records[0].Text)
	}
	if records[1].Username != "Unknown" {
		t.Errorf("missing username not defaulted: %q", records[1].Username)
	}
}

func TestSyncExcludesDuplicates(t *testing.T) {
	msg := Incoming{ChatID: 5, UserID: 1, Username: "alice", Text: "once", Date: syncBase}
	source := &fakeSource{batch: []Incoming{msg, msg}}

	adapter, store := newTestAdapter(t, source)
	added, err := adapter.Sync(context.Background(), 5)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}

	// A second sync over the same batch adds nothing.
	added, err = adapter.Sync(context.Background(), 5)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if added != 0 {
		t.Errorf("second sync added %d, want 0", added)
	}

	records, _ := store.Load()
	if len(records) != 1 {
		t.Errorf("store has %d records, want 1", len(records))
	}
}

func TestSyncTransportFailure(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("getUpdates: connection reset")}
	adapter, _ := newTestAdapter(t, source)

	added, err := adapter.Sync(context.Background(), 5)
	if err == nil {
		t.Fatal("expected error on total transport failure")
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
}

func TestSyncEmptyBatch(t *testing.T) {
	adapter, _ := newTestAdapter(t, &fakeSource{})
	added, err := adapter.Sync(context.Background(), 5)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
}

func TestSyncSecondPrecision(t *testing.T) {
	source := &fakeSource{batch: []Incoming{
		{ChatID: 5, UserID: 1, Username: "alice", Text: "hi", Date: syncBase.Add(750 * time.Millisecond)},
	}}
	adapter, store := newTestAdapter(t, source)
	if _, err := adapter.Sync(context.Background(), 5); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	records, _ := store.Load()
	if !records[0].Date.Equal(syncBase) {
		t.Errorf("date = %v, want truncated to %v", records[0].Date, syncBase)
	}
}
