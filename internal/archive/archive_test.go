package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Save(ctx, 42, "1day", fmt.Sprintf("summary %d", i), 10+i); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	if err := store.Save(ctx, 99, "1week", "other chat", 5); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Recent(ctx, 42, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}
	// Newest first.
	if got[0].Body != "summary 2" || got[1].Body != "summary 1" {
		t.Errorf("order wrong: %q, %q", got[0].Body, got[1].Body)
	}
	if got[0].ChatID != 42 || got[0].Label != "1day" || got[0].MsgCount != 12 {
		t.Errorf("fields wrong: %+v", got[0])
	}
}

func TestRecentEmpty(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Recent(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d summaries, want 0", len(got))
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		if err := store.Save(ctx, 1, "12hr", fmt.Sprintf("s%d", i), 1); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.Recent(ctx, 1, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("default limit returned %d, want 5", len(got))
	}
}
