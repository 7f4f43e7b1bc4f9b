package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"saldo/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "saldo.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	snap := s.Load(context.Background(), "nobody")
	if len(snap.Transactions) != 0 || len(snap.DeletedIDs) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
	if snap.SchemaVersion != core.SchemaVersionCurrent {
		t.Fatalf("expected current schema version, got %d", snap.SchemaVersion)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := core.EmptySnapshot()
	snap.Transactions = []core.Transaction{{
		ID:           "tx-1",
		Amount:       core.Money{Cents: 750},
		Date:         core.NewDate(2025, 5, 12),
		Category:     "Transport",
		Kind:         core.Expense,
		LastModified: time.Date(2025, 5, 12, 8, 30, 0, 0, time.UTC),
	}}
	snap.DeletedIDs = []string{"gone"}
	snap.BudgetsByMonth["2025-05"] = 42000

	if err := s.Save(ctx, "alice", snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := s.Load(ctx, "alice")
	if len(got.Transactions) != 1 || got.Transactions[0].ID != "tx-1" {
		t.Fatalf("unexpected transactions %+v", got.Transactions)
	}
	if got.Transactions[0].Amount.Cents != 750 {
		t.Fatalf("amount lost in round trip: %+v", got.Transactions[0])
	}
	if !got.IsDeleted("gone") {
		t.Fatalf("tombstone lost in round trip")
	}
	if got.BudgetsByMonth["2025-05"] != 42000 {
		t.Fatalf("budget lost in round trip")
	}
}

func TestSaveOverwritesWholeSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := core.EmptySnapshot()
	first.CustomCategoryNames = []string{"Garden"}
	if err := s.Save(ctx, "alice", first); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := core.EmptySnapshot()
	second.CustomCategoryNames = []string{"Travel"}
	if err := s.Save(ctx, "alice", second); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := s.Load(ctx, "alice")
	if len(got.CustomCategoryNames) != 1 || got.CustomCategoryNames[0] != "Travel" {
		t.Fatalf("expected second snapshot to replace first, got %v", got.CustomCategoryNames)
	}
}

func TestLoadCorruptPayloadFallsBackToEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (user_id, snapshot, saved_at) VALUES (?, ?, ?)`,
		"alice", "{not json", time.Now().UTC().Format(time.RFC3339)); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}

	got := s.Load(ctx, "alice")
	if len(got.Transactions) != 0 {
		t.Fatalf("expected empty fallback, got %+v", got)
	}
}

func TestSavedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at, err := s.SavedAt(ctx, "alice")
	if err != nil || !at.IsZero() {
		t.Fatalf("expected zero time for missing row, got %v (%v)", at, err)
	}

	if err := s.Save(ctx, "alice", core.EmptySnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	at, err = s.SavedAt(ctx, "alice")
	if err != nil {
		t.Fatalf("saved at: %v", err)
	}
	if at.IsZero() || time.Since(at) > time.Minute {
		t.Fatalf("unexpected saved_at %v", at)
	}
}
