package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"saldo/internal/core"
	"saldo/internal/gateway"
	"saldo/internal/gateway/memory"
	"saldo/internal/localstore"
	"saldo/internal/scheduler"
	"saldo/internal/sync"
)

func newTestService(t *testing.T, store *memory.Store, userID string) *LedgerService {
	t.Helper()
	local, err := localstore.NewStore(filepath.Join(t.TempDir(), "saldo.db"))
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	r := sync.NewReconciler(store, store, userID, sync.DefaultReconcilerConfig())
	svc := NewLedgerService(local, r, store, userID, scheduler.DebouncerConfig{
		SaveDelay: 10 * time.Millisecond,
		SyncDelay: time.Hour, // keep background sync out of unit tests
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return svc
}

func draft() core.Transaction {
	return core.Transaction{
		Amount:        core.Money{Cents: 1250},
		Date:          core.NewDate(2025, 3, 2),
		Category:      "Groceries",
		Note:          "market",
		PaymentMethod: "card",
		Kind:          core.Expense,
	}
}

func TestAddTransactionAssignsIdentity(t *testing.T) {
	svc := newTestService(t, memory.New(), "alice")

	tx, err := svc.AddTransaction(context.Background(), draft())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if tx.ID == "" {
		t.Fatalf("expected generated id")
	}
	if tx.LastModified.IsZero() {
		t.Fatalf("expected recency stamp")
	}

	snap := svc.Snapshot()
	if len(snap.Transactions) != 1 || snap.Transactions[0].ID != tx.ID {
		t.Fatalf("transaction not recorded: %+v", snap.Transactions)
	}
}

func TestUpdateTransactionMonotonicStamp(t *testing.T) {
	svc := newTestService(t, memory.New(), "alice")
	ctx := context.Background()

	tx, err := svc.AddTransaction(ctx, draft())
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	prev := tx.LastModified
	for i := 0; i < 3; i++ {
		tx.Note = "edited"
		tx, err = svc.UpdateTransaction(ctx, tx)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if !tx.LastModified.After(prev) {
			t.Fatalf("stamp must strictly increase: %v then %v", prev, tx.LastModified)
		}
		prev = tx.LastModified
	}
}

func TestUpdateUnknownTransaction(t *testing.T) {
	svc := newTestService(t, memory.New(), "alice")
	tx := draft()
	tx.ID = "ghost"
	if _, err := svc.UpdateTransaction(context.Background(), tx); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestDeleteTransactionTombstones(t *testing.T) {
	svc := newTestService(t, memory.New(), "alice")
	ctx := context.Background()

	tx, err := svc.AddTransaction(ctx, draft())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	snap := svc.Snapshot()
	if len(snap.Transactions) != 0 {
		t.Fatalf("transaction still live after delete")
	}
	if !snap.IsDeleted(tx.ID) {
		t.Fatalf("expected tombstone for %s", tx.ID)
	}

	// Deleting again is a no-op, not an error.
	if err := svc.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, "never-existed"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestBudgetMutations(t *testing.T) {
	svc := newTestService(t, memory.New(), "alice")
	ctx := context.Background()

	if err := svc.SetMonthBudget(ctx, "2025-03", 50000); err != nil {
		t.Fatalf("set budget: %v", err)
	}
	if err := svc.SetMonthBudget(ctx, "march", 1); err == nil {
		t.Fatalf("expected invalid month key error")
	}
	if err := svc.SetMonthBudget(ctx, "2025-03", -1); err == nil {
		t.Fatalf("expected negative budget error")
	}
	if err := svc.SetCategoryBudget(ctx, "2025-03", "Groceries", 20000); err != nil {
		t.Fatalf("set cap: %v", err)
	}

	snap := svc.Snapshot()
	if snap.BudgetsByMonth["2025-03"] != 50000 {
		t.Fatalf("budget not stored")
	}
	if snap.CategoryBudgetsByMonth["2025-03"]["Groceries"] != 20000 {
		t.Fatalf("cap not stored")
	}
}

func TestSyncNowSeedsFreshRemote(t *testing.T) {
	store := memory.New()
	svc := newTestService(t, store, "alice")
	ctx := context.Background()

	if _, err := svc.AddTransaction(ctx, draft()); err != nil {
		t.Fatalf("add: %v", err)
	}

	outcome, err := svc.SyncNow(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if outcome != sync.OutcomePushed {
		t.Fatalf("expected push outcome, got %q", outcome)
	}

	remote, _, _ := store.Fetch(ctx, "alice")
	if remote == nil || len(remote.Transactions) != 1 {
		t.Fatalf("remote not seeded")
	}
}

func TestRealtimePushMergesWithoutDroppingLocalEdits(t *testing.T) {
	store := memory.New()
	alice := newTestService(t, store, "alice")
	ctx := context.Background()

	local, err := alice.AddTransaction(ctx, draft())
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Another device writes a snapshot that doesn't know about the local
	// edit yet. The memory store fans the write out to alice's listener.
	other := core.EmptySnapshot()
	other.Transactions = []core.Transaction{{
		ID:           "from-other-device",
		Amount:       core.Money{Cents: 300},
		Date:         core.NewDate(2025, 3, 1),
		Category:     "Transport",
		Kind:         core.Expense,
		LastModified: time.Now().UTC(),
	}}
	if err := store.Write(ctx, "alice", other); err != nil {
		t.Fatalf("remote write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		snap := alice.Snapshot()
		_, hasLocal := snap.FindTransaction(local.ID)
		_, hasRemote := snap.FindTransaction("from-other-device")
		if hasLocal && hasRemote {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("push not merged: local=%v remote=%v", hasLocal, hasRemote)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSyncErrorsNeverBlockMutations(t *testing.T) {
	local, err := localstore.NewStore(filepath.Join(t.TempDir(), "saldo.db"))
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	defer local.Close()

	broken := &brokenGateway{}
	r := sync.NewReconciler(broken, broken, "alice", sync.DefaultReconcilerConfig())
	svc := NewLedgerService(local, r, nil, "alice", scheduler.DebouncerConfig{
		SaveDelay: 10 * time.Millisecond,
		SyncDelay: time.Hour,
	})
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop(ctx)

	if _, err := svc.SyncNow(ctx); !errors.Is(err, gateway.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if _, err := svc.AddTransaction(ctx, draft()); err != nil {
		t.Fatalf("mutation blocked by sync failure: %v", err)
	}
}

func TestUnauthenticatedSyncIsNoop(t *testing.T) {
	svc := newTestService(t, memory.New(), "")
	if _, err := svc.SyncNow(context.Background()); !errors.Is(err, sync.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := svc.AddTransaction(context.Background(), draft()); err != nil {
		t.Fatalf("local mutation must work signed out: %v", err)
	}
}

type brokenGateway struct{}

func (b *brokenGateway) Fetch(context.Context, string) (*core.Snapshot, *gateway.RemoteMeta, error) {
	return nil, nil, gateway.ErrNetwork
}

func (b *brokenGateway) Write(context.Context, string, core.Snapshot) error {
	return gateway.ErrNetwork
}
