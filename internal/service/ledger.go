// Package service owns the in-memory ledger snapshot. Every mutation, every
// merge and every read copy funnels through one service instance, which is
// what serializes local edits against realtime pushes and sync results.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"saldo/internal/core"
	"saldo/internal/gateway"
	"saldo/internal/localstore"
	"saldo/internal/merge"
	"saldo/internal/scheduler"
	"saldo/internal/sync"
)

// ErrTransactionNotFound means the referenced id is neither live nor known.
var ErrTransactionNotFound = errors.New("transaction not found")

// localOnlyKey keys local persistence when nobody is signed in. Sync is a
// no-op in that state but the ledger itself stays fully usable.
const localOnlyKey = "local"

// LedgerService is the single logical owner of the snapshot. Collaborators
// get value copies; sync failures never block a local mutation.
type LedgerService struct {
	store      *localstore.Store
	reconciler *sync.Reconciler
	listener   *sync.Listener
	debouncer  *scheduler.Debouncer
	userID     string

	mu       stdsync.Mutex
	snapshot core.Snapshot
}

// NewLedgerService wires the snapshot owner. subscriber may be nil when no
// realtime feed is configured; sync then relies on manual and debounced
// reconciles alone.
func NewLedgerService(
	store *localstore.Store,
	reconciler *sync.Reconciler,
	subscriber gateway.ChangeSubscriber,
	userID string,
	debounce scheduler.DebouncerConfig,
) *LedgerService {
	s := &LedgerService{
		store:      store,
		reconciler: reconciler,
		userID:     userID,
		snapshot:   core.EmptySnapshot(),
	}
	s.debouncer = scheduler.NewDebouncer(debounce, s.persistLocal, s.backgroundSync)
	if subscriber != nil {
		s.listener = sync.NewListener(subscriber, userID, s.applyRemote)
	}
	return s
}

// Start loads the persisted snapshot and, for an authenticated user with a
// realtime feed, subscribes to remote pushes.
func (s *LedgerService) Start(ctx context.Context) error {
	loaded := s.store.Load(ctx, s.storageKey())
	s.mu.Lock()
	s.snapshot = loaded
	s.mu.Unlock()

	slog.InfoContext(ctx, "Ledger service started",
		"user_id", s.userID,
		"transactions", len(loaded.Transactions))

	if s.listener == nil || s.userID == "" {
		slog.InfoContext(ctx, "Realtime listener disabled",
			"has_feed", s.listener != nil,
			"authenticated", s.userID != "")
		return nil
	}
	if err := s.listener.Start(ctx); err != nil {
		return fmt.Errorf("start realtime listener: %w", err)
	}
	return nil
}

// Stop tears down the realtime subscription and flushes pending persistence
// so the final state is on disk before shutdown.
func (s *LedgerService) Stop(ctx context.Context) error {
	if s.listener != nil {
		if err := s.listener.Stop(); err != nil {
			slog.WarnContext(ctx, "Failed to stop realtime listener", "error", err)
		}
	}
	s.debouncer.Flush()
	s.debouncer.Stop()
	slog.InfoContext(ctx, "Ledger service stopped", "user_id", s.userID)
	return nil
}

// Snapshot returns a deep copy of the current ledger state.
func (s *LedgerService) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// AddTransaction records a new transaction. Identity and recency stamps are
// assigned here, never by the caller.
func (s *LedgerService) AddTransaction(ctx context.Context, draft core.Transaction) (core.Transaction, error) {
	draft.ID = uuid.NewString()
	draft.LastModified = time.Now().UTC()
	if err := draft.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	s.mu.Lock()
	s.snapshot.Transactions = append(s.snapshot.Transactions, draft)
	s.snapshot.Normalize()
	s.mu.Unlock()

	s.debouncer.Touch()
	slog.InfoContext(ctx, "Transaction added",
		"id", draft.ID,
		"amount_cents", draft.Amount.Cents,
		"category", draft.Category)
	return draft, nil
}

// UpdateTransaction replaces the mutable fields of an existing record. The
// new LastModified is strictly greater than the previous one, even under
// coarse clocks, so recency comparisons stay monotonic.
func (s *LedgerService) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.snapshot.FindTransaction(tx.ID)
	if !ok {
		return core.Transaction{}, ErrTransactionNotFound
	}

	stamp := time.Now().UTC()
	if !stamp.After(prev.LastModified) {
		stamp = prev.LastModified.Add(time.Millisecond)
	}
	tx.LastModified = stamp
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	for i := range s.snapshot.Transactions {
		if s.snapshot.Transactions[i].ID == tx.ID {
			s.snapshot.Transactions[i] = tx
			break
		}
	}
	s.snapshot.Normalize()

	s.debouncer.Touch()
	slog.InfoContext(ctx, "Transaction updated", "id", tx.ID)
	return tx, nil
}

// DeleteTransaction tombstones a record so no stale replica can bring it
// back. Deleting an already-tombstoned id is a no-op.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.snapshot.IsDeleted(id) {
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.snapshot.FindTransaction(id); !ok {
		s.mu.Unlock()
		return ErrTransactionNotFound
	}

	live := s.snapshot.Transactions[:0]
	for _, tx := range s.snapshot.Transactions {
		if tx.ID != id {
			live = append(live, tx)
		}
	}
	s.snapshot.Transactions = live
	s.snapshot.DeletedIDs = append(s.snapshot.DeletedIDs, id)
	s.snapshot.Normalize()
	s.mu.Unlock()

	s.debouncer.Touch()
	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

// SetMonthBudget sets the total budget for a month.
func (s *LedgerService) SetMonthBudget(ctx context.Context, month string, cents int64) error {
	if !core.ValidMonthKey(month) {
		return core.ErrInvalidMonthKey
	}
	if cents < 0 {
		return core.ErrInvalidAmount
	}

	s.mu.Lock()
	s.snapshot.BudgetsByMonth[month] = cents
	s.mu.Unlock()

	s.debouncer.Touch()
	slog.InfoContext(ctx, "Monthly budget set", "month", month, "amount_cents", cents)
	return nil
}

// SetCategoryBudget sets the per-category cap for a month.
func (s *LedgerService) SetCategoryBudget(ctx context.Context, month, category string, cents int64) error {
	if !core.ValidMonthKey(month) {
		return core.ErrInvalidMonthKey
	}
	if category == "" {
		return core.ErrEmptyCategory
	}
	if cents < 0 {
		return core.ErrInvalidAmount
	}

	s.mu.Lock()
	caps, ok := s.snapshot.CategoryBudgetsByMonth[month]
	if !ok {
		caps = map[string]int64{}
		s.snapshot.CategoryBudgetsByMonth[month] = caps
	}
	caps[category] = cents
	s.mu.Unlock()

	s.debouncer.Touch()
	slog.InfoContext(ctx, "Category budget set",
		"month", month, "category", category, "amount_cents", cents)
	return nil
}

// AddCustomCategory registers a user-defined category name.
func (s *LedgerService) AddCustomCategory(ctx context.Context, name string) error {
	if name == "" {
		return core.ErrEmptyCategory
	}

	s.mu.Lock()
	s.snapshot.CustomCategoryNames = append(s.snapshot.CustomCategoryNames, name)
	s.snapshot.Normalize()
	s.mu.Unlock()

	s.debouncer.Touch()
	return nil
}

// SyncNow reconciles against the remote replica immediately. The result is
// merged back rather than adopted wholesale, so a mutation that landed while
// the reconcile was in flight survives and is picked up by the next cycle.
func (s *LedgerService) SyncNow(ctx context.Context) (sync.Outcome, error) {
	local := s.Snapshot()
	result, outcome, err := s.reconciler.Reconcile(ctx, local)
	if err != nil {
		return outcome, err
	}

	s.mu.Lock()
	s.snapshot = merge.Merge(s.snapshot, result)
	s.mu.Unlock()

	if err := s.store.Save(ctx, s.storageKey(), s.Snapshot()); err != nil {
		slog.WarnContext(ctx, "Failed to persist synced snapshot", "error", err)
	}
	return outcome, nil
}

// SyncStatus exposes the reconciler's observability view.
func (s *LedgerService) SyncStatus() sync.Status {
	return s.reconciler.Status()
}

// applyRemote is the realtime merge path: every push is the remote argument
// of a merge against the current snapshot, never a replacement.
func (s *LedgerService) applyRemote(remote core.Snapshot) {
	s.mu.Lock()
	s.snapshot = merge.Merge(s.snapshot, remote)
	s.mu.Unlock()

	s.debouncer.Touch()
	slog.Info("Remote push merged",
		"user_id", s.userID,
		"remote_transactions", len(remote.Transactions))
}

func (s *LedgerService) persistLocal() {
	ctx := context.Background()
	if err := s.store.Save(ctx, s.storageKey(), s.Snapshot()); err != nil {
		slog.ErrorContext(ctx, "Failed to persist snapshot", "error", err)
	}
}

func (s *LedgerService) backgroundSync() {
	ctx := context.Background()
	if _, err := s.SyncNow(ctx); err != nil {
		if errors.Is(err, sync.ErrNotAuthenticated) {
			slog.DebugContext(ctx, "Skipping background sync, not authenticated")
			return
		}
		// Background sync is best effort; the ledger stays usable offline.
		slog.WarnContext(ctx, "Background sync failed", "error", err)
	}
}

func (s *LedgerService) storageKey() string {
	if s.userID == "" {
		return localOnlyKey
	}
	return s.userID
}
