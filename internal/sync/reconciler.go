// Package sync decides, for a local and a remote snapshot, which side is
// authoritative and how the two replicas converge. It owns the single-flight
// guarantee: for a given user there is never more than one reconcile racing
// a remote write.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"saldo/internal/core"
	"saldo/internal/gateway"
	"saldo/internal/merge"
)

// Outcome names the decision a reconcile run arrived at.
type Outcome string

const (
	// OutcomePushed: no usable remote data existed, the local snapshot was
	// written as-is.
	OutcomePushed Outcome = "push"
	// OutcomeMerged: both sides had data and local held something remote
	// did not; the merged snapshot was written.
	OutcomeMerged Outcome = "merge_push"
	// OutcomePulled: remote already covered everything local; no write.
	OutcomePulled Outcome = "pull"
	// OutcomeNone: the run did not complete.
	OutcomeNone Outcome = ""
)

// Status is a read-only view of the reconciler for observability surfaces.
type Status struct {
	Syncing     bool       `json:"syncing"`
	LastSyncAt  *time.Time `json:"lastSyncAt,omitempty"`
	LastOutcome Outcome    `json:"lastOutcome,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// ReconcilerConfig holds tunables for the reconciler.
type ReconcilerConfig struct {
	// MaxDocumentBytes is the remote backend's per-document size ceiling,
	// enforced before every write (default: 900 KiB).
	MaxDocumentBytes int
}

// DefaultReconcilerConfig returns sensible defaults.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		MaxDocumentBytes: 900 * 1024,
	}
}

// Reconciler implements the pull/push/merge decision against the remote
// replica. It performs at most one remote read and one remote write per run.
type Reconciler struct {
	fetcher gateway.SnapshotFetcher
	writer  gateway.SnapshotWriter
	userID  string
	config  ReconcilerConfig

	group singleflight.Group

	mu     stdsync.Mutex
	status Status
}

// NewReconciler creates a reconciler for one authenticated user. An empty
// userID is allowed; every call then fails with ErrNotAuthenticated.
func NewReconciler(fetcher gateway.SnapshotFetcher, writer gateway.SnapshotWriter, userID string, config ReconcilerConfig) *Reconciler {
	if config.MaxDocumentBytes <= 0 {
		config.MaxDocumentBytes = DefaultReconcilerConfig().MaxDocumentBytes
	}
	return &Reconciler{
		fetcher: fetcher,
		writer:  writer,
		userID:  userID,
		config:  config,
	}
}

type reconcileResult struct {
	snapshot core.Snapshot
	outcome  Outcome
}

// Reconcile converges the given local snapshot with the remote replica and
// returns the snapshot the caller should adopt. Concurrent calls for the
// same user coalesce onto the in-flight run and share its result, so two
// callers can never race a second remote write.
func (r *Reconciler) Reconcile(ctx context.Context, local core.Snapshot) (core.Snapshot, Outcome, error) {
	if r.userID == "" {
		return local, OutcomeNone, ErrNotAuthenticated
	}

	v, err, shared := r.group.Do(r.userID, func() (any, error) {
		return r.reconcileOnce(ctx, local)
	})
	if shared {
		slog.DebugContext(ctx, "Reconcile coalesced onto in-flight run", "user_id", r.userID)
	}
	if err != nil {
		return local, OutcomeNone, err
	}
	res := v.(reconcileResult)
	return res.snapshot, res.outcome, nil
}

func (r *Reconciler) reconcileOnce(ctx context.Context, local core.Snapshot) (reconcileResult, error) {
	r.setSyncing(true)
	started := time.Now()

	res, err := r.run(ctx, local)
	r.finish(res.outcome, err)

	if err != nil {
		slog.ErrorContext(ctx, "Reconcile failed",
			"user_id", r.userID,
			"duration", time.Since(started),
			"error", err)
		return res, err
	}
	slog.InfoContext(ctx, "Reconcile completed",
		"user_id", r.userID,
		"outcome", string(res.outcome),
		"transactions", len(res.snapshot.Transactions),
		"duration", time.Since(started))
	return res, nil
}

func (r *Reconciler) run(ctx context.Context, local core.Snapshot) (reconcileResult, error) {
	remote, meta, err := r.fetcher.Fetch(ctx, r.userID)
	if err != nil {
		return reconcileResult{snapshot: local}, fmt.Errorf("fetch remote snapshot: %w", err)
	}

	// No document, or one that no longer decodes: a fresh remote. Seed it
	// with the full local snapshot rather than blocking the user on remote
	// corruption.
	if remote == nil {
		if err := r.write(ctx, local); err != nil {
			return reconcileResult{snapshot: local}, err
		}
		return reconcileResult{snapshot: local, outcome: OutcomePushed}, nil
	}

	if meta != nil {
		slog.DebugContext(ctx, "Remote snapshot fetched",
			"user_id", r.userID,
			"remote_transactions", len(remote.Transactions),
			"remote_updated_at", meta.UpdatedAt)
	}

	if merge.HasLocalChanges(local, *remote) {
		merged := merge.Merge(local, *remote)
		if err := r.write(ctx, merged); err != nil {
			return reconcileResult{snapshot: local}, err
		}
		return reconcileResult{snapshot: merged, outcome: OutcomeMerged}, nil
	}

	// Remote is at least as current as local for everything local cares
	// about; adopt it without writing.
	return reconcileResult{snapshot: *remote, outcome: OutcomePulled}, nil
}

func (r *Reconciler) write(ctx context.Context, snap core.Snapshot) error {
	data, err := core.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if len(data) > r.config.MaxDocumentBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrDocumentTooLarge, len(data), r.config.MaxDocumentBytes)
	}
	if err := r.writer.Write(ctx, r.userID, snap); err != nil {
		return fmt.Errorf("write remote snapshot: %w", err)
	}
	return nil
}

// Status returns the current observability view.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Reconciler) setSyncing(v bool) {
	r.mu.Lock()
	r.status.Syncing = v
	r.mu.Unlock()
}

func (r *Reconciler) finish(outcome Outcome, err error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Syncing = false
	r.status.LastSyncAt = &now
	r.status.LastOutcome = outcome
	if err != nil {
		r.status.LastError = err.Error()
	} else {
		r.status.LastError = ""
	}
}
