package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"

	"saldo/internal/core"
	"saldo/internal/gateway"
)

// Listener funnels remote snapshot pushes into the merge path. Every push is
// treated as the remote argument of a merge against the current in-memory
// snapshot, never as a replacement, so a push arriving while local edits are
// pending can't discard them. Merge is idempotent, which makes duplicate
// deliveries safe.
//
// There is exactly one active subscription per user: starting again first
// tears down the previous one, so sign-in/sign-out cycles never leak feeds.
type Listener struct {
	subscriber gateway.ChangeSubscriber
	userID     string
	apply      func(core.Snapshot)

	mu  stdsync.Mutex
	sub gateway.Subscription
}

// NewListener creates a listener that hands each pushed snapshot to apply.
func NewListener(subscriber gateway.ChangeSubscriber, userID string, apply func(core.Snapshot)) *Listener {
	return &Listener{
		subscriber: subscriber,
		userID:     userID,
		apply:      apply,
	}
}

// Start subscribes to remote changes, replacing any prior subscription.
func (l *Listener) Start(ctx context.Context) error {
	if l.userID == "" {
		return ErrNotAuthenticated
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil {
		if err := l.sub.Close(); err != nil {
			slog.WarnContext(ctx, "Failed to close previous subscription", "user_id", l.userID, "error", err)
		}
		l.sub = nil
	}

	sub, err := l.subscriber.Subscribe(ctx, l.userID, l.apply)
	if err != nil {
		return fmt.Errorf("subscribe to remote changes: %w", err)
	}
	l.sub = sub

	slog.InfoContext(ctx, "Realtime listener started", "user_id", l.userID)
	return nil
}

// Stop tears down the active subscription, if any.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub == nil {
		return nil
	}
	err := l.sub.Close()
	l.sub = nil
	return err
}

// Active reports whether a subscription is currently held.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil
}
