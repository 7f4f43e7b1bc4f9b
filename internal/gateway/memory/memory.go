// Package memory implements the remote replica gateway in process memory.
// It backs the "memory" data backend for local development and is the test
// double for the sync orchestrator.
package memory

import (
	"context"
	"sync"
	"time"

	"saldo/internal/core"
	"saldo/internal/gateway"
)

type document struct {
	snapshot  core.Snapshot
	updatedAt time.Time
}

// Store holds one snapshot document per user and fans out writes to
// subscribers, mimicking a cloud document store with realtime pushes.
type Store struct {
	mu     sync.Mutex
	docs   map[string]document
	subs   map[string][]*subscription
	nextID int

	// Writes counts remote writes, for tests asserting write behavior.
	writes int
}

func New() *Store {
	return &Store{
		docs: make(map[string]document),
		subs: make(map[string][]*subscription),
	}
}

var _ gateway.Gateway = (*Store)(nil)

func (s *Store) Fetch(_ context.Context, userID string) (*core.Snapshot, *gateway.RemoteMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[userID]
	if !ok {
		return nil, nil, nil
	}
	snap := doc.snapshot.Clone()
	return &snap, &gateway.RemoteMeta{UpdatedAt: doc.updatedAt}, nil
}

func (s *Store) Write(_ context.Context, userID string, snap core.Snapshot) error {
	s.mu.Lock()
	s.docs[userID] = document{snapshot: snap.Clone(), updatedAt: time.Now()}
	s.writes++
	subs := append([]*subscription(nil), s.subs[userID]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snap.Clone())
	}
	return nil
}

func (s *Store) Subscribe(_ context.Context, userID string, onChange func(core.Snapshot)) (gateway.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := &subscription{store: s, userID: userID, id: s.nextID, onChange: onChange}
	s.subs[userID] = append(s.subs[userID], sub)
	return sub, nil
}

// WriteCount returns how many remote writes have been performed.
func (s *Store) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// SubscriberCount returns the number of active subscriptions for a user.
func (s *Store) SubscriberCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[userID])
}

type subscription struct {
	store    *Store
	userID   string
	id       int
	mu       sync.Mutex
	closed   bool
	onChange func(core.Snapshot)
}

func (sub *subscription) deliver(snap core.Snapshot) {
	sub.mu.Lock()
	closed := sub.closed
	fn := sub.onChange
	sub.mu.Unlock()
	if !closed && fn != nil {
		fn(snap)
	}
}

func (sub *subscription) Close() error {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()

	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	subs := sub.store.subs[sub.userID]
	for i, other := range subs {
		if other.id == sub.id {
			sub.store.subs[sub.userID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}
