// Package gateway defines the capability surface of the remote replica.
// The sync engine depends only on these ports; any backend that can store
// one document per user and fan out change notifications can implement them.
package gateway

import (
	"context"
	"time"

	"saldo/internal/core"
)

// RemoteMeta carries server-side bookkeeping about the remote document.
// UpdatedAt is the server-assigned write timestamp; it is observability
// only and never feeds conflict arbitration.
type RemoteMeta struct {
	UpdatedAt time.Time
}

// Ports for the remote replica.
type (
	// SnapshotFetcher reads the current remote snapshot. A nil snapshot
	// with a nil error means no usable remote data exists (absent document
	// or one that no longer decodes); the caller treats both the same way.
	SnapshotFetcher interface {
		Fetch(ctx context.Context, userID string) (*core.Snapshot, *RemoteMeta, error)
	}

	// SnapshotWriter replaces the remote document with the given snapshot.
	SnapshotWriter interface {
		Write(ctx context.Context, userID string, s core.Snapshot) error
	}

	// ChangeSubscriber delivers remote snapshot pushes for a user. The
	// callback receives a decoded copy; malformed remote payloads are
	// dropped by the implementation, never surfaced.
	ChangeSubscriber interface {
		Subscribe(ctx context.Context, userID string, onChange func(core.Snapshot)) (Subscription, error)
	}

	// Subscription is a handle to an active change feed.
	Subscription interface {
		Close() error
	}

	// Gateway is the full remote replica surface.
	Gateway interface {
		SnapshotFetcher
		SnapshotWriter
		ChangeSubscriber
	}
)

// Composite assembles a Gateway from independent port implementations, for
// backends that split document storage and change notification (e.g.
// Firestore documents plus an AMQP change feed).
type Composite struct {
	SnapshotFetcher
	SnapshotWriter
	ChangeSubscriber
}

var _ Gateway = Composite{}
