package backend

import (
	"context"

	"saldo/internal/gateway"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the assembled remote ports and an optional cleanup
// function. Subscriber is nil when the backend has no realtime feed.
type BackendResult struct {
	Fetcher    gateway.SnapshotFetcher
	Writer     gateway.SnapshotWriter
	Subscriber gateway.ChangeSubscriber
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// AMQP realtime feed (optional, firestore backend only)
	AMQPURL      string
	AMQPExchange string
	DeviceID     string

	// Firestore specific
	GoogleProjectID     string
	FirestoreDatabase   string
	FirestoreCollection string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	FirestoreBackend BackendType = "firestore"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FirestoreBackend:
		return true
	default:
		return false
	}
}
