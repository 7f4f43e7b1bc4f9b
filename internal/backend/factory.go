package backend

import (
	"context"
	"fmt"
	"log/slog"

	"saldo/internal/amqp"
	"saldo/internal/gateway/firestore"
	"saldo/internal/gateway/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend()
	case FirestoreBackend:
		return f.createFirestoreBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	store := memory.New()

	f.logger.Info("Initialized memory backend")

	return &BackendResult{
		Fetcher:    store,
		Writer:     store,
		Subscriber: store,
		Cleanup:    nil,
	}, nil
}

func (f *DefaultFactory) createFirestoreBackend(ctx context.Context, config Config) (*BackendResult, error) {
	fsClient, err := firestore.NewClient(ctx, firestore.Config{
		ProjectID:  config.GoogleProjectID,
		DatabaseID: config.FirestoreDatabase,
		Collection: config.FirestoreCollection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firestore client: %w", err)
	}

	result := &BackendResult{
		Fetcher: fsClient,
		Writer:  fsClient,
	}

	// The AMQP feed is optional. Without it other devices still converge
	// through debounced and manual reconciles, just not in realtime.
	if config.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.DeviceID)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without realtime feed", "error", err)
		} else {
			result.Writer = amqpClient.WrapWriter(fsClient)
			result.Subscriber = amqpClient
			result.Cleanup = amqpClient.Close
			f.logger.Info("Initialized AMQP realtime feed",
				"exchange", config.AMQPExchange,
				"device_id", config.DeviceID)
		}
	}

	f.logger.Info("Initialized Firestore backend",
		"project", config.GoogleProjectID,
		"collection", config.FirestoreCollection,
		"realtime", result.Subscriber != nil)

	return result, nil
}
