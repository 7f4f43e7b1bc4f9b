package backend

import (
	"fmt"

	"saldo/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.RemoteBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s (valid: %v)", appConfig.RemoteBackend, GetBackendTypes())
	}

	return Config{
		Type: backendType,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		DeviceID:     appConfig.DeviceID,

		GoogleProjectID:     appConfig.GoogleProjectID,
		FirestoreDatabase:   appConfig.FirestoreDatabase,
		FirestoreCollection: appConfig.FirestoreCollection,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s (valid: %v)", c.Type, GetBackendTypes())
	}

	switch c.Type {
	case FirestoreBackend:
		if c.GoogleProjectID == "" {
			return fmt.Errorf("Google project ID is required for firestore backend")
		}
		if c.FirestoreCollection == "" {
			return fmt.Errorf("Firestore collection is required for firestore backend")
		}
		if c.AMQPURL != "" && c.DeviceID == "" {
			return fmt.Errorf("device ID is required when the AMQP feed is enabled")
		}

	case MemoryBackend:
		// Memory backend doesn't require additional validation
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, FirestoreBackend}
}
