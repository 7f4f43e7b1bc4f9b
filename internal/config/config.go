package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	// HTTP Server
	Port string

	// Local snapshot database
	SQLiteDBPath string

	// AMQP realtime feed
	AMQPURL      string
	AMQPExchange string

	// Identity
	UserID   string
	DeviceID string

	// Google Firestore
	GoogleProjectID     string
	FirestoreDatabase   string
	FirestoreCollection string

	// Sync
	MaxDocumentBytes int
	SaveDebounce     time.Duration
	SyncDebounce     time.Duration

	// Backend selection
	RemoteBackend string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/saldo.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "saldo.snapshots"),

		UserID:   getEnv("SALDO_USER_ID", ""),
		DeviceID: getEnv("SALDO_DEVICE_ID", uuid.NewString()),

		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		FirestoreDatabase:   getEnv("FIRESTORE_DATABASE", "(default)"),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "ledgers"),

		MaxDocumentBytes: getEnvInt("MAX_DOCUMENT_BYTES", 900*1024),
		SaveDebounce:     getEnvDuration("SAVE_DEBOUNCE", 500*time.Millisecond),
		SyncDebounce:     getEnvDuration("SYNC_DEBOUNCE", 2*time.Second),

		RemoteBackend: getEnv("REMOTE_BACKEND", "memory"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate remote backend
	validBackends := []string{"memory", "firestore"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.RemoteBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, validBackends))
	}

	// Validate SQLite path
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.DeviceID == "" {
			errors = append(errors, "device ID cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Firestore configuration if backend is firestore
	if c.RemoteBackend == "firestore" {
		if c.GoogleProjectID == "" {
			errors = append(errors, "Google project ID is required when using firestore backend")
		}
		if c.FirestoreDatabase == "" {
			errors = append(errors, "Firestore database cannot be empty when using firestore backend")
		}
		if c.FirestoreCollection == "" {
			errors = append(errors, "Firestore collection cannot be empty when using firestore backend")
		}
		if c.UserID == "" {
			errors = append(errors, "user ID is required when using firestore backend")
		}
	}

	// Validate sync tuning
	if c.MaxDocumentBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max document bytes %d: must be at least 1024", c.MaxDocumentBytes))
	} else if c.MaxDocumentBytes > 10*1024*1024 {
		errors = append(errors, fmt.Sprintf("invalid max document bytes %d: must be at most 10 MiB", c.MaxDocumentBytes))
	}

	if c.SaveDebounce < 10*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid save debounce %v: must be at least 10ms", c.SaveDebounce))
	} else if c.SaveDebounce > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid save debounce %v: must be at most 1 minute", c.SaveDebounce))
	}

	if c.SyncDebounce < c.SaveDebounce {
		errors = append(errors, fmt.Sprintf("invalid sync debounce %v: must not be shorter than save debounce %v", c.SyncDebounce, c.SaveDebounce))
	} else if c.SyncDebounce > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync debounce %v: must be at most 1 hour", c.SyncDebounce))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
