// Package localstore persists the ledger snapshot on local disk. Snapshots
// are written whole, never partially; SQLite gives the write atomicity and
// crash safety that a bare file would not.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"saldo/internal/core"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load returns the persisted snapshot for the user. A missing row or an
// undecodable payload falls back to an empty snapshot. A broken local copy
// must never keep the user from their ledger, so decode problems are logged
// and swallowed here.
func (s *Store) Load(ctx context.Context, userID string) core.Snapshot {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM snapshots WHERE user_id = ?`, userID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EmptySnapshot()
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to read local snapshot, starting empty",
			"user_id", userID, "error", err)
		return core.EmptySnapshot()
	}

	snap, err := core.DecodeSnapshot([]byte(payload))
	if err != nil {
		slog.WarnContext(ctx, "Local snapshot does not decode, starting empty",
			"user_id", userID, "error", err)
		return core.EmptySnapshot()
	}
	return snap
}

// Save replaces the user's persisted snapshot.
func (s *Store) Save(ctx context.Context, userID string, snap core.Snapshot) error {
	data, err := core.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (user_id, snapshot, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			saved_at = excluded.saved_at`,
		userID, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	slog.DebugContext(ctx, "Local snapshot saved",
		"user_id", userID,
		"bytes", len(data),
		"transactions", len(snap.Transactions))
	return nil
}

// SavedAt returns when the user's snapshot was last written, or the zero
// time if none exists.
func (s *Store) SavedAt(ctx context.Context, userID string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT saved_at FROM snapshots WHERE user_id = ?`, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read saved_at: %w", err)
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse saved_at: %w", err)
	}
	return at, nil
}
