package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// SQLiteStore implements domain.MemoryStore over a WAL-mode SQLite table.
// Expiry stays lazy: expired rows are deleted on read, never swept.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Set stores value under key, overwriting unconditionally and resetting any
// prior expiry. ttl <= 0 means the entry never expires.
func (s *SQLiteStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return domain.WrapOp("memory.set", err)
	}
	now := time.Now()
	var expires *int64
	if ttl > 0 {
		e := now.Add(ttl).UnixNano()
		expires = &e
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (key, value, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, string(data), now.UnixNano(), expires)
	return domain.WrapOp("memory.set", err)
}

// Get returns the decoded value, deleting the row when its expiry has
// passed.
func (s *SQLiteStore) Get(ctx context.Context, key string) (any, bool, error) {
	var data string
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM entries WHERE key = ?", key,
	).Scan(&data, &expires)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.WrapOp("memory.get", err)
	}

	if expires.Valid && time.Now().UnixNano() > expires.Int64 {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err != nil {
			return nil, false, domain.WrapOp("memory.get", err)
		}
		return nil, false, nil
	}

	var value any
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return nil, false, domain.WrapOp("memory.get", err)
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key)
	return domain.WrapOp("memory.delete", err)
}

// Keys lists all stored keys, including not-yet-read expired ones.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM entries")
	if err != nil {
		return nil, domain.WrapOp("memory.keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, domain.WrapOp("memory.keys", err)
		}
		keys = append(keys, k)
	}
	return keys, domain.WrapOp("memory.keys", rows.Err())
}

// Clear removes every entry and leaves the store immediately re-usable.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM entries")
	return domain.WrapOp("memory.clear", err)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Compile-time interface check.
var _ domain.MemoryStore = (*SQLiteStore)(nil)
