// ABOUTME: SQLite implementation of BlobStore using modernc.org/sqlite
// ABOUTME: Keeps snapshots in a single key/value table with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBlobStore implements BlobStore using SQLite
type SQLiteBlobStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteBlobStore opens (or creates) a SQLite database at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteBlobStore(path string) (*SQLiteBlobStore, error) {
	logger := slog.Default().With("component", "store", "backend", "sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every action writes through; a single connection keeps :memory:
	// databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteBlobStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the snapshot table if it doesn't exist
func (s *SQLiteBlobStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the blob stored under key.
// Returns ErrNotFound if nothing was stored.
func (s *SQLiteBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT data FROM snapshots WHERE key = ?`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return data, nil
}

// Put saves or replaces the blob under key.
// Uses INSERT OR REPLACE to handle both insert and update cases.
func (s *SQLiteBlobStore) Put(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT OR REPLACE INTO snapshots (key, data, updated_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		key,
		data,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	s.logger.Debug("saved blob", "key", key, "size", len(data))
	return nil
}

// Delete removes the blob under key. Deleting a missing key is not an error.
func (s *SQLiteBlobStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteBlobStore) Close() error {
	return s.db.Close()
}
