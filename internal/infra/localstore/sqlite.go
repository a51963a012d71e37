package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLite persists blobs in a single key/payload table. Each Save is one
// upsert statement, so a page unload mid-write leaves either the old or the
// new blob, never a mix.
type SQLite struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewSQLite opens (creating if needed) the blob table at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "flockcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Load returns the stored blob, treating missing rows, read failures, and
// invalid JSON payloads alike as absent.
func (s *SQLite) Load(key string) (json.RawMessage, bool) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM state WHERE bucket = ?`, key).Scan(&payload)
	if err != nil || !json.Valid(payload) {
		return nil, false
	}
	return payload, true
}

// Save upserts the JSON encoding of value under key.
func (s *SQLite) Save(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, key, data); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob under key.
func (s *SQLite) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM state WHERE bucket = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *SQLite) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *SQLite) Path() string { return s.path }
