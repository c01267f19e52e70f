package cache

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed persistent cache. Entries survive process
// restarts, which is what makes the fetch-or-fallback degradation
// useful across runs: yesterday's inventory query still renders a
// visualization when the database is down today.
//
// Values are serialized as JSON; retrieval yields the generic decoded
// forms (map[string]any, []any, float64, string, bool).
type Store struct {
	db *sql.DB
}

// Open creates or opens a cache database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent read access
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	// SQLite only supports one writer at a time; limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Retrieve(key, scope string) (any, error) {
	var raw []byte
	err := s.db.QueryRow(
		`SELECT value FROM cache_entries WHERE scope = ? AND key = ?`,
		scope, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s/%s: %w", scope, key, err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode cached %s/%s: %w", scope, key, err)
	}
	return value, nil
}

func (s *Store) Store(key, scope string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", scope, key, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO cache_entries (scope, key, value)
		 VALUES (?, ?, ?)
		 ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value`,
		scope, key, raw,
	)
	if err != nil {
		return fmt.Errorf("store %s/%s: %w", scope, key, err)
	}
	return nil
}
