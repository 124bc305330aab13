package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver" // database/sql driver "sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"  // embedded SQLite build

	"company-lookup/internal/logs"
)

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	Path       string
	Origin     string // namespace inside the database file
	QuotaBytes int64  // <= 0 means unlimited
}

// SQLiteStore is a Store persisted in a SQLite database. Each origin sees
// only its own keys, like per-origin browser storage.
type SQLiteStore struct {
	db     *sql.DB
	origin string
	quota  int64
	closed atomic.Bool
}

// OpenSQLite opens (creating if needed) the database at cfg.Path and
// applies the schema.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig, logger *logs.Logger) (*SQLiteStore, error) {
	const dbDirPerm = 0o750

	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.Origin == "" {
		cfg.Origin = "default"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), dbDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := runMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().
		Str("path", cfg.Path).
		Str("origin", cfg.Origin).
		Msg("durable store opened")

	return &SQLiteStore{db: db, origin: cfg.Origin, quota: cfg.QuotaBytes}, nil
}

func (s *SQLiteStore) Available() bool {
	return s.db != nil && !s.closed.Load()
}

func (s *SQLiteStore) Get(key string) (string, bool, error) {
	if !s.Available() {
		return "", false, ErrUnavailable
	}

	var value string
	err := s.db.QueryRow(
		`SELECT value FROM kv_entries WHERE origin = ? AND key = ?`,
		s.origin, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	if !s.Available() {
		return ErrUnavailable
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin set %q: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.quota > 0 {
		var others int64
		err := tx.QueryRow(
			`SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0)
			   FROM kv_entries WHERE origin = ? AND key <> ?`,
			s.origin, key,
		).Scan(&others)
		if err != nil {
			return fmt.Errorf("measure origin %q: %w", s.origin, err)
		}
		if others+entrySize(key, value) > s.quota {
			return ErrQuotaExceeded
		}
	}

	_, err = tx.Exec(
		`INSERT INTO kv_entries (origin, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (origin, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.origin, key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Delete(key string) error {
	if !s.Available() {
		return ErrUnavailable
	}

	if _, err := s.db.Exec(
		`DELETE FROM kv_entries WHERE origin = ? AND key = ?`,
		s.origin, key,
	); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys() ([]string, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	rows, err := s.db.Query(
		`SELECT key FROM kv_entries WHERE origin = ? ORDER BY key`,
		s.origin,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close releases the database. The store reports unavailable afterwards.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
