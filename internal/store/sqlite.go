package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite implements Backend on a single SQLite table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite-backed key-value backend.
func NewSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the sweeper delete while widget sessions write.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS kv (
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (scope, key)
	);
	CREATE INDEX IF NOT EXISTS idx_kv_updated ON kv(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Scope implements Backend.
func (s *SQLite) Scope(name string) Store {
	return &sqliteScope{s: s, scope: name}
}

// Ping implements Backend.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Backend.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CleanupSessionScopes implements Backend.
func (s *SQLite) CleanupSessionScopes(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).UnixMilli()
	var deleted int64
	err := withRetry(ctx, "cleanup session scopes", func() error {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM kv WHERE scope LIKE ? AND updated_at < ?`,
			sessionScopePrefix+"%", threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

type sqliteScope struct {
	s     *SQLite
	scope string
}

// Get refreshes updated_at on a hit, so a key that is still being read is
// not swept as idle.
func (k *sqliteScope) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := withRetry(ctx, "get "+k.scope+"/"+key, func() error {
		err := k.s.db.QueryRowContext(ctx,
			`UPDATE kv SET updated_at = ? WHERE scope = ? AND key = ? RETURNING value`,
			time.Now().UnixMilli(), k.scope, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (k *sqliteScope) Set(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO kv (scope, key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(scope, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return withRetry(ctx, "set "+k.scope+"/"+key, func() error {
		_, err := k.s.db.ExecContext(ctx, query, k.scope, key, value, time.Now().UnixMilli())
		return err
	})
}

func (k *sqliteScope) Clear(ctx context.Context, key string) error {
	return withRetry(ctx, "clear "+k.scope+"/"+key, func() error {
		_, err := k.s.db.ExecContext(ctx, `DELETE FROM kv WHERE scope = ? AND key = ?`, k.scope, key)
		return err
	})
}

// isConflictError reports SQLite lock contention, which is worth retrying.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withRetry runs fn up to three times, backing off 50ms, 100ms between
// attempts while SQLite reports lock contention.
func withRetry(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Backend = (*SQLite)(nil)
