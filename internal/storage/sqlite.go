package storage

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

	"github.com/jonboulle/clockwork"

	_ "modernc.org/sqlite"
)

// SQLiteKV persists entries in a single SQLite table.
type SQLiteKV struct {
	db            *sql.DB
	clock         clockwork.Clock
	schemaVersion uint
}

var (
	_ KV      = (*SQLiteKV)(nil)
	_ Cleaner = (*SQLiteKV)(nil)
)

// NewSQLiteKV opens (creating if needed) the database at dbPath and migrates it.
func NewSQLiteKV(dbPath string, clock clockwork.Clock) (*SQLiteKV, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
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

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteKV{db: db, clock: clock, schemaVersion: version}, nil
}

// SchemaVersion is the migration version the database was opened at.
func (s *SQLiteKV) SchemaVersion() uint {
	return s.schemaVersion
}

func (s *SQLiteKV) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	var (
		value     string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get entry %s: %w", key, err)
	}

	if s.clock.Now().UnixMilli() > expiresAt {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
			slog.WarnContext(ctx, "Failed to drop expired entry", "key", key, "error", err)
		}
		return "", false, nil
	}
	return value, true, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key, value string, expiresAt time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, value, expiresAt.UnixMilli(), s.clock.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv_entries
		WHERE substr(key, 1, ?) = ? AND expires_at >= ?
		ORDER BY key`,
		len(prefix), prefix, s.clock.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list keys with prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

// CleanExpired deletes every expired row.
func (s *SQLiteKV) CleanExpired() int {
	res, err := s.db.Exec(`DELETE FROM kv_entries WHERE expires_at < ?`, s.clock.Now().UnixMilli())
	if err != nil {
		slog.Error("Failed to clean expired entries", "error", err)
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
