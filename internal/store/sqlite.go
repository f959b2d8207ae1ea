package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
	retry   shared.RetryPolicy
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets goal reads proceed during a write.
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

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS category_goals (
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, category)
	);

	CREATE TABLE IF NOT EXISTS muscle_goals (
		user_id TEXT NOT NULL,
		muscle TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, muscle)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert inserts the row for key or overwrites fields on the existing one.
// Busy errors are retried with exponential backoff.
func (s *SQLiteStore) Upsert(ctx context.Context, table string, key Key, fields Fields) error {
	def, names, err := lookup(table, fields)
	if err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}

	cols := append([]string{"user_id", def.subject}, names...)
	cols = append(cols, "created_at", "updated_at")
	now := time.Now().Unix()
	args := []any{key.UserID, key.Subject}
	for _, n := range names {
		args = append(args, fields[n])
	}
	args = append(args, now, now)

	set := make([]string, 0, len(names)+1)
	for _, n := range names {
		set = append(set, fmt.Sprintf("%s = excluded.%s", n, n))
	}
	set = append(set, "updated_at = excluded.updated_at")

	query := fmt.Sprintf(`
	INSERT INTO %s (%s)
	VALUES (%s)
	ON CONFLICT(user_id, %s) DO UPDATE SET
		%s`,
		table, strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		def.subject, strings.Join(set, ",\n\t\t"))

	err = shared.RetryOnConflict(ctx, s.retry, "upsert "+table, func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert %s for %s: %w", table, key.UserID, err)
	}
	return nil
}

// ListGoals returns the user's goals in table ordered by subject.
func (s *SQLiteStore) ListGoals(ctx context.Context, table, userID string) ([]Goal, error) {
	def, _, err := lookup(table, nil)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s, weight, updated_at FROM %s WHERE user_id = ? ORDER BY %s`,
		def.subject, table, def.subject)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close goal rows", "table", table, "error", closeErr)
		}
	}()

	goals := []Goal{}
	for rows.Next() {
		var g Goal
		var updatedAt int64
		if err := rows.Scan(&g.Subject, &g.Weight, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		g.UpdatedAt = time.Unix(updatedAt, 0)
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return goals, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
