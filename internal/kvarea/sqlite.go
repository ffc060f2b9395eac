package kvarea

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLite is a key-value area backed by an embedded SQLite database.
//
// Top-level fields live in a kv table; a meta table carries a revision
// counter bumped inside the same transaction as every write, so the change
// feed can detect writes from any connection (including this one) by
// polling the revision. WAL mode allows concurrent readers during writes.
type SQLite struct {
	conn *sql.DB
	path string

	pollInterval time.Duration
	logger       *log.Logger
}

// DefaultPollInterval is how often the SQLite change feed checks the
// revision counter.
const DefaultPollInterval = 100 * time.Millisecond

// OpenSQLite opens (or creates) a SQLite-backed area at the given path.
//
// The caller MUST call Close() when done.
func OpenSQLite(path string, pollInterval time.Duration, logger *log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[kvarea] ", log.LstdFlags)
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := &SQLite{
		conn:         conn,
		path:         path,
		pollInterval: pollInterval,
		logger:       logger,
	}

	// WAL mode for concurrent readers during writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := a.initSchema(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// initSchema creates the kv and meta tables. Idempotent.
func (a *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		rev INTEGER NOT NULL DEFAULT 0
	);

	INSERT OR IGNORE INTO meta (id, rev) VALUES (1, 0);
	`
	if _, err := a.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Get returns the requested fields, or every field when keys is nil.
func (a *SQLite) Get(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	fields, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return fields, nil
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if val, ok := fields[key]; ok {
			out[key] = val
		}
	}
	return out, nil
}

// Set upserts the given fields and bumps the revision counter in a single
// transaction.
func (a *SQLite) Set(ctx context.Context, fields map[string]json.RawMessage) error {
	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, val := range fields {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, string(val))
		if err != nil {
			return fmt.Errorf("failed to upsert key %s: %w", key, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meta SET rev = rev + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to bump revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Clear removes every field and bumps the revision counter atomically.
func (a *SQLite) Clear(ctx context.Context) error {
	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("failed to clear kv table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meta SET rev = rev + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to bump revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Watch starts the polling change feed. The returned channel is closed when
// ctx is cancelled. Writes landing between two polls are coalesced into a
// single event.
func (a *SQLite) Watch(ctx context.Context) (<-chan Event, error) {
	lastRev, err := a.revision(ctx)
	if err != nil {
		return nil, err
	}
	last, err := a.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)

		ticker := time.NewTicker(a.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			rev, err := a.revision(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				a.logger.Printf("Revision poll failed: %v", err)
				continue
			}
			if rev == lastRev {
				continue
			}
			lastRev = rev

			current, err := a.snapshot(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				a.logger.Printf("Snapshot read failed: %v", err)
				continue
			}

			changes := diffFields(last, current)
			last = current
			if changes == nil {
				continue
			}
			select {
			case events <- Event{Changes: changes}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// Close closes the database connection after a WAL checkpoint.
func (a *SQLite) Close() error {
	if a.conn == nil {
		return nil
	}
	if _, err := a.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		a.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := a.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	a.conn = nil
	return nil
}

// snapshot reads every kv row.
func (a *SQLite) snapshot(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := a.conn.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("failed to query kv table: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan kv row: %w", err)
		}
		fields[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kv rows: %w", err)
	}
	return fields, nil
}

// revision reads the current revision counter.
func (a *SQLite) revision(ctx context.Context) (int64, error) {
	var rev int64
	err := a.conn.QueryRowContext(ctx, `SELECT rev FROM meta WHERE id = 1`).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	return rev, nil
}
