package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const SQLiteFileName = "reminders.db"

// SQLiteLedger stores keys in a sent_reminders table. A single connection
// serialises writers.
type SQLiteLedger struct {
	db *sql.DB
}

func NewSQLiteLedger(dataDir string) (*SQLiteLedger, error) {
	return openSQLite(filepath.Join(dataDir, SQLiteFileName))
}

func openSQLite(path string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS sent_reminders (
			key TEXT PRIMARY KEY,
			occurs_at_ms INTEGER NOT NULL,
			sent_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS sent_reminders_occurs_idx ON sent_reminders(occurs_at_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("init ledger schema: %w", err)
		}
	}
	return nil
}

func (l *SQLiteLedger) Has(ctx context.Context, key string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sent_reminders WHERE key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return n > 0, nil
}

func (l *SQLiteLedger) Mark(ctx context.Context, key string, occursAt, sentAt time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sent_reminders(key, occurs_at_ms, sent_at_ms) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		key, occursAt.UnixMilli(), sentAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("mark ledger key: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention).UnixMilli()
	res, err := l.db.ExecContext(ctx, `DELETE FROM sent_reminders WHERE occurs_at_ms < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func (l *SQLiteLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sent_reminders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger: %w", err)
	}
	return n, nil
}

func (l *SQLiteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
