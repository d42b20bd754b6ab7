package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// sqlite permits a single writer; one pooled connection serializes
	// statements instead of surfacing SQLITE_BUSY to racing callers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			headline TEXT NOT NULL,
			description TEXT NOT NULL,
			severity TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			areas TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			created_by TEXT NOT NULL,
			approver_id TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS delivery_attempts (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			provider_operation_id TEXT NOT NULL DEFAULT '',
			attempted_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS correlation_events (
			id TEXT PRIMARY KEY,
			pattern_type TEXT NOT NULL,
			alert_ids TEXT NOT NULL,
			region_code TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '',
			idempotency_key TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS recipients (
			id TEXT PRIMARY KEY,
			address TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_alerts_expires_at ON alerts(expires_at);
		CREATE INDEX IF NOT EXISTS idx_attempts_alert ON delivery_attempts(alert_id, attempted_at);
		CREATE INDEX IF NOT EXISTS idx_attempts_time ON delivery_attempts(attempted_at);
		CREATE INDEX IF NOT EXISTS idx_events_pattern ON correlation_events(pattern_type);
  	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping reports whether the underlying database is reachable.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
