// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides outbox and pending-interaction persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is the persisted timestamp shape: second precision, always UTC.
const timeFormat = "2006-01-02T15:04:05Z"

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS outbox_records (
			record_id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			target_channel TEXT NOT NULL,
			thread_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			payload BLOB NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			next_attempt_at TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_outbox_next_attempt
			ON outbox_records(next_attempt_at);

		CREATE TABLE IF NOT EXISTS pending_interactions (
			request_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			platform TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			thread_id TEXT NOT NULL DEFAULT '',
			prompt_msg_id TEXT NOT NULL DEFAULT '',
			payload BLOB NOT NULL,
			selected TEXT NOT NULL DEFAULT '[]',
			awaiting_text INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// PutOutboxRecord inserts or replaces an outbox record.
func (s *SQLiteStore) PutOutboxRecord(ctx context.Context, rec *OutboxRecord) error {
	var nextAttempt any
	if rec.NextAttemptAt != nil {
		nextAttempt = rec.NextAttemptAt.UTC().Format(timeFormat)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO outbox_records
			(record_id, platform, target_channel, thread_id, kind, payload,
			 attempts, last_error, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RecordID, rec.Platform, rec.TargetChannel, rec.ThreadID, rec.Kind,
		rec.Payload, rec.Attempts, rec.LastError, nextAttempt,
		rec.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("storing outbox record: %w", err)
	}
	return nil
}

// GetOutboxRecord fetches a record by id.
func (s *SQLiteStore) GetOutboxRecord(ctx context.Context, recordID string) (*OutboxRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, platform, target_channel, thread_id, kind, payload,
		       attempts, last_error, next_attempt_at, created_at
		FROM outbox_records WHERE record_id = ?`, recordID)
	return scanOutboxRecord(row)
}

// DeleteOutboxRecord removes a record. Missing records are not an error.
func (s *SQLiteStore) DeleteOutboxRecord(ctx context.Context, recordID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbox_records WHERE record_id = ?`, recordID)
	if err != nil {
		return fmt.Errorf("deleting outbox record: %w", err)
	}
	return nil
}

// ListOutboxRecords returns all persisted records, oldest first.
func (s *SQLiteStore) ListOutboxRecords(ctx context.Context) ([]*OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, platform, target_channel, thread_id, kind, payload,
		       attempts, last_error, next_attempt_at, created_at
		FROM outbox_records ORDER BY created_at, record_id`)
	if err != nil {
		return nil, fmt.Errorf("listing outbox records: %w", err)
	}
	defer rows.Close()

	var records []*OutboxRecord
	for rows.Next() {
		rec, err := scanOutboxRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxRecord(row rowScanner) (*OutboxRecord, error) {
	var (
		rec         OutboxRecord
		nextAttempt sql.NullString
		createdAt   string
	)
	err := row.Scan(&rec.RecordID, &rec.Platform, &rec.TargetChannel,
		&rec.ThreadID, &rec.Kind, &rec.Payload, &rec.Attempts, &rec.LastError,
		&nextAttempt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning outbox record: %w", err)
	}

	if nextAttempt.Valid {
		t, err := time.Parse(timeFormat, nextAttempt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing next_attempt_at: %w", err)
		}
		rec.NextAttemptAt = &t
	}
	created, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.CreatedAt = created
	return &rec, nil
}

// PutPendingInteraction inserts or replaces a pending-interaction record.
func (s *SQLiteStore) PutPendingInteraction(ctx context.Context, rec *PendingInteraction) error {
	selected, err := json.Marshal(rec.Selected)
	if err != nil {
		return fmt.Errorf("marshaling selected indices: %w", err)
	}
	awaiting := 0
	if rec.AwaitingText {
		awaiting = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_interactions
			(request_id, kind, platform, chat_id, thread_id, prompt_msg_id,
			 payload, selected, awaiting_text, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Kind, rec.Platform, rec.ChatID, rec.ThreadID,
		rec.PromptMsgID, rec.Payload, string(selected), awaiting,
		rec.CreatedAt.UTC().Format(timeFormat),
		rec.ExpiresAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("storing pending interaction: %w", err)
	}
	return nil
}

// GetPendingInteraction fetches a record by request id.
func (s *SQLiteStore) GetPendingInteraction(ctx context.Context, requestID string) (*PendingInteraction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, kind, platform, chat_id, thread_id, prompt_msg_id,
		       payload, selected, awaiting_text, created_at, expires_at
		FROM pending_interactions WHERE request_id = ?`, requestID)
	return scanPendingInteraction(row)
}

// DeletePendingInteraction removes a resolved or expired record.
func (s *SQLiteStore) DeletePendingInteraction(ctx context.Context, requestID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_interactions WHERE request_id = ?`, requestID)
	if err != nil {
		return fmt.Errorf("deleting pending interaction: %w", err)
	}
	return nil
}

// ListPendingInteractions returns all pending records, oldest first.
func (s *SQLiteStore) ListPendingInteractions(ctx context.Context) ([]*PendingInteraction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, kind, platform, chat_id, thread_id, prompt_msg_id,
		       payload, selected, awaiting_text, created_at, expires_at
		FROM pending_interactions ORDER BY created_at, request_id`)
	if err != nil {
		return nil, fmt.Errorf("listing pending interactions: %w", err)
	}
	defer rows.Close()

	var records []*PendingInteraction
	for rows.Next() {
		rec, err := scanPendingInteraction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanPendingInteraction(row rowScanner) (*PendingInteraction, error) {
	var (
		rec       PendingInteraction
		selected  string
		awaiting  int
		createdAt string
		expiresAt string
	)
	err := row.Scan(&rec.RequestID, &rec.Kind, &rec.Platform, &rec.ChatID,
		&rec.ThreadID, &rec.PromptMsgID, &rec.Payload, &selected, &awaiting,
		&createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning pending interaction: %w", err)
	}

	if err := json.Unmarshal([]byte(selected), &rec.Selected); err != nil {
		return nil, fmt.Errorf("parsing selected indices: %w", err)
	}
	rec.AwaitingText = awaiting != 0
	if rec.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.ExpiresAt, err = time.Parse(timeFormat, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	return &rec, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
