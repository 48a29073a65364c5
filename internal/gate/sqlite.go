package gate

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is a ValidationStore backed by a SQLite file, for
// deployments where dry runs and executes may land on different
// processes sharing a filesystem.
//
// Uses WAL mode so reads proceed during writes.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore creates or opens the validation cache database.
// Applies required pragmas and the schema automatically; idempotent.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open validation cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect validation cache: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply validation cache schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*ValidationRecord, bool, error) {
	var (
		tsNanos     int64
		payloadHash string
		validated   bool
		errorsJSON  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ts, payload_hash, validated, errors
		FROM validations WHERE key = ?
	`, key).Scan(&tsNanos, &payloadHash, &validated, &errorsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read validation record: %w", err)
	}

	rec := &ValidationRecord{
		Timestamp:   time.Unix(0, tsNanos).UTC(),
		PayloadHash: payloadHash,
		Validated:   validated,
	}
	if errorsJSON != "" {
		if err := json.Unmarshal([]byte(errorsJSON), &rec.Errors); err != nil {
			return nil, false, fmt.Errorf("decode validation errors: %w", err)
		}
	}
	return rec, true, nil
}

// Put upserts the record: ON CONFLICT replaces the previous dry run for
// the same key, preserving the one-record-per-key invariant.
func (s *SQLiteStore) Put(ctx context.Context, key string, rec ValidationRecord) error {
	errorsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("encode validation errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO validations (key, ts, payload_hash, validated, errors)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			ts = excluded.ts,
			payload_hash = excluded.payload_hash,
			validated = excluded.validated,
			errors = excluded.errors
	`, key, rec.Timestamp.UnixNano(), rec.PayloadHash, rec.Validated, string(errorsJSON))
	if err != nil {
		return fmt.Errorf("write validation record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM validations WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete validation record: %w", err)
	}
	return nil
}
