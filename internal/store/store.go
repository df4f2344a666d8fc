// Package store persists the connector cursor and an outbox of emitted
// records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/skytap/internal/record"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	return s.db.PingContext(ctx)
}

// GetCursor returns the saved createdAt, or ErrNotFound.
func (s *Store) GetCursor(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("store is not initialized")
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT created_at FROM cursor WHERE id = 1").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get cursor: %w", err)
	}
	return value, nil
}

// SetCursor saves createdAt as the cursor, replacing any previous one.
func (s *Store) SetCursor(ctx context.Context, createdAt string) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if err := ValidateCursor(createdAt); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursor (id, created_at, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, createdAt, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// DeleteCursor forgets the cursor so the next run starts without one.
func (s *Store) DeleteCursor(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cursor WHERE id = 1"); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

// Emit appends records to the outbox in one transaction. A record already
// stored for the same topic, uri and cid is skipped.
func (s *Store) Emit(ctx context.Context, records []record.Record) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin emit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (
			id, topic, uri, cid, author_handle, created_at, created_ts, payload, emitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(topic, uri, cid) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare emit: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	emittedAt := formatTime(time.Now())
	for _, r := range records {
		payload, err := EncodeValue(r.Value)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(),
			r.Topic,
			r.Value.ID.URI,
			r.Value.ID.CID,
			r.Value.Author.Handle,
			r.Cursor(),
			formatTime(r.Timestamp),
			string(payload),
			emittedAt,
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.Value.ID.URI, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit emit: %w", err)
	}
	return nil
}

// Recent returns up to limit records for topic, newest first.
func (s *Store) Recent(ctx context.Context, topic string, limit int) ([]StoredRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, uri, cid, author_handle, created_at, created_ts, payload, emitted_at
		FROM records
		WHERE topic = ?
		ORDER BY created_ts DESC, id
		LIMIT ?
	`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Stats returns the outbox size and time span for topic.
func (s *Store) Stats(ctx context.Context, topic string) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, errors.New("store is not initialized")
	}

	var (
		st             Stats
		oldest, newest sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_ts), MAX(created_ts)
		FROM records
		WHERE topic = ?
	`, topic).Scan(&st.Count, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("record stats: %w", err)
	}

	if st.Oldest, err = parseTime(oldest.String); err != nil {
		return Stats{}, fmt.Errorf("parse oldest: %w", err)
	}
	if st.Newest, err = parseTime(newest.String); err != nil {
		return Stats{}, fmt.Errorf("parse newest: %w", err)
	}
	return st, nil
}

// PruneOld deletes records emitted more than retainDays ago and returns how
// many were removed. A retainDays of zero or less keeps everything.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE emitted_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune old records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (StoredRecord, error) {
	var rec StoredRecord
	var createdTS, payload, emittedAt string
	if err := scanner.Scan(
		&rec.ID,
		&rec.Topic,
		&rec.URI,
		&rec.CID,
		&rec.AuthorHandle,
		&rec.Cursor,
		&createdTS,
		&payload,
		&emittedAt,
	); err != nil {
		return StoredRecord{}, fmt.Errorf("scan record: %w", err)
	}

	var err error
	if rec.CreatedAt, err = parseTime(createdTS); err != nil {
		return StoredRecord{}, fmt.Errorf("parse created_ts: %w", err)
	}
	if rec.EmittedAt, err = parseTime(emittedAt); err != nil {
		return StoredRecord{}, fmt.Errorf("parse emitted_at: %w", err)
	}
	if rec.Value, err = DecodeValue([]byte(payload)); err != nil {
		return StoredRecord{}, err
	}
	return rec, nil
}

// formatTime uses a fixed-width layout so that stored timestamps sort
// lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
