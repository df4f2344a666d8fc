package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ppiankov/skytap/internal/record"
	"github.com/ppiankov/skytap/internal/store"
)

// Store keeps the cursor and record outbox in PostgreSQL. It mirrors the
// SQLite store.
type Store struct {
	pool *Pool
}

// Open connects to dsn, applies migrations and returns a ready store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// New wraps an existing, migrated pool.
func New(pool *Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetCursor returns the saved createdAt, or store.ErrNotFound.
func (s *Store) GetCursor(ctx context.Context) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT created_at FROM skytap_cursor WHERE id = 1`).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get cursor: %w", err)
	}
	return value, nil
}

// SetCursor upserts the singleton cursor row.
func (s *Store) SetCursor(ctx context.Context, createdAt string) error {
	if err := store.ValidateCursor(createdAt); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO skytap_cursor (id, created_at, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET created_at = EXCLUDED.created_at,
		    updated_at = NOW()
	`, createdAt)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

func (s *Store) DeleteCursor(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM skytap_cursor WHERE id = 1`); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

// Emit inserts records in one batch transaction, skipping rows that already
// exist for the same topic, uri and cid.
func (s *Store) Emit(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		payload, err := store.EncodeValue(r.Value)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO skytap_records (
				id, topic, uri, cid, author_handle, created_at, created_ts, payload
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (topic, uri, cid) DO NOTHING
		`,
			uuid.NewString(),
			r.Topic,
			r.Value.ID.URI,
			r.Value.ID.CID,
			r.Value.Author.Handle,
			r.Cursor(),
			r.Timestamp.UTC(),
			payload,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin emit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert record: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit emit: %w", err)
	}
	return nil
}

// Recent returns up to limit records for topic, newest first.
func (s *Store) Recent(ctx context.Context, topic string, limit int) ([]store.StoredRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, topic, uri, cid, author_handle, created_at, created_ts, payload, emitted_at
		FROM skytap_records
		WHERE topic = $1
		ORDER BY created_ts DESC, id
		LIMIT $2
	`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer rows.Close()

	var out []store.StoredRecord
	for rows.Next() {
		var (
			rec     store.StoredRecord
			payload []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Topic,
			&rec.URI,
			&rec.CID,
			&rec.AuthorHandle,
			&rec.Cursor,
			&rec.CreatedAt,
			&payload,
			&rec.EmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		value, err := store.DecodeValue(payload)
		if err != nil {
			return nil, err
		}
		rec.Value = value
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Stats returns the outbox size and time span for topic.
func (s *Store) Stats(ctx context.Context, topic string) (store.Stats, error) {
	var (
		st             store.Stats
		oldest, newest *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), MIN(created_ts), MAX(created_ts)
		FROM skytap_records
		WHERE topic = $1
	`, topic).Scan(&st.Count, &oldest, &newest)
	if err != nil {
		return store.Stats{}, fmt.Errorf("record stats: %w", err)
	}
	if oldest != nil {
		st.Oldest = oldest.UTC()
	}
	if newest != nil {
		st.Newest = newest.UTC()
	}
	return st, nil
}

// PruneOld deletes records emitted more than retainDays ago.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if retainDays <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM skytap_records WHERE emitted_at < $1`,
		time.Now().AddDate(0, 0, -retainDays),
	)
	if err != nil {
		return 0, fmt.Errorf("prune old records: %w", err)
	}
	return tag.RowsAffected(), nil
}
