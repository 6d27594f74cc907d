package logevents

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, e *Event) error {
	if e.TimestampMS == 0 {
		e.TimestampMS = time.Now().UnixMilli()
	}
	const q = `
		INSERT INTO log_events (log_group, log_stream, ts_ms, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	row := s.db.QueryRowContext(ctx, q,
		e.LogGroup,
		e.LogStream,
		e.TimestampMS,
		e.Message,
		time.Now().UTC(),
	)
	return row.Scan(&e.ID, &e.CreatedAt)
}

// InsertBatch writes a shipped batch in one transaction so a partial batch
// never becomes visible.
func (s *Store) InsertBatch(ctx context.Context, events []*Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO log_events (log_group, log_stream, ts_ms, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	now := time.Now().UTC()
	for _, e := range events {
		if e.TimestampMS == 0 {
			e.TimestampMS = now.UnixMilli()
		}
		row := tx.QueryRowContext(ctx, q, e.LogGroup, e.LogStream, e.TimestampMS, e.Message, now)
		if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// List returns events newest-first within the filter window.
func (s *Store) List(ctx context.Context, f Filter) ([]Event, error) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	idx := 1

	if f.LogGroup != "" {
		clauses = append(clauses, "log_group = $"+strconv.Itoa(idx))
		args = append(args, f.LogGroup)
		idx++
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "ts_ms >= $"+strconv.Itoa(idx))
		args = append(args, f.Since.UnixMilli())
		idx++
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "ts_ms <= $"+strconv.Itoa(idx))
		args = append(args, f.Until.UnixMilli())
		idx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 2000 {
		limit = 500
	}

	query := "SELECT id, log_group, log_stream, ts_ms, message, created_at FROM log_events WHERE " +
		strings.Join(clauses, " AND ") + " ORDER BY ts_ms DESC LIMIT " + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.LogGroup, &e.LogStream, &e.TimestampMS, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
