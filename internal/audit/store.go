// Package audit keeps one row per transcription request in Postgres.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

const maxDetailLen = 2000

func (s *Store) Record(ctx context.Context, rec models.RunRecord) error {
	detail := rec.Detail
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen]
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO transcription_runs (request_id, outcome, error_category, detail, model_spec, duration_sec,
		                                 load_ms, separation_ms, transcription_ms, total_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.RequestID, string(rec.Outcome), rec.ErrorCategory, detail, rec.ModelSpec, rec.DurationSec,
		rec.Timings.Load, rec.Timings.Separation, rec.Timings.Transcription, rec.Timings.Total, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert transcription run: %w", err)
	}
	return nil
}

// Query filters Recent. Zero values mean no filter.
type Query struct {
	Outcome   string
	RequestID string
	Since     *time.Time
	Limit     int
	Offset    int
}

// Recent lists runs newest first.
func (s *Store) Recent(ctx context.Context, q Query) ([]models.RunRecord, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var (
		where  []string
		args   []any
		argIdx = 1
	)
	if q.Outcome != "" {
		where = append(where, fmt.Sprintf("outcome = $%d", argIdx))
		args = append(args, q.Outcome)
		argIdx++
	}
	if q.RequestID != "" {
		where = append(where, fmt.Sprintf("request_id = $%d", argIdx))
		args = append(args, q.RequestID)
		argIdx++
	}
	if q.Since != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *q.Since)
		argIdx++
	}

	query := `SELECT request_id, outcome, error_category, detail, model_spec, duration_sec,
			         load_ms, separation_ms, transcription_ms, total_ms, created_at
			  FROM transcription_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcription runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		var r models.RunRecord
		var outcome string
		if err := rows.Scan(&r.RequestID, &outcome, &r.ErrorCategory, &r.Detail, &r.ModelSpec, &r.DurationSec,
			&r.Timings.Load, &r.Timings.Separation, &r.Timings.Transcription, &r.Timings.Total, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcription run: %w", err)
		}
		r.Outcome = models.RunOutcome(outcome)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcription runs: %w", err)
	}
	return runs, nil
}
