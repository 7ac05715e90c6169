package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresResultStore is a PostgreSQL-backed ResultStore.
type PostgresResultStore struct {
	pool *pgxpool.Pool
}

// NewPostgresResultStore creates a result store on an existing pool.
func NewPostgresResultStore(pool *pgxpool.Pool) (*PostgresResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresResultStore{pool: pool}, nil
}

func (s *PostgresResultStore) SaveResult(ctx context.Context, r Result) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = r.FinishedAt
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_results
		   (id, session_id, client_id, mode, post, subject, language, difficulty,
		    total, score, timed_out, started_at, finished_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID,
		r.SessionID,
		r.ClientID,
		string(r.Mode),
		string(r.Post),
		nullIfEmpty(r.Subject),
		string(r.Language),
		string(r.Difficulty),
		r.Total,
		r.Score,
		r.TimedOut,
		r.StartedAt,
		r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) ListResults(ctx context.Context, clientID string, limit int) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, session_id, client_id, mode, post, subject, language, difficulty,
		        total, score, timed_out, started_at, finished_at
		 FROM quiz_results
		 WHERE client_id = $1
		 ORDER BY finished_at DESC
		 LIMIT $2`,
		clientID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var r Result
		var subject *string
		err := row.Scan(
			&r.ID,
			&r.SessionID,
			&r.ClientID,
			&r.Mode,
			&r.Post,
			&subject,
			&r.Language,
			&r.Difficulty,
			&r.Total,
			&r.Score,
			&r.TimedOut,
			&r.StartedAt,
			&r.FinishedAt,
		)
		if subject != nil {
			r.Subject = *subject
		}
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan results: %w", err)
	}
	return results, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
