package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"redline-go/internal/domain"
	"redline-go/internal/metrics"
)

// DeadLetterRepository implements store.DeadLetterRepository using PostgreSQL.
type DeadLetterRepository struct {
	db *DB
}

// NewDeadLetterRepository creates a new PostgreSQL-backed dead-letter repository.
func NewDeadLetterRepository(db *DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// Archive upserts a dead letter.
func (r *DeadLetterRepository) Archive(ctx context.Context, dl *domain.DeadLetter) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("postgres", "archive", time.Since(start).Seconds(), err) }()

	query := `
		INSERT INTO dead_letters (
			message_key, message_id, segment, payload, requeue_count, reason, archived_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			requeue_count = EXCLUDED.requeue_count,
			reason = EXCLUDED.reason,
			archived_at = EXCLUDED.archived_at
	`

	payload := []byte(dl.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	_, err = r.db.pool.Exec(ctx, query,
		dl.Key.String(),
		dl.Key.ID,
		dl.Key.Segment,
		payload,
		dl.RequeueCount,
		dl.Reason,
		dl.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive dead letter: %w", err)
	}

	return nil
}

// List retrieves dead letters matching the filter, newest first.
func (r *DeadLetterRepository) List(ctx context.Context, filter domain.DeadLetterFilter) ([]*domain.DeadLetter, error) {
	query := `
		SELECT message_id, segment, payload, requeue_count, reason, archived_at
		FROM dead_letters
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.Segment != "" {
		query += fmt.Sprintf(" AND segment = $%d", argNum)
		args = append(args, filter.Segment)
		argNum++
	}

	query += " ORDER BY archived_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	return scanDeadLetters(rows)
}

// Count returns the number of archived dead letters.
func (r *DeadLetterRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM dead_letters").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}

func scanDeadLetters(rows pgx.Rows) ([]*domain.DeadLetter, error) {
	var letters []*domain.DeadLetter

	for rows.Next() {
		var (
			dl      domain.DeadLetter
			payload []byte
		)
		err := rows.Scan(
			&dl.Key.ID,
			&dl.Key.Segment,
			&payload,
			&dl.RequeueCount,
			&dl.Reason,
			&dl.ArchivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		dl.Payload = payload
		letters = append(letters, &dl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return letters, nil
}
