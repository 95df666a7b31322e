package maillog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStorage implements Storage on PostgreSQL via pgxpool.
// The schema ships as an embedded goose migration (see Migrations).
type PgStorage struct {
	pool *pgxpool.Pool
}

// NewPgStorage creates a Postgres-backed storage over an established pool.
func NewPgStorage(pool *pgxpool.Pool) (*PgStorage, error) {
	if pool == nil {
		return nil, errors.New("maillog: pgx pool is required")
	}
	return &PgStorage{pool: pool}, nil
}

const recordColumns = `id, recipients_to, recipients_cc, recipients_bcc, sender, subject,
	template, template_data, status, priority, attempts, max_attempts, message_id,
	scheduled_at, last_attempt_at, sent_at, failed_at, error_message, error_stack,
	user_id, metadata, created_at, updated_at`

// Create implements Storage.
func (s *PgStorage) Create(ctx context.Context, record *Record) (uuid.UUID, error) {
	if record == nil {
		return uuid.Nil, ErrNilRecord
	}

	record.applyDefaults(time.Now())

	if !record.Status.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidStatus, record.Status)
	}
	if !record.Priority.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidPriority, record.Priority)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_logs (
			id, recipients_to, recipients_cc, recipients_bcc, sender, subject,
			template, template_data, status, priority, attempts, max_attempts,
			message_id, scheduled_at, user_id, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		record.ID, record.To, record.Cc, record.Bcc, record.From, record.Subject,
		record.Template, record.TemplateData, record.Status, record.Priority,
		record.Attempts, record.MaxAttempts, record.MessageID, record.ScheduledAt,
		record.UserID, record.Metadata, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("maillog: failed to insert record: %w", err)
	}

	return record.ID, nil
}

// Get implements Storage.
func (s *PgStorage) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM email_logs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("maillog: query failed: %w", err)
	}

	rec, err := pgx.CollectOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("maillog: scan failed: %w", err)
	}
	return &rec, nil
}

// UpdateStatus implements Storage. The WHERE clause carries the terminal
// guard, so the transition check and the write are a single statement.
func (s *PgStorage) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, update StatusUpdate) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE email_logs SET
			status = $2,
			updated_at = now(),
			sent_at = CASE WHEN $2 = 'sent' AND sent_at IS NULL THEN now() ELSE sent_at END,
			failed_at = CASE WHEN $2 = 'failed' THEN now() ELSE failed_at END,
			message_id = CASE WHEN $2 = 'sent' THEN $3 ELSE message_id END,
			error_message = CASE WHEN $2 = 'failed' THEN $4 ELSE '' END,
			error_stack = CASE WHEN $2 = 'failed' THEN $5 ELSE '' END
		WHERE id = $1
		  AND status <> 'sent'
		  AND NOT (status = 'failed' AND attempts >= max_attempts AND $2::text IN ('pending', 'queued'))`,
		id, status, update.MessageID, update.ErrorMessage, update.ErrorStack,
	)
	if err != nil {
		return fmt.Errorf("maillog: failed to update status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing record from a terminal one.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: record %s", ErrInvalidTransition, id)
	}
	return nil
}

// IncrementAttempts implements Storage.
func (s *PgStorage) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE email_logs
		SET attempts = attempts + 1, last_attempt_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING attempts`, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrLogNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("maillog: failed to increment attempts: %w", err)
	}
	return attempts, nil
}

// ClaimRetry implements Storage. The conditional UPDATE is the whole claim:
// exactly one of any number of racing workers observes a row change.
func (s *PgStorage) ClaimRetry(ctx context.Context, id uuid.UUID, expectedAttempts int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE email_logs
		SET attempts = attempts + 1, last_attempt_at = now(), updated_at = now()
		WHERE id = $1
		  AND status = 'failed'
		  AND attempts = $2
		  AND attempts < max_attempts`,
		id, expectedAttempts,
	)
	if err != nil {
		return false, fmt.Errorf("maillog: failed to claim retry: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// ListByStatus implements Storage.
func (s *PgStorage) ListByStatus(ctx context.Context, status Status, limit int) ([]Record, error) {
	return s.list(ctx,
		`SELECT `+recordColumns+` FROM email_logs
		WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
		status, normalizeLimit(limit))
}

// ListByUser implements Storage.
func (s *PgStorage) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	return s.list(ctx,
		`SELECT `+recordColumns+` FROM email_logs
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, normalizeLimit(limit))
}

// ListByDateRange implements Storage.
func (s *PgStorage) ListByDateRange(ctx context.Context, from, to time.Time) ([]Record, error) {
	return s.list(ctx,
		`SELECT `+recordColumns+` FROM email_logs
		WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at DESC`,
		from, to)
}

// ListRetryable implements Storage.
func (s *PgStorage) ListRetryable(ctx context.Context, limit int) ([]Record, error) {
	return s.list(ctx,
		`SELECT `+recordColumns+` FROM email_logs
		WHERE status = 'failed' AND attempts < max_attempts
		ORDER BY last_attempt_at ASC NULLS FIRST
		LIMIT $1`,
		normalizeLimit(limit))
}

// ListPending implements Storage.
func (s *PgStorage) ListPending(ctx context.Context, limit int) ([]Record, error) {
	return s.list(ctx,
		`SELECT `+recordColumns+` FROM email_logs
		WHERE status IN ('pending', 'queued')
		  AND (scheduled_at IS NULL OR scheduled_at <= now())
		ORDER BY
			CASE priority
				WHEN 'urgent' THEN 3
				WHEN 'high' THEN 2
				WHEN 'normal' THEN 1
				ELSE 0
			END DESC,
			created_at ASC
		LIMIT $1`,
		normalizeLimit(limit))
}

// DeleteOlderThan implements Storage.
func (s *PgStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM email_logs WHERE created_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("maillog: failed to delete old records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats implements Storage.
func (s *PgStorage) Stats(ctx context.Context, from, to *time.Time) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'sent'),
			count(*) FILTER (WHERE status = 'failed'),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'queued')
		FROM email_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)`,
		from, to,
	).Scan(&stats.Total, &stats.Sent, &stats.Failed, &stats.Pending, &stats.Queued)
	if err != nil {
		return Stats{}, fmt.Errorf("maillog: failed to aggregate stats: %w", err)
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(stats.Total) * 100
	}
	return stats, nil
}

func (s *PgStorage) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("maillog: query failed: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("maillog: scan failed: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.To, &rec.Cc, &rec.Bcc, &rec.From, &rec.Subject,
		&rec.Template, &rec.TemplateData, &rec.Status, &rec.Priority,
		&rec.Attempts, &rec.MaxAttempts, &rec.MessageID,
		&rec.ScheduledAt, &rec.LastAttemptAt, &rec.SentAt, &rec.FailedAt,
		&rec.ErrorMessage, &rec.ErrorStack, &rec.UserID, &rec.Metadata,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

// normalizeLimit keeps LIMIT sane when callers pass zero or negatives.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
