package maillog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage is the persistence contract for delivery log records.
// Implementations must enforce the state machine: no transition out of
// "sent", and no re-queue of "failed" records once attempts reached the
// ceiling. A final in-flight attempt may still record its outcome.
type Storage interface {
	// Create persists a new record, applying defaults (status pending,
	// priority normal, attempts 0, max attempts 3) and returns its id.
	Create(ctx context.Context, record *Record) (uuid.UUID, error)

	// Get returns the record with the given id or ErrLogNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// UpdateStatus transitions the record and writes the associated fields:
	// sent_at and message id for StatusSent, failed_at and error fields for
	// StatusFailed. Returns ErrInvalidTransition for terminal records.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, update StatusUpdate) error

	// IncrementAttempts bumps the attempt counter and last_attempt_at,
	// returning the new count. Unconditional; prefer ClaimRetry when
	// concurrent schedulers may race over the same record.
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)

	// ClaimRetry atomically increments attempts from the expected value for
	// a failed, non-exhausted record. Returns false without error when the
	// record changed underneath the caller (another worker claimed it) or
	// is no longer retryable.
	ClaimRetry(ctx context.Context, id uuid.UUID, expectedAttempts int) (bool, error)

	// ListByStatus returns up to limit records in the given status, newest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Record, error)

	// ListByUser returns up to limit records associated with the user, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)

	// ListByDateRange returns records created within [from, to], newest first.
	ListByDateRange(ctx context.Context, from, to time.Time) ([]Record, error)

	// ListRetryable returns up to limit failed records with attempts below
	// the ceiling, ordered by last attempt time ascending (oldest first).
	ListRetryable(ctx context.Context, limit int) ([]Record, error)

	// ListPending returns up to limit pending or queued records whose
	// scheduled time is absent or due, ordered by priority (urgent first)
	// then creation time ascending.
	ListPending(ctx context.Context, limit int) ([]Record, error)

	// DeleteOlderThan removes all records created at or before the cutoff,
	// regardless of status, and returns the number deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats aggregates counts by status, optionally restricted to records
	// created within the given range. SuccessRate is sent/total*100, or 0
	// when no records match.
	Stats(ctx context.Context, from, to *time.Time) (Stats, error)
}
