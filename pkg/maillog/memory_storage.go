package maillog

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements Storage in memory for tests and local development.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record

	// Index for efficient status queries.
	byStatus map[Status][]uuid.UUID
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records:  make(map[uuid.UUID]*Record),
		byStatus: make(map[Status][]uuid.UUID),
	}
}

// Create implements Storage.
func (ms *MemoryStorage) Create(ctx context.Context, record *Record) (uuid.UUID, error) {
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

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.records[record.ID]; exists {
		return uuid.Nil, fmt.Errorf("maillog: record %s already exists", record.ID)
	}

	// Clone to prevent external mutation of stored state.
	stored := cloneRecord(record)
	ms.records[stored.ID] = stored
	ms.byStatus[stored.Status] = append(ms.byStatus[stored.Status], stored.ID)

	return stored.ID, nil
}

// Get implements Storage.
func (ms *MemoryStorage) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	rec, exists := ms.records[id]
	if !exists {
		return nil, ErrLogNotFound
	}
	return cloneRecord(rec), nil
}

// UpdateStatus implements Storage. Sent records reject every further
// transition. Exhausted failed records reject re-queueing, but the outcome
// of a final in-flight attempt (sent or failed) is still recordable,
// because ClaimRetry consumes the last attempt before the send happens.
func (ms *MemoryStorage) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, update StatusUpdate) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, exists := ms.records[id]
	if !exists {
		return ErrLogNotFound
	}

	if rec.Status == StatusSent {
		return fmt.Errorf("%w: record %s is sent", ErrInvalidTransition, id)
	}
	if rec.Terminal() && (status == StatusPending || status == StatusQueued) {
		return fmt.Errorf("%w: record %s has no attempts left", ErrInvalidTransition, id)
	}

	now := time.Now()
	prev := rec.Status
	rec.Status = status
	rec.UpdatedAt = now

	switch status {
	case StatusSent:
		if rec.SentAt == nil {
			rec.SentAt = &now
		}
		rec.MessageID = update.MessageID
		rec.ErrorMessage = ""
		rec.ErrorStack = ""
	case StatusFailed:
		rec.FailedAt = &now
		rec.ErrorMessage = update.ErrorMessage
		rec.ErrorStack = update.ErrorStack
	}

	if prev != status {
		ms.byStatus[prev] = slices.DeleteFunc(ms.byStatus[prev], func(v uuid.UUID) bool { return v == id })
		ms.byStatus[status] = append(ms.byStatus[status], id)
	}

	return nil
}

// IncrementAttempts implements Storage.
func (ms *MemoryStorage) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, exists := ms.records[id]
	if !exists {
		return 0, ErrLogNotFound
	}

	now := time.Now()
	rec.Attempts++
	rec.LastAttemptAt = &now
	rec.UpdatedAt = now

	return rec.Attempts, nil
}

// ClaimRetry implements Storage with a compare-and-swap on the attempt
// counter, mirroring the conditional UPDATE the Postgres store issues.
func (ms *MemoryStorage) ClaimRetry(ctx context.Context, id uuid.UUID, expectedAttempts int) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, exists := ms.records[id]
	if !exists {
		return false, ErrLogNotFound
	}

	if rec.Status != StatusFailed || rec.Attempts != expectedAttempts || rec.Attempts >= rec.MaxAttempts {
		return false, nil
	}

	now := time.Now()
	rec.Attempts++
	rec.LastAttemptAt = &now
	rec.UpdatedAt = now

	return true, nil
}

// ListByStatus implements Storage.
func (ms *MemoryStorage) ListByStatus(ctx context.Context, status Status, limit int) ([]Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]Record, 0, len(ms.byStatus[status]))
	for _, id := range ms.byStatus[status] {
		out = append(out, *cloneRecord(ms.records[id]))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// ListByUser implements Storage.
func (ms *MemoryStorage) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Record
	for _, rec := range ms.records {
		if rec.UserID == userID {
			out = append(out, *cloneRecord(rec))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// ListByDateRange implements Storage.
func (ms *MemoryStorage) ListByDateRange(ctx context.Context, from, to time.Time) ([]Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Record
	for _, rec := range ms.records {
		if !rec.CreatedAt.Before(from) && !rec.CreatedAt.After(to) {
			out = append(out, *cloneRecord(rec))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListRetryable implements Storage: failed records below the attempt
// ceiling, oldest last attempt first.
func (ms *MemoryStorage) ListRetryable(ctx context.Context, limit int) ([]Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Record
	for _, id := range ms.byStatus[StatusFailed] {
		rec := ms.records[id]
		if rec.Retryable() {
			out = append(out, *cloneRecord(rec))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return attemptTime(&out[i]).Before(attemptTime(&out[j]))
	})
	return truncate(out, limit), nil
}

// ListPending implements Storage: due pending/queued records, urgent first,
// oldest created first within a priority tier.
func (ms *MemoryStorage) ListPending(ctx context.Context, limit int) ([]Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	now := time.Now()
	var out []Record
	for _, status := range []Status{StatusPending, StatusQueued} {
		for _, id := range ms.byStatus[status] {
			rec := ms.records[id]
			if rec.DueAt(now) {
				out = append(out, *cloneRecord(rec))
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank(); ri != rj {
			return ri > rj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

// DeleteOlderThan implements Storage. Age-based, regardless of status.
func (ms *MemoryStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var deleted int64
	for id, rec := range ms.records {
		if !rec.CreatedAt.After(cutoff) {
			ms.byStatus[rec.Status] = slices.DeleteFunc(ms.byStatus[rec.Status], func(v uuid.UUID) bool { return v == id })
			delete(ms.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Stats implements Storage.
func (ms *MemoryStorage) Stats(ctx context.Context, from, to *time.Time) (Stats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var stats Stats
	for _, rec := range ms.records {
		if from != nil && rec.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && rec.CreatedAt.After(*to) {
			continue
		}

		stats.Total++
		switch rec.Status {
		case StatusSent:
			stats.Sent++
		case StatusFailed:
			stats.Failed++
		case StatusPending:
			stats.Pending++
		case StatusQueued:
			stats.Queued++
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(stats.Total) * 100
	}
	return stats, nil
}

func cloneRecord(rec *Record) *Record {
	clone := *rec
	clone.TemplateData = maps.Clone(rec.TemplateData)
	clone.Metadata = maps.Clone(rec.Metadata)
	clone.ScheduledAt = cloneTime(rec.ScheduledAt)
	clone.LastAttemptAt = cloneTime(rec.LastAttemptAt)
	clone.SentAt = cloneTime(rec.SentAt)
	clone.FailedAt = cloneTime(rec.FailedAt)
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// attemptTime falls back to creation time for records that failed without a
// recorded attempt timestamp, keeping ordering total.
func attemptTime(rec *Record) time.Time {
	if rec.LastAttemptAt != nil {
		return *rec.LastAttemptAt
	}
	return rec.CreatedAt
}

func truncate(records []Record, limit int) []Record {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
