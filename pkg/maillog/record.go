package maillog

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the delivery state of a log record.
type Status string

const (
	StatusPending Status = "pending"
	StatusQueued  Status = "queued"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Valid checks if the status is part of the state machine.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Priority determines processing order for pending records.
// It does not affect retry semantics.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid checks if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank returns the numeric processing rank; higher processes first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// Record is the unit of durable delivery state.
// Recipient lists are stored as comma-delimited strings; order is preserved
// for display only.
type Record struct {
	ID            uuid.UUID      `json:"id"`
	To            string         `json:"to"`
	Cc            string         `json:"cc,omitempty"`
	Bcc           string         `json:"bcc,omitempty"`
	From          string         `json:"from,omitempty"`
	Subject       string         `json:"subject"`
	Template      string         `json:"template"`
	TemplateData  map[string]any `json:"template_data,omitempty"`
	Status        Status         `json:"status"`
	Priority      Priority       `json:"priority"`
	Attempts      int            `json:"attempts"`
	MaxAttempts   int            `json:"max_attempts"`
	MessageID     string         `json:"message_id,omitempty"`
	ScheduledAt   *time.Time     `json:"scheduled_at,omitempty"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	FailedAt      *time.Time     `json:"failed_at,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ErrorStack    string         `json:"error_stack,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Terminal reports whether the record is out of delivery attempts:
// sent, or failed with the attempt ceiling reached. A terminal failed
// record is never claimed for retry again.
func (r *Record) Terminal() bool {
	if r.Status == StatusSent {
		return true
	}
	return r.Status == StatusFailed && r.Attempts >= r.MaxAttempts
}

// Retryable reports whether the record is a retry candidate.
func (r *Record) Retryable() bool {
	return r.Status == StatusFailed && r.Attempts < r.MaxAttempts
}

// DueAt reports whether the record is eligible for dispatch at the given time.
func (r *Record) DueAt(now time.Time) bool {
	return r.ScheduledAt == nil || !r.ScheduledAt.After(now)
}

// StatusUpdate carries the fields written alongside a status transition.
type StatusUpdate struct {
	MessageID    string
	ErrorMessage string
	ErrorStack   string
}

// Stats summarizes delivery outcomes, optionally over a date range.
type Stats struct {
	Total       int64   `json:"total"`
	Sent        int64   `json:"sent"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	Queued      int64   `json:"queued"`
	SuccessRate float64 `json:"success_rate"`
}

// JoinRecipients normalizes an address list into the stored comma-delimited
// form, dropping empty entries and preserving order.
func JoinRecipients(addrs []string) string {
	clean := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a != "" {
			clean = append(clean, a)
		}
	}
	return strings.Join(clean, ",")
}

// SplitRecipients reverses JoinRecipients. An empty input yields nil.
func SplitRecipients(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}

// applyDefaults fills zero-valued fields before persistence.
func (r *Record) applyDefaults(now time.Time) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.Priority == "" {
		r.Priority = PriorityNormal
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}
