package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mailroom/pkg/async"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/pkg/maillog"
	"github.com/dmitrymomot/mailroom/pkg/templates"
)

const (
	maxSubjectLength     = 200
	defaultRetryLimit    = 50
	defaultPendingLimit  = 100
	defaultRetentionDays = 90
)

// Transport delivers a rendered message. Satisfied by mailer.Mailer and
// mailer.DevMailer.
type Transport interface {
	Send(ctx context.Context, opts mailer.SendOptions) mailer.Result
	VerifyConnection(ctx context.Context) bool
	Close() error
}

// Email is the input to Send. Template and TemplateData replace raw bodies;
// rendering happens inside the service so retries can re-render from the
// persisted payload.
type Email struct {
	To           []string
	Cc           []string
	Bcc          []string
	Subject      string
	Template     string
	TemplateData map[string]any
	Priority     maillog.Priority
	ScheduledAt  *time.Time
	UserID       string
	Metadata     map[string]any
	MaxAttempts  int // 0 uses the configured default
}

// SendResult reports the outcome of one email. LogID is set whenever a log
// record was created, including for failures, so callers can trace the
// delivery afterwards.
type SendResult struct {
	Success   bool       `json:"success"`
	LogID     *uuid.UUID `json:"log_id,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Service orchestrates validation, logging, rendering, and transport.
type Service struct {
	cfg       Config
	transport Transport
	store     maillog.Storage
	registry  *templates.Registry
	log       *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source, used by scheduling tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New wires the service from its dependencies. Every collaborator is
// injected; the service owns none of them except for Close, which it
// forwards to the transport.
func New(cfg Config, transport Transport, store maillog.Storage, registry *templates.Registry, opts ...Option) (*Service, error) {
	if transport == nil {
		return nil, ErrTransportRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	cfg.applyDefaults()

	s := &Service{
		cfg:       cfg,
		transport: transport,
		store:     store,
		registry:  registry,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send validates, logs, renders, and delivers a single email. Validation
// happens before any persistence, so malformed input never produces a log
// record. A future ScheduledAt stores the record as queued and returns
// immediately; ProcessPending delivers it once due.
func (s *Service) Send(ctx context.Context, email Email) SendResult {
	renderer, err := s.validate(email)
	if err != nil {
		return SendResult{Error: err.Error()}
	}

	now := s.now()
	scheduled := email.ScheduledAt != nil && email.ScheduledAt.After(now)
	if scheduled && !s.cfg.EnableQueue {
		return SendResult{Error: "scheduled delivery is disabled"}
	}
	if scheduled && !s.cfg.EnableLogging {
		return SendResult{Error: "scheduled delivery requires logging to be enabled"}
	}

	var logID *uuid.UUID
	if s.cfg.EnableLogging {
		status := maillog.StatusPending
		if scheduled {
			status = maillog.StatusQueued
		}
		record := &maillog.Record{
			To:           maillog.JoinRecipients(email.To),
			Cc:           maillog.JoinRecipients(email.Cc),
			Bcc:          maillog.JoinRecipients(email.Bcc),
			From:         s.cfg.FromAddress,
			Subject:      email.Subject,
			Template:     email.Template,
			TemplateData: email.TemplateData,
			Status:       status,
			Priority:     email.Priority,
			MaxAttempts:  s.maxAttempts(email.MaxAttempts),
			ScheduledAt:  email.ScheduledAt,
			UserID:       email.UserID,
			Metadata:     email.Metadata,
		}
		id, err := s.store.Create(ctx, record)
		if err != nil {
			return SendResult{Error: fmt.Sprintf("failed to create delivery log: %v", err)}
		}
		logID = &id
	}

	if scheduled {
		s.log.InfoContext(ctx, "email queued for later delivery",
			slog.String("template", email.Template),
			slog.Time("scheduled_at", *email.ScheduledAt))
		return SendResult{Success: true, LogID: logID}
	}

	return s.deliver(ctx, logID, email, renderer)
}

// SendBatch delivers emails in chunks of MaxConcurrent, pausing ChunkDelay
// between chunks. Results are returned in input order and one email's
// failure never affects the others.
func (s *Service) SendBatch(ctx context.Context, emails []Email) []SendResult {
	results := make([]SendResult, 0, len(emails))

	for start := 0; start < len(emails); start += s.cfg.MaxConcurrent {
		if start > 0 && s.cfg.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				for range emails[start:] {
					results = append(results, SendResult{Error: ctx.Err().Error()})
				}
				return results
			case <-time.After(s.cfg.ChunkDelay):
			}
		}

		end := min(start+s.cfg.MaxConcurrent, len(emails))
		futures := make([]*async.Future[SendResult], 0, end-start)
		for _, email := range emails[start:end] {
			futures = append(futures, async.Async(ctx, email,
				func(ctx context.Context, e Email) (SendResult, error) {
					return s.Send(ctx, e), nil
				}))
		}

		for _, f := range futures {
			res, err := f.Await()
			// A future that short-circuited on a cancelled context carries
			// a zero result; the reason must still reach the caller.
			if err != nil && !res.Success && res.Error == "" {
				res.Error = err.Error()
			}
			results = append(results, res)
		}
	}

	return results
}

// RetryFailed replays failed records that have attempts left. Each record
// waits out its exponential backoff, is claimed with a compare-and-swap on
// the attempt counter so concurrent workers never double-send, then is
// re-rendered and re-sent. Returns the number delivered.
func (s *Service) RetryFailed(ctx context.Context, limit int) int {
	if !s.cfg.EnableRetry {
		return 0
	}
	if limit <= 0 {
		limit = defaultRetryLimit
	}

	records, err := s.store.ListRetryable(ctx, limit)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to list retryable emails", slog.Any("error", err))
		return 0
	}

	var sent int
	for i := range records {
		rec := &records[i]

		if err := s.waitForBackoff(ctx, rec); err != nil {
			return sent
		}

		claimed, err := s.store.ClaimRetry(ctx, rec.ID, rec.Attempts)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to claim retry",
				slog.String("log_id", rec.ID.String()), slog.Any("error", err))
			continue
		}
		if !claimed {
			// Another worker won the record or it became terminal.
			continue
		}

		if s.redeliver(ctx, rec) {
			sent++
		}
	}
	return sent
}

// ProcessPending delivers pending records and queued records whose
// scheduled time has arrived. Returns the number delivered.
func (s *Service) ProcessPending(ctx context.Context, limit int) int {
	if limit <= 0 {
		limit = defaultPendingLimit
	}

	records, err := s.store.ListPending(ctx, limit)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to list pending emails", slog.Any("error", err))
		return 0
	}

	var sent int
	for i := range records {
		if ctx.Err() != nil {
			return sent
		}
		rec := &records[i]

		res := s.sendRecord(ctx, rec)
		if res.Success {
			s.markSent(ctx, rec.ID, res.MessageID)
			sent++
			continue
		}

		if _, err := s.store.IncrementAttempts(ctx, rec.ID); err != nil {
			s.log.ErrorContext(ctx, "failed to increment attempts",
				slog.String("log_id", rec.ID.String()), slog.Any("error", err))
		}
		s.markFailed(ctx, rec.ID, res.Error)
	}
	return sent
}

// VerifyConnection reports transport health.
func (s *Service) VerifyConnection(ctx context.Context) bool {
	return s.transport.VerifyConnection(ctx)
}

// Stats aggregates delivery outcomes, optionally over a date range.
func (s *Service) Stats(ctx context.Context, from, to *time.Time) (maillog.Stats, error) {
	return s.store.Stats(ctx, from, to)
}

// CleanupOldLogs deletes records older than the given number of days,
// regardless of status, and returns the number removed. days <= 0 uses the
// 90-day default.
func (s *Service) CleanupOldLogs(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = defaultRetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -days)
	return s.store.DeleteOlderThan(ctx, cutoff)
}

// Close shuts down the transport.
func (s *Service) Close() error {
	return s.transport.Close()
}

// validate rejects malformed input before any side effect. It returns the
// resolved renderer so the send path does not look it up twice.
func (s *Service) validate(email Email) (templates.Renderer, error) {
	recipients := 0
	for _, addr := range email.To {
		if addr != "" {
			recipients++
		}
		if addr != "" && !mailer.ValidEmail(addr) {
			return nil, fmt.Errorf("invalid recipient address: %q", addr)
		}
	}
	if recipients == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	for _, addr := range email.Cc {
		if addr != "" && !mailer.ValidEmail(addr) {
			return nil, fmt.Errorf("invalid cc address: %q", addr)
		}
	}
	for _, addr := range email.Bcc {
		if addr != "" && !mailer.ValidEmail(addr) {
			return nil, fmt.Errorf("invalid bcc address: %q", addr)
		}
	}

	if email.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if utf8.RuneCountInString(email.Subject) > maxSubjectLength {
		return nil, fmt.Errorf("subject exceeds %d characters", maxSubjectLength)
	}

	if email.Priority != "" && !email.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority: %q", email.Priority)
	}

	renderer, err := s.registry.Get(email.Template)
	if err != nil {
		return nil, err
	}
	if err := renderer.Validate(email.TemplateData); err != nil {
		return nil, err
	}
	return renderer, nil
}

// deliver renders and sends an already-validated email, then records the
// outcome. Storage failures after a successful relay handoff do not flip
// the result: the message is out the door.
func (s *Service) deliver(ctx context.Context, logID *uuid.UUID, email Email, renderer templates.Renderer) SendResult {
	html, text, err := renderer.Render(email.TemplateData)
	if err != nil {
		msg := fmt.Sprintf("failed to render template %q: %v", email.Template, err)
		if logID != nil {
			s.markFailed(ctx, *logID, msg)
		}
		return SendResult{LogID: logID, Error: msg}
	}

	res := s.transport.Send(ctx, mailer.SendOptions{
		To:      email.To,
		Cc:      email.Cc,
		Bcc:     email.Bcc,
		Subject: email.Subject,
		HTML:    html,
		Text:    text,
	})

	if !res.Success {
		if logID != nil {
			if _, err := s.store.IncrementAttempts(ctx, *logID); err != nil {
				s.log.ErrorContext(ctx, "failed to increment attempts",
					slog.String("log_id", logID.String()), slog.Any("error", err))
			}
			s.markFailed(ctx, *logID, res.Error)
		}
		return SendResult{LogID: logID, Error: res.Error}
	}

	if logID != nil {
		s.markSent(ctx, *logID, res.MessageID)
	}
	return SendResult{Success: true, LogID: logID, MessageID: res.MessageID}
}

// sendRecord re-renders a persisted record and pushes it through the
// transport. Used by the pending and retry paths.
func (s *Service) sendRecord(ctx context.Context, rec *maillog.Record) mailer.Result {
	renderer, err := s.registry.Get(rec.Template)
	if err != nil {
		return mailer.Result{Error: err.Error()}
	}
	html, text, err := renderer.Render(rec.TemplateData)
	if err != nil {
		return mailer.Result{Error: fmt.Sprintf("failed to render template %q: %v", rec.Template, err)}
	}

	return s.transport.Send(ctx, mailer.SendOptions{
		To:      maillog.SplitRecipients(rec.To),
		Cc:      maillog.SplitRecipients(rec.Cc),
		Bcc:     maillog.SplitRecipients(rec.Bcc),
		Subject: rec.Subject,
		HTML:    html,
		Text:    text,
	})
}

// redeliver sends a claimed retry record and writes the final status.
// ClaimRetry already consumed the attempt, so a failure here only updates
// status and error fields.
func (s *Service) redeliver(ctx context.Context, rec *maillog.Record) bool {
	res := s.sendRecord(ctx, rec)
	if res.Success {
		s.markSent(ctx, rec.ID, res.MessageID)
		s.log.InfoContext(ctx, "retry delivered",
			slog.String("log_id", rec.ID.String()),
			slog.Int("attempt", rec.Attempts+1))
		return true
	}
	s.markFailed(ctx, rec.ID, res.Error)
	return false
}

// waitForBackoff sleeps out the remaining exponential backoff for a record,
// returning early on context cancellation. The delay grows as
// RetryDelay * Multiplier^attempts, measured from the last attempt.
func (s *Service) waitForBackoff(ctx context.Context, rec *maillog.Record) error {
	if rec.LastAttemptAt == nil {
		return ctx.Err()
	}

	backoff := time.Duration(float64(s.cfg.RetryDelay) * math.Pow(s.cfg.BackoffMultiplier, float64(rec.Attempts)))
	wait := time.Until(rec.LastAttemptAt.Add(backoff))
	if wait <= 0 {
		return ctx.Err()
	}

	s.log.DebugContext(ctx, "waiting out retry backoff",
		slog.String("log_id", rec.ID.String()),
		slog.Duration("wait", wait))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (s *Service) maxAttempts(override int) int {
	if override > 0 {
		return override
	}
	return s.cfg.MaxAttempts
}

func (s *Service) markSent(ctx context.Context, id uuid.UUID, messageID string) {
	update := maillog.StatusUpdate{}
	if s.cfg.EnableTracking {
		update.MessageID = messageID
	}
	if err := s.store.UpdateStatus(ctx, id, maillog.StatusSent, update); err != nil {
		s.log.ErrorContext(ctx, "failed to mark email sent",
			slog.String("log_id", id.String()), slog.Any("error", err))
	}
}

func (s *Service) markFailed(ctx context.Context, id uuid.UUID, errMsg string) {
	err := s.store.UpdateStatus(ctx, id, maillog.StatusFailed, maillog.StatusUpdate{
		ErrorMessage: errMsg,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to mark email failed",
			slog.String("log_id", id.String()), slog.Any("error", err))
	}
}
