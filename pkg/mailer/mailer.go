package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/dmitrymomot/mailroom/pkg/ratelimit"
)

// SendOptions describes a single outbound message.
type SendOptions struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Attachment is an in-memory file attached to a message.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// Result is the outcome of a send attempt. Success and Error are mutually
// exclusive; MessageID is set only on success.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Dialer opens relay connections. It is satisfied by gomail.Dialer and by
// test fakes.
type Dialer interface {
	Dial() (gomail.SendCloser, error)
}

// Mailer sends messages through a pool of relay connections.
type Mailer struct {
	cfg    Config
	dialer Dialer
	log    *slog.Logger

	perMinute ratelimit.Limiter
	perHour   ratelimit.Limiter
	store     *ratelimit.MemoryStore // owned; nil when limiters were injected

	sem chan struct{} // caps concurrent connections at PoolSize

	mu     sync.Mutex
	idle   []*pooledConn
	closed bool
}

type pooledConn struct {
	sc   gomail.SendCloser
	sent int
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Mailer) {
		if log != nil {
			m.log = log
		}
	}
}

// WithDialer injects a custom relay dialer, used by tests to substitute a
// fake relay.
func WithDialer(d Dialer) Option {
	return func(m *Mailer) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithLimiters injects pre-built rate limiters, e.g. backed by a shared store.
func WithLimiters(perMinute, perHour ratelimit.Limiter) Option {
	return func(m *Mailer) {
		if perMinute != nil && perHour != nil {
			m.perMinute = perMinute
			m.perHour = perHour
		}
	}
}

// New creates a Mailer, failing fast when required configuration is
// missing. The relay is not contacted until the first send or verify.
func New(cfg Config, opts ...Option) (*Mailer, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 5
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 100
	}

	m := &Mailer{
		cfg: cfg,
		log: slog.Default(),
		sem: make(chan struct{}, cfg.PoolSize),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.dialer == nil {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		d.SSL = cfg.Secure
		m.dialer = d
	}

	if m.perMinute == nil {
		store := ratelimit.NewMemoryStore()
		perMinute, err := ratelimit.NewSlidingWindow(store, cfg.RatePerMinute, time.Minute)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		perHour, err := ratelimit.NewSlidingWindow(store, cfg.RatePerHour, time.Hour)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		m.store = store
		m.perMinute = perMinute
		m.perHour = perHour
	}

	return m, nil
}

// Send delivers a single message. It never returns a Go error: validation,
// rate limiting, and relay failures all resolve to the Result.
//
// In test mode every message goes to the configured test recipient and
// cc/bcc are dropped, so no real address can leak from a test environment.
func (m *Mailer) Send(ctx context.Context, opts SendOptions) Result {
	to, cc, bcc, err := m.effectiveRecipients(opts)
	if err != nil {
		return Result{Error: err.Error()}
	}

	if err := m.waitForRateLimit(ctx); err != nil {
		return Result{Error: err.Error()}
	}

	conn, err := m.acquire(ctx)
	if err != nil {
		return Result{Error: err.Error()}
	}

	messageID := m.newMessageID()
	msg := m.buildMessage(messageID, to, cc, bcc, opts)

	if err := gomail.Send(conn.sc, msg); err != nil {
		// A failed connection is not returned to the pool.
		m.discard(conn)
		m.log.ErrorContext(ctx, "smtp send failed",
			slog.String("host", m.cfg.Host),
			slog.Any("error", err))
		return Result{Error: fmt.Sprintf("failed to send email: %v", err)}
	}

	conn.sent++
	m.release(conn)

	m.log.InfoContext(ctx, "email sent",
		slog.String("message_id", messageID),
		slog.Int("recipients", len(to)+len(cc)+len(bcc)))

	return Result{Success: true, MessageID: messageID}
}

// VerifyConnection performs a relay handshake independent of sending,
// for health checks.
func (m *Mailer) VerifyConnection(ctx context.Context) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	sc, err := m.dialer.Dial()
	if err != nil {
		m.log.WarnContext(ctx, "smtp verify failed",
			slog.String("host", m.cfg.Host),
			slog.Any("error", err))
		return false
	}
	_ = sc.Close()
	return true
}

// Close releases pooled connections. Safe to call multiple times.
func (m *Mailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, conn := range m.idle {
		_ = conn.sc.Close()
	}
	m.idle = nil

	if m.store != nil {
		_ = m.store.Close()
	}
	return nil
}

// effectiveRecipients validates and normalizes the recipient sets,
// applying the test-mode override.
func (m *Mailer) effectiveRecipients(opts SendOptions) (to, cc, bcc []string, err error) {
	to = normalizeAddresses(opts.To)
	if len(to) == 0 {
		return nil, nil, nil, fmt.Errorf("at least one recipient is required")
	}

	for _, addr := range to {
		if !ValidEmail(addr) {
			return nil, nil, nil, fmt.Errorf("invalid recipient address: %q", addr)
		}
	}

	cc = normalizeAddresses(opts.Cc)
	for _, addr := range cc {
		if !ValidEmail(addr) {
			return nil, nil, nil, fmt.Errorf("invalid cc address: %q", addr)
		}
	}
	bcc = normalizeAddresses(opts.Bcc)
	for _, addr := range bcc {
		if !ValidEmail(addr) {
			return nil, nil, nil, fmt.Errorf("invalid bcc address: %q", addr)
		}
	}

	if m.cfg.TestMode {
		return []string{m.cfg.TestRecipient}, nil, nil, nil
	}
	return to, cc, bcc, nil
}

// waitForRateLimit blocks until both windows admit the send or the context
// is cancelled. The two limiters use distinct keys because a store key
// holds a single timestamp list and pruning is window-relative.
func (m *Mailer) waitForRateLimit(ctx context.Context) error {
	if err := m.waitWindow(ctx, m.perHour, "smtp:hour"); err != nil {
		return err
	}
	if err := m.waitWindow(ctx, m.perMinute, "smtp:minute"); err != nil {
		// The hour slot was already consumed; give it back so an aborted
		// send does not count against hourly capacity. The parent context
		// is cancelled at this point, so the refund runs detached from it.
		if rerr := m.perHour.Refund(context.WithoutCancel(ctx), "smtp:hour"); rerr != nil {
			m.log.WarnContext(ctx, "failed to refund rate limit slot",
				slog.Any("error", rerr))
		}
		return err
	}
	return nil
}

func (m *Mailer) waitWindow(ctx context.Context, lim ratelimit.Limiter, key string) error {
	for {
		res, err := lim.Allow(ctx, key)
		if err != nil {
			return fmt.Errorf("rate limiter failure: %w", err)
		}
		if res.Allowed {
			return nil
		}

		wait := res.RetryAfter()
		m.log.DebugContext(ctx, "rate limit reached, waiting",
			slog.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// acquire takes a pool slot and returns a live connection, dialing lazily.
// Connections that served MaxMessages are recycled.
func (m *Mailer) acquire(ctx context.Context) (*pooledConn, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.sem
		return nil, ErrClosed
	}
	var conn *pooledConn
	if n := len(m.idle); n > 0 {
		conn = m.idle[n-1]
		m.idle = m.idle[:n-1]
	}
	m.mu.Unlock()

	if conn != nil && conn.sent >= m.cfg.MaxMessages {
		_ = conn.sc.Close()
		conn = nil
	}

	if conn == nil {
		sc, err := m.dialer.Dial()
		if err != nil {
			<-m.sem
			return nil, fmt.Errorf("failed to connect to relay %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
		}
		conn = &pooledConn{sc: sc}
	}

	return conn, nil
}

func (m *Mailer) release(conn *pooledConn) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.sc.Close()
		<-m.sem
		return
	}
	m.idle = append(m.idle, conn)
	m.mu.Unlock()
	<-m.sem
}

func (m *Mailer) discard(conn *pooledConn) {
	_ = conn.sc.Close()
	<-m.sem
}

func (m *Mailer) buildMessage(messageID string, to, cc, bcc []string, opts SendOptions) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.FromAddress, m.cfg.FromName)
	msg.SetHeader("To", to...)
	if len(cc) > 0 {
		msg.SetHeader("Cc", cc...)
	}
	if len(bcc) > 0 {
		msg.SetHeader("Bcc", bcc...)
	}
	msg.SetHeader("Subject", opts.Subject)
	msg.SetHeader("Message-Id", fmt.Sprintf("<%s>", messageID))

	// Multipart/alternative when both bodies are present; the HTML part
	// must come last so clients prefer it.
	if opts.Text != "" {
		msg.SetBody("text/plain", opts.Text)
		if opts.HTML != "" {
			msg.AddAlternative("text/html", opts.HTML)
		}
	} else {
		msg.SetBody("text/html", opts.HTML)
	}

	for _, att := range opts.Attachments {
		content := att.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if att.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {att.ContentType},
			}))
		}
		msg.Attach(att.Filename, settings...)
	}

	return msg
}

// newMessageID generates an RFC 5322 style message id scoped to the sender
// domain. SMTP relays do not return an id the way HTTP providers do, so the
// client mints one and stamps it on the message for log correlation.
func (m *Mailer) newMessageID() string {
	domain := m.cfg.Host
	if at := strings.LastIndex(m.cfg.FromAddress, "@"); at >= 0 {
		domain = m.cfg.FromAddress[at+1:]
	}
	return fmt.Sprintf("%s@%s", uuid.NewString(), domain)
}

func normalizeAddresses(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}
