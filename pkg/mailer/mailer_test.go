package mailer_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/pkg/ratelimit"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []fakeMessage
	sendErr  error
	closed   bool
}

type fakeMessage struct {
	from string
	to   []string
	body string
}

func (c *fakeConn) Send(from string, to []string, msg io.WriterTo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	c.messages = append(c.messages, fakeMessage{from: from, to: append([]string(nil), to...), body: buf.String()})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	dialErr error
	sendErr error
}

func (d *fakeDialer) Dial() (gomail.SendCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	conn := &fakeConn{sendErr: d.sendErr}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) allMessages() []fakeMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []fakeMessage
	for _, c := range d.conns {
		c.mu.Lock()
		out = append(out, c.messages...)
		c.mu.Unlock()
	}
	return out
}

func validConfig() mailer.Config {
	return mailer.Config{
		Host:          "smtp.example.com",
		Port:          587,
		Username:      "apikey",
		Password:      "secret",
		FromAddress:   "noreply@example.com",
		FromName:      "Example",
		PoolSize:      2,
		MaxMessages:   100,
		RatePerMinute: 1000,
		RatePerHour:   10000,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := mailer.New(mailer.Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, mailer.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "SMTP_USER is required")
}

func TestSendDeliversMessage(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	m, err := mailer.New(validConfig(), mailer.WithDialer(dialer))
	require.NoError(t, err)
	defer m.Close()

	res := m.Send(context.Background(), mailer.SendOptions{
		To:      []string{"alice@example.com"},
		Cc:      []string{"bob@example.com"},
		Subject: "Welcome",
		HTML:    "<h1>Hello</h1>",
		Text:    "Hello",
	})

	require.True(t, res.Success, "send failed: %s", res.Error)
	assert.NotEmpty(t, res.MessageID)
	assert.Contains(t, res.MessageID, "@example.com")

	msgs := dialer.allMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "noreply@example.com", msgs[0].from)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, msgs[0].to)
	assert.Contains(t, msgs[0].body, "Message-Id: <"+res.MessageID+">")
	assert.Contains(t, msgs[0].body, "Subject: Welcome")
}

func TestSendValidatesRecipients(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	m, err := mailer.New(validConfig(), mailer.WithDialer(dialer))
	require.NoError(t, err)
	defer m.Close()

	t.Run("no recipients", func(t *testing.T) {
		res := m.Send(context.Background(), mailer.SendOptions{Subject: "x"})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "at least one recipient")
	})

	t.Run("whitespace-only recipients", func(t *testing.T) {
		res := m.Send(context.Background(), mailer.SendOptions{To: []string{"  ", ""}})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "at least one recipient")
	})

	t.Run("malformed recipient", func(t *testing.T) {
		res := m.Send(context.Background(), mailer.SendOptions{To: []string{"not-an-email"}})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "invalid recipient address")
	})

	t.Run("malformed cc", func(t *testing.T) {
		res := m.Send(context.Background(), mailer.SendOptions{
			To: []string{"alice@example.com"},
			Cc: []string{"broken@"},
		})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "invalid cc address")
	})

	assert.Empty(t, dialer.allMessages(), "no message should reach the relay")
}

func TestSendTestModeRedirectsRecipients(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.TestMode = true
	cfg.TestRecipient = "qa@example.com"

	dialer := &fakeDialer{}
	m, err := mailer.New(cfg, mailer.WithDialer(dialer))
	require.NoError(t, err)
	defer m.Close()

	res := m.Send(context.Background(), mailer.SendOptions{
		To:      []string{"alice@example.com"},
		Cc:      []string{"bob@example.com"},
		Bcc:     []string{"carol@example.com"},
		Subject: "Test",
		HTML:    "<p>hi</p>",
	})
	require.True(t, res.Success, "send failed: %s", res.Error)

	msgs := dialer.allMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"qa@example.com"}, msgs[0].to)
	assert.NotContains(t, msgs[0].body, "alice@example.com")
	assert.NotContains(t, msgs[0].body, "carol@example.com")
}

func TestSendRelayFailure(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{sendErr: errors.New("relay rejected sender")}
	m, err := mailer.New(validConfig(), mailer.WithDialer(dialer))
	require.NoError(t, err)
	defer m.Close()

	res := m.Send(context.Background(), mailer.SendOptions{
		To:   []string{"alice@example.com"},
		HTML: "<p>hi</p>",
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "relay rejected sender")
	assert.Empty(t, res.MessageID)

	// The failing connection must have been closed, not pooled.
	require.Len(t, dialer.conns, 1)
	assert.True(t, dialer.conns[0].closed)
}

func TestSendDialFailure(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{dialErr: errors.New("connection refused")}
	m, err := mailer.New(validConfig(), mailer.WithDialer(dialer))
	require.NoError(t, err)
	defer m.Close()

	res := m.Send(context.Background(), mailer.SendOptions{
		To:   []string{"alice@example.com"},
		HTML: "<p>hi</p>",
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "failed to connect to relay")
}

func TestSendReusesPooledConnections(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	m, err := mailer.New(validConfig(), mailer.WithDialer(dialer))
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 5; i++ {
		res := m.Send(context.Background(), mailer.SendOptions{
			To:   []string{"alice@example.com"},
			HTML: "<p>hi</p>",
		})
		require.True(t, res.Success, "send %d failed: %s", i, res.Error)
	}

	// Sequential sends share a single connection.
	assert.Len(t, dialer.conns, 1)
	assert.Len(t, dialer.allMessages(), 5)
}

func TestSendRecyclesConnectionAfterMaxMessages(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.MaxMessages = 2

	dialer := &fakeDialer{}
	m, err := mailer.New(cfg, mailer.WithDialer(dialer))
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 5; i++ {
		res := m.Send(context.Background(), mailer.SendOptions{
			To:   []string{"alice@example.com"},
			HTML: "<p>hi</p>",
		})
		require.True(t, res.Success, "send %d failed: %s", i, res.Error)
	}

	// 5 messages at 2 per connection needs 3 dials.
	assert.Len(t, dialer.conns, 3)
	assert.True(t, dialer.conns[0].closed)
	assert.True(t, dialer.conns[1].closed)
}

func TestSendConcurrencyBoundedByPoolSize(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PoolSize = 3

	dialer := &fakeDialer{}
	m, err := mailer.New(cfg, mailer.WithDialer(dialer))
	require.NoError(t, err)
	defer m.Close()

	const n = 20
	var wg sync.WaitGroup
	results := make([]mailer.Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Send(context.Background(), mailer.SendOptions{
				To:   []string{"alice@example.com"},
				HTML: "<p>hi</p>",
			})
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.True(t, res.Success, "send %d failed: %s", i, res.Error)
	}
	assert.Len(t, dialer.allMessages(), n)
	assert.LessOrEqual(t, len(dialer.conns), cfg.PoolSize)
}

func TestSendRespectsRateLimit(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.RatePerMinute = 2
	cfg.RatePerHour = 10000

	dialer := &fakeDialer{}
	m, err := mailer.New(cfg, mailer.WithDialer(dialer))
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 2; i++ {
		res := m.Send(context.Background(), mailer.SendOptions{
			To:   []string{"alice@example.com"},
			HTML: "<p>hi</p>",
		})
		require.True(t, res.Success)
	}

	// The third send exceeds the per-minute window; a short deadline turns
	// the blocking wait into a context error.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := m.Send(ctx, mailer.SendOptions{
		To:   []string{"alice@example.com"},
		HTML: "<p>hi</p>",
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, context.DeadlineExceeded.Error())
	assert.Len(t, dialer.allMessages(), 2)
}

func TestSendAbortedWaitRefundsHourSlot(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	perMinute, err := ratelimit.NewSlidingWindow(store, 1, time.Minute)
	require.NoError(t, err)
	perHour, err := ratelimit.NewSlidingWindow(store, 10, time.Hour)
	require.NoError(t, err)

	dialer := &fakeDialer{}
	m, err := mailer.New(validConfig(),
		mailer.WithDialer(dialer),
		mailer.WithLimiters(perMinute, perHour))
	require.NoError(t, err)
	defer m.Close()

	res := m.Send(context.Background(), mailer.SendOptions{
		To:   []string{"alice@example.com"},
		HTML: "<p>hi</p>",
	})
	require.True(t, res.Success)

	// The minute window is now full; the abort must hand the already
	// consumed hour slot back.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res = m.Send(ctx, mailer.SendOptions{
		To:   []string{"alice@example.com"},
		HTML: "<p>hi</p>",
	})
	require.False(t, res.Success)

	count, err := store.CountInWindow(context.Background(), "smtp:hour", time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "aborted send must not consume hourly capacity")
}

func TestVerifyConnection(t *testing.T) {
	t.Parallel()

	t.Run("reachable relay", func(t *testing.T) {
		t.Parallel()
		dialer := &fakeDialer{}
		m, err := mailer.New(validConfig(), mailer.WithDialer(dialer))
		require.NoError(t, err)
		defer m.Close()

		assert.True(t, m.VerifyConnection(context.Background()))
		require.Len(t, dialer.conns, 1)
		assert.True(t, dialer.conns[0].closed)
	})

	t.Run("unreachable relay", func(t *testing.T) {
		t.Parallel()
		dialer := &fakeDialer{dialErr: errors.New("timeout")}
		m, err := mailer.New(validConfig(), mailer.WithDialer(dialer))
		require.NoError(t, err)
		defer m.Close()

		assert.False(t, m.VerifyConnection(context.Background()))
	})
}

func TestCloseIsIdempotentAndStopsSends(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	m, err := mailer.New(validConfig(), mailer.WithDialer(dialer))
	require.NoError(t, err)

	res := m.Send(context.Background(), mailer.SendOptions{
		To:   []string{"alice@example.com"},
		HTML: "<p>hi</p>",
	})
	require.True(t, res.Success)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	// Pooled connection was closed on shutdown.
	require.Len(t, dialer.conns, 1)
	assert.True(t, dialer.conns[0].closed)

	res = m.Send(context.Background(), mailer.SendOptions{
		To:   []string{"alice@example.com"},
		HTML: "<p>hi</p>",
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "closed")
	assert.False(t, m.VerifyConnection(context.Background()))
}
