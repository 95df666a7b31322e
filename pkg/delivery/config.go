package delivery

import "time"

// Config holds delivery policy. All values have working defaults so a
// zero-configured environment still behaves sensibly.
type Config struct {
	// FromAddress is recorded as the sender on every log record. The
	// transport stamps the same configured address on the outgoing message.
	FromAddress string `env:"MAIL_FROM_ADDRESS"`

	// MaxAttempts is the per-message attempt ceiling, overridable per email.
	MaxAttempts int `env:"MAIL_MAX_ATTEMPTS" envDefault:"3"`

	// RetryDelay is the base backoff; attempt n waits RetryDelay * Multiplier^n.
	RetryDelay        time.Duration `env:"MAIL_RETRY_DELAY" envDefault:"60s"`
	BackoffMultiplier float64       `env:"MAIL_BACKOFF_MULTIPLIER" envDefault:"2.0"`

	// MaxConcurrent caps batch fan-out; batches are processed in chunks of
	// this size with ChunkDelay between chunks.
	MaxConcurrent int           `env:"MAIL_MAX_CONCURRENT" envDefault:"5"`
	ChunkDelay    time.Duration `env:"MAIL_BATCH_CHUNK_DELAY" envDefault:"1s"`

	// ProcessingInterval is the advisory cadence for hosts that drive
	// ProcessPending and RetryFailed on a ticker.
	ProcessingInterval time.Duration `env:"MAIL_PROCESSING_INTERVAL" envDefault:"60s"`

	// EnableQueue allows future-scheduled sends; when off, a scheduled
	// email is rejected instead of silently sent early.
	EnableQueue bool `env:"MAIL_ENABLE_QUEUE" envDefault:"true"`

	// EnableLogging persists a log record per send. Scheduling and retry
	// both depend on it.
	EnableLogging bool `env:"MAIL_ENABLE_LOGGING" envDefault:"true"`

	// EnableRetry allows RetryFailed to replay failed records.
	EnableRetry bool `env:"MAIL_ENABLE_RETRY" envDefault:"true"`

	// EnableTracking stores relay message ids on sent records for
	// cross-referencing with provider logs.
	EnableTracking bool `env:"MAIL_ENABLE_TRACKING" envDefault:"true"`
}

// applyDefaults fills zero values for configs built in code rather than
// parsed from the environment.
func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Minute
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 2.0
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.ChunkDelay < 0 {
		c.ChunkDelay = time.Second
	}
	if c.ProcessingInterval <= 0 {
		c.ProcessingInterval = time.Minute
	}
}
