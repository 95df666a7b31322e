package mailer

import (
	"fmt"
	"regexp"
)

// Config holds SMTP relay and sending-policy configuration.
type Config struct {
	Host     string `env:"SMTP_HOST" envDefault:"localhost"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Secure   bool   `env:"SMTP_SECURE" envDefault:"false"` // implicit TLS instead of STARTTLS
	Username string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASS"`

	FromName    string `env:"MAIL_FROM_NAME" envDefault:""`
	FromAddress string `env:"MAIL_FROM_ADDRESS"`

	PoolSize    int `env:"SMTP_POOL_SIZE" envDefault:"5"`    // max concurrent relay connections
	MaxMessages int `env:"SMTP_MAX_MESSAGES" envDefault:"100"` // messages per connection before re-dial

	RatePerMinute int `env:"MAIL_RATE_PER_MINUTE" envDefault:"60"`
	RatePerHour   int `env:"MAIL_RATE_PER_HOUR" envDefault:"500"`

	// TestMode redirects every outbound message to TestRecipient.
	TestMode      bool   `env:"MAIL_TEST_MODE" envDefault:"false"`
	TestRecipient string `env:"MAIL_TEST_RECIPIENT"`
}

// emailRegex is a pragmatic address check, not an RFC 5322 parser.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// ValidEmail reports whether the address passes the package's format check.
func ValidEmail(addr string) bool {
	return emailRegex.MatchString(addr)
}

// Validate returns every configuration problem as a human-readable error.
// It never panics and never stops at the first problem, so operators see
// the full list of missing keys at once. The caller decides whether the
// result is fatal.
func (c Config) Validate() []error {
	var errs []error

	if c.Username == "" {
		errs = append(errs, fmt.Errorf("SMTP_USER is required"))
	}
	if c.Password == "" {
		errs = append(errs, fmt.Errorf("SMTP_PASS is required"))
	}
	if c.FromAddress == "" {
		errs = append(errs, fmt.Errorf("MAIL_FROM_ADDRESS is required"))
	} else if !ValidEmail(c.FromAddress) {
		errs = append(errs, fmt.Errorf("MAIL_FROM_ADDRESS %q is not a valid email address", c.FromAddress))
	}
	if c.TestMode {
		if c.TestRecipient == "" {
			errs = append(errs, fmt.Errorf("MAIL_TEST_RECIPIENT is required when MAIL_TEST_MODE is enabled"))
		} else if !ValidEmail(c.TestRecipient) {
			errs = append(errs, fmt.Errorf("MAIL_TEST_RECIPIENT %q is not a valid email address", c.TestRecipient))
		}
	}

	return errs
}
