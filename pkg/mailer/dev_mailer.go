package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DevMailer writes messages to a local directory instead of sending them.
// Each message produces an .html file with the rendered body and a .json
// sidecar with the envelope, so templates can be previewed in a browser
// during development.
type DevMailer struct {
	dir string
	log *slog.Logger
}

type devEnvelope struct {
	MessageID string    `json:"message_id"`
	To        []string  `json:"to"`
	Cc        []string  `json:"cc,omitempty"`
	Bcc       []string  `json:"bcc,omitempty"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// NewDevMailer creates a DevMailer that stores messages under dir,
// creating the directory when missing.
func NewDevMailer(dir string, log *slog.Logger) (*DevMailer, error) {
	if dir == "" {
		dir = "./.emails"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create email output directory %s: %w", dir, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &DevMailer{dir: dir, log: log}, nil
}

// Send writes the message to disk and reports success. The Result contract
// matches Mailer.Send so the two are interchangeable behind the same
// interface.
func (d *DevMailer) Send(ctx context.Context, opts SendOptions) Result {
	to := normalizeAddresses(opts.To)
	if len(to) == 0 {
		return Result{Error: "at least one recipient is required"}
	}

	messageID := uuid.NewString()
	base := fmt.Sprintf("%s_%s", time.Now().Format("20060102-150405"), messageID[:8])

	htmlPath := filepath.Join(d.dir, base+".html")
	if err := os.WriteFile(htmlPath, []byte(opts.HTML), 0o644); err != nil {
		return Result{Error: fmt.Sprintf("failed to write email body: %v", err)}
	}

	env := devEnvelope{
		MessageID: messageID,
		To:        to,
		Cc:        normalizeAddresses(opts.Cc),
		Bcc:       normalizeAddresses(opts.Bcc),
		Subject:   opts.Subject,
		Text:      opts.Text,
		SentAt:    time.Now().UTC(),
	}
	meta, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to encode email metadata: %v", err)}
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return Result{Error: fmt.Sprintf("failed to write email metadata: %v", err)}
	}

	d.log.InfoContext(ctx, "email written to disk",
		slog.String("message_id", messageID),
		slog.String("file", htmlPath))

	return Result{Success: true, MessageID: messageID}
}

// VerifyConnection reports whether the output directory is writable.
func (d *DevMailer) VerifyConnection(ctx context.Context) bool {
	probe := filepath.Join(d.dir, ".probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}

// Close is a no-op; DevMailer holds no connections.
func (d *DevMailer) Close() error { return nil }
