// Package mailer sends email through a pooled SMTP relay connection.
//
// The Mailer wraps gomail with connection pooling (lazy dial, capped
// concurrency, re-dial after a per-connection message cap) and client-side
// sliding-window rate limiting, so callers never need to re-implement
// throttling. Send never returns a Go error: every outcome is a Result,
// which lets batch and scheduled callers continue past individual failures
// without try/catch scaffolding at each call site.
//
// Test mode redirects every message to a single configured recipient and
// drops cc/bcc entirely, preventing real addresses from leaking out of
// non-production environments.
//
// DevMailer is a drop-in replacement for local development that writes
// each message to disk instead of talking to a relay.
package mailer
