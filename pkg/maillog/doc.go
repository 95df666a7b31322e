// Package maillog is the durable store of email delivery attempts.
//
// Every send produces a Record that tracks recipients, template, status,
// and attempt accounting. Records move through a small state machine:
//
//	queued  -> sent | failed   (scheduled records picked up once due)
//	pending -> sent | failed
//	failed  -> sent | failed   (while attempts < max_attempts)
//
// "sent" is terminal, and a failed record whose attempts reached the
// ceiling is terminal too; stores enforce both so no code path can revive
// a finished record. Two Storage implementations ship with the package:
// MemoryStorage for tests and local development, and PgStorage backed by
// PostgreSQL for production, with the schema migration embedded alongside.
//
// Retry claiming uses a conditional update (ClaimRetry) keyed on the
// attempt counter, so two schedulers racing over the same record cannot
// both consume the attempt.
package maillog
