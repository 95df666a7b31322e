// Package delivery orchestrates transactional email sending.
//
// The Service ties together a transport (SMTP pool or dev file sink), the
// durable delivery log, and the template registry. It validates input
// before anything is persisted, records every attempt, schedules future
// sends through the queued status, and replays failed records with
// exponential backoff.
//
// Send and SendBatch never return Go errors. Every outcome, including
// validation failures and relay errors, lands in a SendResult, so callers
// such as signup flows do not fail their own transaction because an email
// bounced. Batch processing fans out through async futures capped at
// MaxConcurrent, with a pause between chunks to stay friendly to relay
// rate limits.
//
// The package does not run its own scheduler. Hosts call ProcessPending
// and RetryFailed on a ticker of their choosing; ProcessingInterval in the
// Config is the advisory cadence.
package delivery
