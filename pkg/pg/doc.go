// Package pg bootstraps PostgreSQL connectivity for the delivery core.
//
// It wraps pgxpool with retrying connection setup, exposes a healthcheck
// closure for host applications, and applies goose migrations from an
// embedded filesystem so the email log schema ships with the module.
package pg
