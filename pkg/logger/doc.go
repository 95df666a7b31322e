// Package logger builds configured slog.Logger instances with sane defaults
// for development and production environments.
//
// The factory returns a standard *slog.Logger, so consumers depend only on
// log/slog and never on this package. Defaults are production-safe: JSON
// output at INFO level to stdout.
//
// # Usage
//
//	log := logger.New(logger.WithProduction("mailroom"))
//	log.Info("service started")
//
// Development preset switches to human-readable text output at DEBUG level:
//
//	log := logger.New(logger.WithDevelopment("mailroom"))
package logger
