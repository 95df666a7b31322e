// Package config loads configuration structs from environment variables.
//
// Structs declare their environment bindings with `env` tags; parsing is
// delegated to github.com/caarlos0/env. A .env file in the working directory
// is loaded once per process before the first parse, which keeps local
// development friction-free without affecting deployed environments where
// variables come from the orchestrator.
//
// Load parses on every call and returns a fresh value. Construct
// configuration once at startup and pass it explicitly to the components
// that need it; nothing in this package holds global state beyond the
// one-time .env read.
//
// # Usage
//
//	type SMTPConfig struct {
//	    Host string `env:"SMTP_HOST" envDefault:"localhost"`
//	    Port int    `env:"SMTP_PORT" envDefault:"587"`
//	    User string `env:"SMTP_USER,required"`
//	    Pass string `env:"SMTP_PASS,required"`
//	}
//
//	var cfg SMTPConfig
//	if err := config.Load(&cfg); err != nil {
//	    // handle error
//	}
package config
