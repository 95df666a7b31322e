package maillog

import "embed"

// Migrations holds the email_logs schema, applied via pg.Migrate with
// directory "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS
