package sql

import _ "embed"

// Schema is the full database schema, applied on every startup.
// All statements are idempotent (CREATE ... IF NOT EXISTS).
//
//go:embed schema.sql
var Schema string
