// Package sqlerr specifically handles database driver errors.
//
// It parses the error codes of the PostgreSQL (pgx) and SQLite drivers,
// normalizes them into a common Code, and renders user-friendly messages
// (e.g. converting a "unique violation" into "A record with this
// identifier already exists").
package sqlerr
