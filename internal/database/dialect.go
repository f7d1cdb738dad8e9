package database

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Dialect renders the few SQL fragments that differ between backends.
type Dialect interface {
	Name() string

	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// Quote quotes an identifier.
	Quote(ident string) string
}

type postgresDialect struct{}

func (postgresDialect) Name() string              { return DialectPostgres }
func (postgresDialect) Placeholder(n int) string  { return "$" + strconv.Itoa(n) }
func (postgresDialect) Quote(ident string) string { return quoteIdent(ident) }

type sqliteDialect struct{}

func (sqliteDialect) Name() string              { return DialectSQLite }
func (sqliteDialect) Placeholder(int) string    { return "?" }
func (sqliteDialect) Quote(ident string) string { return quoteIdent(ident) }

// LookupDialect returns the dialect registered under name.
func LookupDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case DialectPostgres, "postgresql", "pgx":
		return postgresDialect{}, nil
	case DialectSQLite, "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", name)
	}
}

// Rebind rewrites '?' bind markers into the dialect's placeholders.
// Markers inside single-quoted literals and double-quoted identifiers are
// left alone.
func Rebind(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '?':
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
