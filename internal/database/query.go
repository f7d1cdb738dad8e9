package database

import (
	"context"
	"database/sql"
	"time"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Exec runs a statement on q. The query uses '?' markers and is rebound
// for the connection's dialect.
func (c *Connection) Exec(ctx context.Context, q Querier, query string, args ...any) (sql.Result, error) {
	query = Rebind(c.dialect, query)
	start := time.Now()
	res, err := q.ExecContext(ctx, query, args...)
	c.trace(query, args, start, err)
	return res, err
}

// Query runs a query on q. The query uses '?' markers.
func (c *Connection) Query(ctx context.Context, q Querier, query string, args ...any) (*sql.Rows, error) {
	query = Rebind(c.dialect, query)
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	c.trace(query, args, start, err)
	return rows, err
}

// QueryRow runs a query expected to return at most one row.
func (c *Connection) QueryRow(ctx context.Context, q Querier, query string, args ...any) *sql.Row {
	query = Rebind(c.dialect, query)
	start := time.Now()
	row := q.QueryRowContext(ctx, query, args...)
	c.trace(query, args, start, row.Err())
	return row
}

// Begin starts a transaction on the connection.
func (c *Connection) Begin(ctx context.Context) (*sql.Tx, error) {
	start := time.Now()
	tx, err := c.db.BeginTx(ctx, nil)
	c.trace("BEGIN", nil, start, err)
	return tx, err
}

func (c *Connection) trace(query string, args []any, start time.Time, err error) {
	elapsed := time.Since(start)

	if c.slow > 0 && elapsed >= c.slow {
		c.log.Warn().
			Str("sql", query).
			Dur("duration", elapsed).
			Msg("slow query")
	}

	if !c.traceSQL {
		return
	}

	event := c.log.Debug()
	if err != nil {
		event = c.log.Error().Err(err)
	}
	event.
		Str("sql", query).
		Interface("args", args).
		Dur("duration", elapsed).
		Msg("query")
}
