// Package testdb provides isolated SQLite databases for package tests.
//
// Every TestDB lives in its own file under t.TempDir(), so tests never share
// state and the file is removed with the test.
//
//	func TestSomething(t *testing.T) {
//	    tdb := testdb.New(t, testdb.Fixture)
//	    tdb.MustExec("INSERT INTO owner (id, name) VALUES (1, 'ada')")
//	    // tdb.Conn, tdb.URL ...
//	}
package testdb

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/deppfellow/abaita/internal/database"
	"github.com/rs/zerolog"
)

// Fixture is a small schema covering the shapes the mapping layer cares
// about: a one-to-many pair with ON DELETE CASCADE, plain single-key
// tables, a composite key and a table without a primary key.
const Fixture = `
CREATE TABLE owner (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE pet (
	id       INTEGER PRIMARY KEY,
	owner_id INTEGER REFERENCES owner(id) ON DELETE CASCADE,
	name     TEXT,
	status   TEXT
);

CREATE TABLE item (
	id    INTEGER PRIMARY KEY,
	value TEXT
);

CREATE TABLE ticket (
	id     INTEGER PRIMARY KEY,
	status TEXT NOT NULL
);

CREATE TABLE abaita (
	date   TEXT    NOT NULL,
	time   TEXT    NOT NULL,
	badge  TEXT    NOT NULL,
	uscita BOOLEAN NOT NULL DEFAULT 0,
	raw    TEXT,
	PRIMARY KEY (date, time, badge)
);

CREATE TABLE audit_log (
	message TEXT
);
`

// TestDB is an isolated SQLite database.
type TestDB struct {
	Conn *database.Connection
	URL  string
	Path string
	t    *testing.T
}

var (
	counterMu sync.Mutex
	counter   int64
)

func uniqueName() string {
	counterMu.Lock()
	defer counterMu.Unlock()
	counter++
	return fmt.Sprintf("test_%d_%d.db", time.Now().UnixNano(), counter)
}

// New creates a database file, applies every ddl script and opens a
// connection to it. The connection is closed when the test ends.
func New(t *testing.T, ddl ...string) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), uniqueName())
	url := "sqlite:///" + path

	conn, err := database.Open(context.Background(), "testdb", url, database.Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("testdb: failed to open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	tdb := &TestDB{Conn: conn, URL: url, Path: path, t: t}
	for i, script := range ddl {
		if _, err := conn.DB().Exec(script); err != nil {
			t.Fatalf("testdb: ddl %d failed: %v", i+1, err)
		}
	}
	return tdb
}

// Ctx returns a context with a timeout suited to test operations.
func (tdb *TestDB) Ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	tdb.t.Cleanup(cancel)
	return ctx
}

// MustExec executes a statement and fails the test on error.
func (tdb *TestDB) MustExec(query string, args ...any) {
	tdb.t.Helper()
	if _, err := tdb.Conn.DB().Exec(query, args...); err != nil {
		tdb.t.Fatalf("testdb: exec failed: %v\nQuery: %s", err, query)
	}
}

// Count returns the number of rows of table matching where (may be empty).
func (tdb *TestDB) Count(table, where string, args ...any) int {
	tdb.t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := tdb.Conn.DB().QueryRow(query, args...).Scan(&n); err != nil {
		tdb.t.Fatalf("testdb: count failed: %v\nQuery: %s", err, query)
	}
	return n
}
