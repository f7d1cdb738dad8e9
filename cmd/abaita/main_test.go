package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/deppfellow/abaita/internal/config"
	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/testing/testdb"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	tdb  *testdb.TestDB
	base []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, key := range []string{
		"ABAITA_DATABASE__ENDPOINT",
		"ABAITA_SERVER__ADDRESS",
		"ABAITA_SERVER__USER",
		"ABAITA_USER__BADGE",
		"ABAITA_WHITELIST__VALUES",
	} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	tdb := testdb.New(t)
	return &harness{
		tdb: tdb,
		base: []string{
			"--config", filepath.Join(dir, "missing.rc"),
			"--log", filepath.Join(dir, "abaita.log"),
			"-d", tdb.URL,
		},
	}
}

func (h *harness) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append(append([]string{}, h.base...), args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) migrated(t *testing.T) *harness {
	t.Helper()
	_, err := h.run("migrate")
	require.NoError(t, err)
	return h
}

func TestOverrides(t *testing.T) {
	g := &globalFlags{database: "sqlite:///x.db", address: "ftp.local", user: "u", logFile: "-"}

	cfg := config.Default()
	cfg.Server.Password = "kept"
	cfg.Observability = config.DefaultObservabilityConfig()
	for _, o := range g.overrides() {
		o(cfg)
	}

	assert.Equal(t, "sqlite:///x.db", cfg.Database.Endpoint)
	assert.Equal(t, "ftp.local", cfg.Server.Address)
	assert.Equal(t, "u", cfg.Server.User)
	assert.Equal(t, "kept", cfg.Server.Password)
	assert.Equal(t, "btransaction.loc", cfg.Server.Filename)
	assert.Equal(t, "-", cfg.Observability.Logging.File)
}

func TestMigrate(t *testing.T) {
	h := newHarness(t).migrated(t)
	assert.Equal(t, 0, h.tdb.Count("abaita", ""))

	// Running it again is a no-op.
	_, err := h.run("migrate")
	require.NoError(t, err)
}

func TestPrint(t *testing.T) {
	h := newHarness(t).migrated(t)
	h.tdb.MustExec(`INSERT INTO abaita (date, time, badge, uscita, raw) VALUES
		('2024-03-01', '08:10:00', 'ABC123', 0, 'r1'),
		('2024-03-01', '12:31:00', 'ABC123', 1, 'r2'),
		('2024-03-01', '13:29:00', 'ABC123', 0, 'r3'),
		('2024-03-01', '17:45:00', 'ABC123', 1, 'r4')`)

	out, err := h.run("print", "ABC123", "-a", "-M")
	require.NoError(t, err)
	assert.Equal(t, "[2024-03-01]\n"+
		"2024-03-01 08:10:00\n"+
		"2024-03-01 12:31:00\n"+
		"2024-03-01 13:29:00\n"+
		"2024-03-01 17:45:00\n"+
		"Ore sgobbate: 8:37:00\n"+
		"Ore sgobbate secondo maw: 8:00:00\n\n", out)

	out, err = h.run("print", "ABC123", "--all", "-m")
	require.NoError(t, err)
	assert.Contains(t, out, "e 2024-03-01 08:10:00\t=>\t2024-03-01 08:30:00\n")
	assert.Contains(t, out, "u 2024-03-01 17:45:00\t=>\t2024-03-01 17:30:00\n")
}

func TestPrint_BadgeFromConfig(t *testing.T) {
	h := newHarness(t).migrated(t)
	t.Setenv("ABAITA_USER__BADGE", "ABC123")
	h.tdb.MustExec(`INSERT INTO abaita (date, time, badge, uscita, raw) VALUES ('2024-03-01', '08:10:00', 'ABC123', 0, 'r1')`)

	out, err := h.run("print", "-a")
	require.NoError(t, err)
	assert.Contains(t, out, "[2024-03-01]\n2024-03-01 08:10:00\nWARNING: non hai timbrato, sciocco!\n")
}

func TestPrint_Errors(t *testing.T) {
	h := newHarness(t).migrated(t)

	_, err := h.run("print", "-a")
	assert.ErrorContains(t, err, "no badge given")

	_, err = h.run("print", "ABC123", "-m", "-M")
	assert.Error(t, err)
}

func TestPrint_NotMigrated(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("print", "ABC123")
	assert.ErrorIs(t, err, errs.ErrUnknownTable)
}

func TestInspect(t *testing.T) {
	h := newHarness(t).migrated(t)

	out, err := h.run("inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "TABLE: abaita\n")
	assert.Contains(t, out, "RELATIONSHIPS: abaita\n")
	assert.NotContains(t, out, "schema_version")

	out, err = h.run("inspect", "abaita", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "abaita"`)
	assert.Contains(t, out, `"primary_key": [`)

	_, err = h.run("inspect", "nope")
	assert.ErrorIs(t, err, errs.ErrUnknownTable)
}

func TestScrape_RequiresFeedSettings(t *testing.T) {
	h := newHarness(t).migrated(t)

	_, err := h.run("scrape", "-b", "ABC123")
	assert.ErrorContains(t, err, "server.address is required")
}

func TestScrape_RequiresBadges(t *testing.T) {
	h := newHarness(t).migrated(t)
	h.base = append(h.base, "-a", "127.0.0.1:1", "-u", "anonymous")

	_, err := h.run("scrape")
	assert.ErrorContains(t, err, "no badge to scrape")
}

func TestScrape_Unreachable(t *testing.T) {
	h := newHarness(t).migrated(t)
	h.base = append(h.base, "-a", "127.0.0.1:1", "-u", "anonymous")

	_, err := h.run("scrape", "-b", "ABC123")
	assert.Error(t, err)
	assert.Equal(t, 0, h.tdb.Count("abaita", ""))
}

func TestErrorLine(t *testing.T) {
	assert.Equal(t, "abaita: print: boom", errorLine(fmt.Errorf("print: %w", errors.New("boom"))))

	dup := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}
	err := fmt.Errorf("scrape: %w", errs.NewPersistenceError("commit", "abaita", dup))
	line := errorLine(err)
	assert.Contains(t, line, "abaita: A record with this identifier already exists [RECORD_ALREADY_EXISTS]: ")
	assert.Contains(t, line, "scrape: activerecord: commit abaita")
}
