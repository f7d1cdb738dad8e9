package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/deppfellow/abaita/internal/database"
	"github.com/deppfellow/abaita/internal/repository"
	"github.com/deppfellow/abaita/internal/service"
	"github.com/deppfellow/abaita/internal/testing/testdb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFeed struct {
	data []byte
	err  error
}

func (f *staticFeed) Fetch(context.Context) ([]byte, error) {
	return f.data, f.err
}

func feedLine(ts string, exit int, badge string) string {
	return fmt.Sprintf("000000001%s%d %s 42 0", ts, exit, badge)
}

func feedOf(lines ...string) *staticFeed {
	return &staticFeed{data: []byte(strings.Join(append([]string{"HEADER"}, lines...), "\n"))}
}

type fixture struct {
	tdb     *testdb.TestDB
	punches *repository.PunchRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	tdb := testdb.New(t)
	logger := zerolog.Nop()
	require.NoError(t, database.Migrate(tdb.Ctx(), &logger, tdb.URL))

	repos, err := repository.NewRepositories(tdb.Ctx(), tdb.Registry("main"), "")
	require.NoError(t, err)

	// Stored before the scrape runs.
	tdb.MustExec(`INSERT INTO abaita (date, time, badge, uscita, raw) VALUES ('2024-03-01', '08:10:00', 'ABC123', 0, 'old')`)
	return &fixture{tdb: tdb, punches: repos.Punches}
}

func (f *fixture) service(feed service.FeedSource) *service.AttendanceService {
	logger := zerolog.Nop()
	return service.NewAttendanceService(&logger, f.punches, feed, nil)
}

func TestScrape(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	svc := f.service(feedOf(
		feedLine("20240301081000", 0, "ABC123000"),
		feedLine("20240301123100", 1, "ABC123000"),
		feedLine("20240301132900", 0, "ABC123000"),
		feedLine("20240301174500", 1, "ABC123000"),
		feedLine("20240301080000", 0, "XYZ999000"),
	))

	summary, err := svc.Scrape(ctx, []string{"ABC123"})
	require.NoError(t, err)
	assert.Equal(t, service.ScrapeSummary{Found: 4, Stored: 1, Inserted: 3}, summary)
	assert.Equal(t, 4, f.tdb.Count("abaita", "badge = 'ABC123'"))
	assert.Equal(t, 0, f.tdb.Count("abaita", "badge = 'XYZ999'"))
	assert.Equal(t, 2, f.tdb.Count("abaita", "uscita = 1"))

	// Scraping the same feed again stores nothing new.
	summary, err = svc.Scrape(ctx, []string{"ABC123"})
	require.NoError(t, err)
	assert.Equal(t, service.ScrapeSummary{Found: 4, Stored: 4}, summary)
	assert.Equal(t, 4, f.tdb.Count("abaita", ""))
}

func TestScrape_InvalidRowsAreSkipped(t *testing.T) {
	f := setup(t)

	svc := f.service(feedOf(
		feedLine("20240302080000", 0, "AB-123000"),
		feedLine("20240302080000", 0, "ABC123000"),
	))

	summary, err := svc.Scrape(context.Background(), []string{"ABC123", "AB-123"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 0, f.tdb.Count("abaita", "badge = 'AB-123'"))
}

func TestScrape_RejectedRowsAreReported(t *testing.T) {
	f := setup(t)
	f.tdb.MustExec(`CREATE TRIGGER reject_badge BEFORE INSERT ON abaita
		WHEN NEW.badge = 'BAD999'
		BEGIN SELECT RAISE(ABORT, 'badge rejected'); END`)

	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	svc := service.NewAttendanceService(&logger, f.punches, feedOf(
		feedLine("20240302080000", 0, "BAD999000"),
		feedLine("20240302080000", 0, "ABC123000"),
	), nil)

	summary, err := svc.Scrape(context.Background(), []string{"ABC123", "BAD999"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 0, f.tdb.Count("abaita", "badge = 'BAD999'"))

	out := logs.String()
	assert.Contains(t, out, `"message":"punch not stored"`)
	assert.Contains(t, out, `"code":"RECORD_ERROR"`)
	assert.Contains(t, out, `"reason":"An error occurred while processing your request"`)
}

func TestScrape_EmptyFeed(t *testing.T) {
	f := setup(t)

	summary, err := f.service(feedOf()).Scrape(context.Background(), []string{"ABC123"})
	require.NoError(t, err)
	assert.Equal(t, service.ScrapeSummary{}, summary)
}

func TestScrape_FeedError(t *testing.T) {
	f := setup(t)
	boom := errors.New("ftp down")

	_, err := f.service(&staticFeed{err: boom}).Scrape(context.Background(), []string{"ABC123"})
	assert.ErrorIs(t, err, boom)
}

func TestReport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	svc := f.service(feedOf(
		feedLine("20240301123100", 1, "ABC123000"),
		feedLine("20240301132900", 0, "ABC123000"),
		feedLine("20240301174500", 1, "ABC123000"),
		feedLine("20240304080000", 0, "ABC123000"),
	))
	_, err := svc.Scrape(ctx, []string{"ABC123"})
	require.NoError(t, err)

	var all bytes.Buffer
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local)
	require.NoError(t, svc.Report(ctx, &all, service.ReportRequest{Badge: "ABC123", All: true, Now: now}))

	out := all.String()
	assert.Contains(t, out, "[2024-03-01]\n2024-03-01 08:10:00\n")
	assert.Contains(t, out, "Ore sgobbate: 8:37:00\n")
	assert.Contains(t, out, "[2024-03-04]\n2024-03-04 08:00:00\nWARNING: non hai timbrato, sciocco!\n")

	var today bytes.Buffer
	now = time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local)
	require.NoError(t, svc.Report(ctx, &today, service.ReportRequest{Badge: "ABC123", Maw: true, Now: now}))
	assert.Equal(t, "[2024-03-04]\ne 2024-03-04 08:00:00\t=>\t2024-03-04 08:00:00\n\n", today.String())

	var none bytes.Buffer
	require.NoError(t, svc.Report(ctx, &none, service.ReportRequest{Badge: "NOBODY", All: true, Now: now}))
	assert.Empty(t, none.String())
}
