package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/deppfellow/abaita/internal/attendance"
	"github.com/deppfellow/abaita/internal/orm"
	"github.com/deppfellow/abaita/internal/repository"
	"github.com/deppfellow/abaita/internal/sqlerr"
	"github.com/deppfellow/abaita/internal/validation"
	"github.com/rs/zerolog"
)

// FeedSource downloads the terminal export.
type FeedSource interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// ScrapeSummary counts what a scrape did with the feed rows.
type ScrapeSummary struct {
	// Found is the number of whitelisted, de-duplicated feed rows.
	Found int `json:"found"`
	// Stored is the number of rows already in the database before the run.
	Stored int `json:"stored"`
	// Inserted rows were written by this run.
	Inserted int `json:"inserted"`
	// Duplicates were written concurrently by someone else.
	Duplicates int `json:"duplicates"`
	// Invalid rows failed validation or the insert itself.
	Invalid int `json:"invalid"`
}

// AttendanceService scrapes the badge feed into the database and prints
// reports from it.
type AttendanceService struct {
	logger  *zerolog.Logger
	punches *repository.PunchRepository
	feed    FeedSource
	loc     *time.Location
}

// NewAttendanceService creates the service. loc is the time zone of the
// terminal clock; nil means local time.
func NewAttendanceService(logger *zerolog.Logger, punches *repository.PunchRepository, feed FeedSource, loc *time.Location) *AttendanceService {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceService{
		logger:  logger,
		punches: punches,
		feed:    feed,
		loc:     loc,
	}
}

// Scrape downloads the feed, keeps the whitelisted badges and stores the
// punches that are not stored yet, in one unit of work.
func (s *AttendanceService) Scrape(ctx context.Context, whitelist []string) (ScrapeSummary, error) {
	var summary ScrapeSummary
	s.logger.Info().Strs("whitelist", whitelist).Msg("scraping attendance feed")

	data, err := s.feed.Fetch(ctx)
	if err != nil {
		return summary, err
	}

	punches, err := attendance.ParseFeed(data, whitelist, s.loc)
	if err != nil {
		return summary, err
	}
	if len(punches) == 0 {
		s.logger.Warn().Msg("no rows found")
		return summary, nil
	}
	summary.Found = len(punches)
	s.logger.Debug().Int("rows", len(punches)).Msg("feed parsed")

	existing, err := s.punches.ExistingKeys(ctx, whitelist)
	if err != nil {
		return summary, err
	}

	var fresh []attendance.Punch
	for _, p := range punches {
		if existing[p.Key()] {
			summary.Stored++
			continue
		}
		fresh = append(fresh, p)
	}
	s.logger.Info().Int("rows", len(fresh)).Msg("saving new rows to the database")

	for _, p := range fresh {
		if err := validation.Struct(p); err != nil {
			summary.Invalid++
			s.logger.Warn().Err(err).Str("raw", p.Raw).Msg("skipping invalid punch")
			continue
		}

		res, err := s.punches.Insert(ctx, p)
		if err != nil {
			_ = s.punches.Rollback(ctx)
			return summary, fmt.Errorf("storing punches: %w", err)
		}
		switch res.Status {
		case orm.Inserted:
			summary.Inserted++
		case orm.AlreadyExists:
			summary.Duplicates++
			s.logger.Debug().Str("raw", p.Raw).Msg("punch already stored")
		default:
			summary.Invalid++
			s.logger.Warn().
				Err(res.Err).
				Str("code", sqlerr.ErrorCode(res.Err)).
				Str("reason", sqlerr.UserMessage(res.Err)).
				Str("raw", p.Raw).
				Msg("punch not stored")
		}
	}

	if err := s.punches.Commit(ctx); err != nil {
		return summary, fmt.Errorf("committing punches: %w", err)
	}
	s.logger.Info().
		Int("inserted", summary.Inserted).
		Int("duplicates", summary.Duplicates).
		Int("invalid", summary.Invalid).
		Msg("scrape completed")
	return summary, nil
}

// ReportRequest selects what Report prints.
type ReportRequest struct {
	Badge string
	// All prints every stored day instead of today only.
	All bool
	Maw bool
	// Now overrides the current time; zero means time.Now().
	Now time.Time
}

// Report prints the punches of a badge, day by day.
func (s *AttendanceService) Report(ctx context.Context, w io.Writer, req ReportRequest) error {
	if req.Now.IsZero() {
		req.Now = time.Now().In(s.loc)
	}
	s.logger.Info().Str("badge", req.Badge).Bool("all", req.All).Msg("printing report")

	var day *time.Time
	if !req.All {
		day = &req.Now
	}
	punches, err := s.punches.ByBadge(ctx, req.Badge, day)
	if err != nil {
		return err
	}
	return attendance.Report(w, punches, attendance.ReportOptions{Maw: req.Maw, Now: req.Now})
}
