// Package logger configures the application's structured logging.
//
// It uses *zerolog* for every log line, and provides the adapter level
// mapping used to route pgx query tracing into the same logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/deppfellow/abaita/internal/config"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// LoggerService owns the log destination so it can be closed on shutdown.
type LoggerService struct {
	file *os.File
}

// Close releases the log file, if one was opened.
func (s *LoggerService) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// NewLoggerService builds the application logger from the observability
// config.
//
// Output goes to Logging.File (appended) when set, otherwise to stderr.
// "-" selects stderr explicitly.
// The "console" format renders human-friendly lines; "json" is the
// structured default for log pipelines.
func NewLoggerService(cfg *config.ObservabilityConfig) (zerolog.Logger, *LoggerService, error) {
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("parsing log level: %w", err)
	}

	svc := &LoggerService{}
	var out io.Writer = os.Stderr
	if cfg.Logging.File != "" && cfg.Logging.File != "-" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("opening log file: %w", err)
		}
		svc.file = f
		out = f
	}

	return NewLogger(out, cfg.Logging.Format, level).
		With().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger(), svc, nil
}

// NewLogger returns a timestamped logger writing to out.
func NewLogger(out io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05.000"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// NewPgxLogger returns the logger used for pgx query tracing.
//
// It writes console lines to stderr so SQL stays readable while
// debugging, independent of the main log format.
func NewPgxLogger(level zerolog.Level) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		FormatFieldValue: func(i any) string {
			switch v := i.(type) {
			case string:
				if len(v) > 200 {
					return v[:200] + "..."
				}
				return v
			case []byte:
				return string(v)
			default:
				return fmt.Sprintf("%v", v)
			}
		},
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Str("component", "database").Logger()
}

// GetPgxTraceLogLevel maps a zerolog level onto a pgx tracelog level.
func GetPgxTraceLogLevel(level zerolog.Level) int {
	switch level {
	case zerolog.TraceLevel:
		return int(tracelog.LogLevelTrace)
	case zerolog.DebugLevel:
		return int(tracelog.LogLevelDebug)
	case zerolog.InfoLevel:
		return int(tracelog.LogLevelInfo)
	case zerolog.WarnLevel:
		return int(tracelog.LogLevelWarn)
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return int(tracelog.LogLevelError)
	default:
		return int(tracelog.LogLevelNone)
	}
}
