package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	tern "github.com/jackc/tern/v2/migrate"
	"github.com/rs/zerolog"
)

// Embed all SQL files under migrations/ at compile time.
//
//go:embed migrations/*.sql
var migrations embed.FS

const (
	versionTable     = "schema_version"
	migrationDivider = "---- create above / drop below ----"
)

// Migrate applies the embedded migrations to the database at rawURL.
//
// PostgreSQL goes through jackc/tern on a single pgx connection. SQLite
// has no tern driver, so the "up" half of every migration file is applied
// in order and the version kept in the same schema_version table.
func Migrate(ctx context.Context, logger *zerolog.Logger, rawURL string) error {
	scheme, _, _ := strings.Cut(rawURL, "://")
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return migratePostgres(ctx, logger, rawURL)
	case "sqlite", "sqlite3":
		conn, err := Open(ctx, "migrate", rawURL, Options{}, *logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		return migrateSqlite(ctx, logger, conn)
	default:
		return fmt.Errorf("unsupported database url scheme %q", scheme)
	}
}

func migrationsFS() (fs.FS, error) {
	subtree, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("retrieving database migrations subtree: %w", err)
	}
	return subtree, nil
}

func migratePostgres(ctx context.Context, logger *zerolog.Logger, rawURL string) error {
	conn, err := pgx.Connect(ctx, rawURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	m, err := tern.NewMigrator(ctx, conn, versionTable)
	if err != nil {
		return fmt.Errorf("constructing database migrator: %w", err)
	}

	subtree, err := migrationsFS()
	if err != nil {
		return err
	}
	if err := m.LoadMigrations(subtree); err != nil {
		return fmt.Errorf("loading database migrations: %w", err)
	}

	from, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("retrieving current database migration version: %w", err)
	}

	if err := m.Migrate(ctx); err != nil {
		return err
	}

	logOutcome(logger, from, int32(len(m.Migrations)))
	return nil
}

func migrateSqlite(ctx context.Context, logger *zerolog.Logger, conn *Connection) error {
	subtree, err := migrationsFS()
	if err != nil {
		return err
	}
	names, err := fs.Glob(subtree, "*.sql")
	if err != nil {
		return fmt.Errorf("loading database migrations: %w", err)
	}
	sort.Strings(names)

	db := conn.DB()
	if _, err := conn.Exec(ctx, db, "CREATE TABLE IF NOT EXISTS "+versionTable+" (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("creating %s: %w", versionTable, err)
	}

	var from int32
	row := conn.QueryRow(ctx, db, "SELECT COALESCE(MAX(version), 0) FROM "+versionTable)
	if err := row.Scan(&from); err != nil {
		return fmt.Errorf("retrieving current database migration version: %w", err)
	}

	for i := int(from); i < len(names); i++ {
		body, err := fs.ReadFile(subtree, names[i])
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", names[i], err)
		}
		up, _, _ := strings.Cut(string(body), migrationDivider)

		tx, err := conn.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, tx, up); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", names[i], err)
		}
		if _, err := conn.Exec(ctx, tx, "INSERT INTO "+versionTable+" (version) VALUES (?)", i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", names[i], err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	logOutcome(logger, from, int32(len(names)))
	return nil
}

func logOutcome(logger *zerolog.Logger, from, to int32) {
	if from == to {
		logger.Info().Msgf("database schema up to date, version %d", to)
	} else {
		logger.Info().Msgf("migrated database schema, from %d to %d", from, to)
	}
}
