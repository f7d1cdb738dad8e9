// Package config manages the abaita configuration.
//
// Values come from environment variables, optionally seeded from a
// dotenv-formatted rc file (default `~/.abaita.rc`) and a local `.env`.
// They are loaded into structured Go types and validated so the
// process fails fast on bad or missing settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	// Side-effect import: loads `.env` (if present) into the process
	// environment before any value is read.
	_ "github.com/joho/godotenv/autoload"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

/*
	Keys are read with the ABAITA_ prefix, lowercased, and nested with a
	double underscore:

	  ABAITA_DATABASE__ENDPOINT -> database.endpoint -> Config.Database.Endpoint
	  ABAITA_SERVER__ADDRESS    -> server.address    -> Config.Server.Address
*/

// EnvPrefix is the prefix shared by every configuration variable.
const EnvPrefix = "ABAITA_"

// DefaultRCFile is the rc file read when no explicit path is given.
const DefaultRCFile = "~/.abaita.rc"

// Config is the root configuration object.
//
// Observability is a pointer because it is optional. If not provided,
// defaults are injected at load time.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Server        FeedServerConfig     `koanf:"server"`
	User          UserConfig           `koanf:"user"`
	Whitelist     WhitelistConfig      `koanf:"whitelist"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	Env string `koanf:"env" validate:"required,oneof=local development production test"`
}

// DatabaseConfig describes the connection registered at startup.
//
// Endpoint is a database URL: postgres://... for PostgreSQL or
// sqlite:///path/to/file.db for SQLite.
type DatabaseConfig struct {
	Name            string        `koanf:"name" validate:"required"`
	Endpoint        string        `koanf:"endpoint" validate:"required"`
	Echo            bool          `koanf:"echo"`
	MaxConns        int32         `koanf:"max_conns" validate:"gte=0"`
	MinConns        int32         `koanf:"min_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// FeedServerConfig holds the FTP server the attendance feed is pulled from.
// It is only required by the scrape command, see ValidateFeed.
type FeedServerConfig struct {
	Address  string        `koanf:"address"`
	User     string        `koanf:"user"`
	Password string        `koanf:"password"`
	Filename string        `koanf:"filename"`
	Timeout  time.Duration `koanf:"timeout"`
}

// UserConfig holds the defaults for the print command.
type UserConfig struct {
	Badge string `koanf:"badge"`
	Maw   bool   `koanf:"maw"`
}

// WhitelistConfig lists the badges the scraper keeps.
//
// Values is a whitespace- or comma-separated list, e.g. "000123 000456".
type WhitelistConfig struct {
	Values string `koanf:"values"`
}

// Badges splits the whitelist into badge codes, dropping blanks.
func (w WhitelistConfig) Badges() []string {
	fields := strings.FieldsFunc(w.Values, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Default returns a Config populated with the values used when a key is
// absent from the environment.
func Default() *Config {
	return &Config{
		Primary: Primary{Env: "local"},
		Database: DatabaseConfig{
			Name:            "abaita",
			MaxConns:        4,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 30 * time.Minute,
		},
		Server: FeedServerConfig{
			Filename: "btransaction.loc",
			Timeout:  30 * time.Second,
		},
	}
}

// Override adjusts a loaded Config before validation, e.g. from command
// line flags.
type Override func(*Config)

// Load reads the rc file (if any), then the environment, applies the
// overrides in order and returns a validated Config.
//
// rcFile may be empty, in which case DefaultRCFile is tried. A missing
// rc file is not an error.
func Load(rcFile string, overrides ...Override) (*Config, error) {
	if rcFile == "" {
		rcFile = DefaultRCFile
	}
	path, err := expandHome(rcFile)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		// godotenv.Load never overrides variables already set in the
		// environment, so explicit env always wins over the rc file.
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("loading rc file %s: %w", path, err)
		}
	}

	k := koanf.New(".")
	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	// Unmarshal onto a pre-populated struct: keys missing from the
	// environment keep their default value.
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.Observability == nil {
		cfg.Observability = DefaultObservabilityConfig()
	}
	cfg.Observability.ServiceName = "abaita"
	cfg.Observability.Environment = cfg.Primary.Env

	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs the struct-tag rules and the observability rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("invalid observability config: %w", err)
		}
	}
	return nil
}

// ValidateFeed checks the settings the scrape command needs.
func (c *Config) ValidateFeed() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Server.User == "" {
		errs = append(errs, errors.New("server.user is required"))
	}
	if c.Server.Filename == "" {
		errs = append(errs, errors.New("server.filename is required"))
	}
	return errors.Join(errs...)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
