package main

import (
	"context"
	"fmt"
	"io"

	"github.com/deppfellow/abaita/internal/app"
	"github.com/deppfellow/abaita/internal/config"
	"github.com/deppfellow/abaita/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// globalFlags are given before the subcommand and override the
// configuration.
type globalFlags struct {
	rcFile   string
	logFile  string
	address  string
	filename string
	password string
	database string
	user     string
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "abaita",
		Short: "Badge attendance scraper and report",
		// Global flags are parsed by the root command only, so subcommands
		// are free to reuse their shorthands (print -a).
		TraverseChildren: true,
		SilenceUsage:     true,
		SilenceErrors:    true,
	}
	root.SetOut(out)

	f := root.Flags()
	f.StringVar(&g.rcFile, "config", config.DefaultRCFile, "rc file with ABAITA_* settings")
	f.StringVar(&g.logFile, "log", "", `log file, "-" for stderr`)
	f.StringVarP(&g.address, "address", "a", "", "FTP server address")
	f.StringVarP(&g.filename, "filename", "f", "", "file to download from the FTP server")
	f.StringVarP(&g.password, "password", "p", "", "FTP password")
	f.StringVarP(&g.database, "database", "d", "", "database URL")
	f.StringVarP(&g.user, "user", "u", "", "FTP user")

	root.AddCommand(
		newScrapeCmd(g),
		newPrintCmd(g),
		newInspectCmd(g),
		newMigrateCmd(g),
	)
	return root
}

// overrides maps the flags that were given onto the configuration.
func (g *globalFlags) overrides() []config.Override {
	return []config.Override{func(cfg *config.Config) {
		set := func(dst *string, v string) {
			if v != "" {
				*dst = v
			}
		}
		set(&cfg.Server.Address, g.address)
		set(&cfg.Server.Filename, g.filename)
		set(&cfg.Server.Password, g.password)
		set(&cfg.Server.User, g.user)
		set(&cfg.Database.Endpoint, g.database)
		if cfg.Observability != nil {
			set(&cfg.Observability.Logging.File, g.logFile)
		}
	}}
}

// setup loads the configuration and the logger.
func (g *globalFlags) setup(cmd *cobra.Command) (*config.Config, *zerolog.Logger, *logger.LoggerService, error) {
	cfg, err := config.Load(g.rcFile, g.overrides()...)
	if err != nil {
		return nil, nil, nil, err
	}

	log, svc, err := logger.NewLoggerService(cfg.Observability)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info().
		Str("command", cmd.Name()).
		Strs("args", cmd.Flags().Args()).
		Msg("starting abaita")
	return cfg, &log, svc, nil
}

// start builds the application with the configured database registered.
// The caller owns the returned App and must Shutdown it.
func (g *globalFlags) start(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, log, svc, err := g.setup(cmd)
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, log, svc)
	if err != nil {
		log.Error().Err(err).Msg("failed to start")
		_ = svc.Close()
		return nil, err
	}
	return a, nil
}

func shutdown(a *app.App) {
	if err := a.Shutdown(); err != nil {
		a.Logger.Error().Err(err).Msg("shutdown failed")
	}
}

// command prefixes the errors of a subcommand with its name.
func command(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := run(cmd, args); err != nil {
			return fmt.Errorf("%s: %w", cmd.Name(), err)
		}
		return nil
	}
}
