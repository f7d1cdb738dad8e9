package main

import (
	"github.com/deppfellow/abaita/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the attendance tables",
		Args:  cobra.NoArgs,
		RunE: command(func(cmd *cobra.Command, _ []string) error {
			cfg, log, svc, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			return database.Migrate(cmd.Context(), log, cfg.Database.Endpoint)
		}),
	}
}
