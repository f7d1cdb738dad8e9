package main

import (
	"errors"
	"fmt"

	"github.com/deppfellow/abaita/internal/repository"
	"github.com/deppfellow/abaita/internal/service"
	"github.com/spf13/cobra"
)

func newScrapeCmd(g *globalFlags) *cobra.Command {
	var badges []string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Download the terminal export and store the new punches",
		Args:  cobra.NoArgs,
		RunE: command(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := g.start(ctx, cmd)
			if err != nil {
				return err
			}
			defer shutdown(a)

			if err := a.Config.ValidateFeed(); err != nil {
				return err
			}

			whitelist := badges
			if len(whitelist) == 0 {
				whitelist = a.Config.Whitelist.Badges()
			}
			if len(whitelist) == 0 {
				return errors.New("no badge to scrape: pass -b or set whitelist.values")
			}

			repos, err := repository.NewRepositories(ctx, a.Registry, "")
			if err != nil {
				return err
			}
			services := service.NewServices(a, repos)

			summary, err := services.Attendance.Scrape(ctx, whitelist)
			if err != nil {
				a.Logger.Error().Err(err).Msg("scrape failed")
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"found %d, already stored %d, inserted %d, duplicates %d, invalid %d\n",
				summary.Found, summary.Stored, summary.Inserted, summary.Duplicates, summary.Invalid)
			return nil
		}),
	}

	cmd.Flags().StringSliceVarP(&badges, "badge", "b", nil, "badges to keep (default whitelist.values)")
	return cmd
}
