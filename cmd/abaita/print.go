package main

import (
	"errors"

	"github.com/deppfellow/abaita/internal/repository"
	"github.com/deppfellow/abaita/internal/service"
	"github.com/spf13/cobra"
)

func newPrintCmd(g *globalFlags) *cobra.Command {
	var (
		all   bool
		maw   bool
		noMaw bool
	)

	cmd := &cobra.Command{
		Use:   "print [badge]",
		Short: "Print the punches of a badge, day by day",
		Args:  cobra.MaximumNArgs(1),
		RunE: command(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := g.start(ctx, cmd)
			if err != nil {
				return err
			}
			defer shutdown(a)

			req := service.ReportRequest{
				Badge: a.Config.User.Badge,
				All:   all,
				Maw:   a.Config.User.Maw,
			}
			if len(args) == 1 {
				req.Badge = args[0]
			}
			if req.Badge == "" {
				return errors.New("no badge given: pass one or set user.badge")
			}
			switch {
			case maw:
				req.Maw = true
			case noMaw:
				req.Maw = false
			}

			repos, err := repository.NewRepositories(ctx, a.Registry, "")
			if err != nil {
				return err
			}
			return service.NewServices(a, repos).Attendance.Report(ctx, cmd.OutOrStdout(), req)
		}),
	}

	f := cmd.Flags()
	f.BoolVarP(&all, "all", "a", false, "print every stored day, not just today")
	f.BoolVarP(&maw, "maw", "m", false, "show the half-hour rounded punches")
	f.BoolVarP(&noMaw, "no-maw", "M", false, "do not show the rounded punches")
	cmd.MarkFlagsMutuallyExclusive("maw", "no-maw")
	return cmd
}
