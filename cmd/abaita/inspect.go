package main

import (
	"fmt"

	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/lib/utils"
	"github.com/deppfellow/abaita/internal/schema"
	"github.com/spf13/cobra"
)

func newInspectCmd(g *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [table...]",
		Short: "Show the reflected tables and their relationships",
		RunE: command(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := g.start(ctx, cmd)
			if err != nil {
				return err
			}
			defer shutdown(a)

			cat, err := a.Registry.Catalog(ctx, "")
			if err != nil {
				return err
			}

			tables := cat.Tables()
			if len(args) > 0 {
				tables = make([]*schema.Table, 0, len(args))
				for _, name := range args {
					t, ok := cat.Lookup(name)
					if !ok {
						return fmt.Errorf("%w: %s", errs.ErrUnknownTable, name)
					}
					tables = append(tables, t)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return utils.WriteJSON(out, tables)
			}
			for _, t := range tables {
				fmt.Fprintln(out, t.Tree())
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the descriptors as JSON")
	return cmd
}
