package main

import (
	"github.com/spf13/cobra"

	"github.com/conorfennell/repeat/internal/report"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [paths...]",
		Short: "Show how many cards are new, due and coming up",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			ws, err := a.workingSet(ctx, cmd.ErrOrStderr(), args)
			if err != nil {
				return err
			}
			total, err := a.db.CountRecords(ctx)
			if err != nil {
				return err
			}
			return report.Render(cmd.OutOrStdout(), report.Build(ws, a.today(), total))
		},
	}
}
