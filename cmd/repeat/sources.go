package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the deck paths and repositories that have been scanned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			defer a.close()

			sources, err := a.db.Sources(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sources) == 0 {
				fmt.Fprintln(out, "No sources scanned yet.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tPATH\tLAST SCANNED")
			for _, s := range sources {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Kind, s.Path, s.LastScanned.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}
