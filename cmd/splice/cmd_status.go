package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/repo"
	"github.com/odvcencio/splice/pkg/update"
)

func newStatusCmd() *cobra.Command {
	var ignored bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show changed files in the working copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			entries, err := r.Status(ignored)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s %s\n", e.Status.Code(), e.Path)
				if e.CopySource != "" {
					fmt.Fprintf(out, "  %s\n", e.CopySource)
				}
			}

			ds, err := r.Dirstate()
			if err != nil {
				return err
			}
			recs, err := update.Records(r)
			if err != nil {
				return err
			}
			unresolved := 0
			for _, rec := range recs {
				if rec.State != mergestate.Resolved && rec.State != mergestate.PathResolved {
					unresolved++
				}
			}
			switch {
			case unresolved > 0:
				fmt.Fprintf(out, "# %d unresolved merge conflicts (see 'splice resolve --list')\n", unresolved)
			case ds.P2() != "":
				fmt.Fprintf(out, "# merging with %s, don't forget to commit\n", ds.P2().Short())
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&ignored, "ignored", "i", false, "also list ignored files")
	return cmd
}
