package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/splice/pkg/repo"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log [rev]",
		Short: "Show first-parent history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			spec := "."
			if len(args) == 1 {
				spec = args[0]
			}
			h, err := r.Resolve(spec)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for n := 0; h != "" && n < limit; n++ {
				c, err := r.Store.ReadCommit(h)
				if err != nil {
					return fmt.Errorf("log: %w", err)
				}
				if oneline {
					fmt.Fprintf(out, "%s %s\n", h.Short(), firstLine(c.Message))
				} else {
					fmt.Fprintf(out, "commit %s\n", h)
					if len(c.Parents) > 1 {
						parents := make([]string, len(c.Parents))
						for i, p := range c.Parents {
							parents[i] = p.Short()
						}
						fmt.Fprintf(out, "Merge: %s\n", strings.Join(parents, " "))
					}
					fmt.Fprintf(out, "Author: %s\n", c.Author)
					fmt.Fprintf(out, "Date:   %s\n\n", time.Unix(c.Timestamp, 0).Format(time.RFC1123Z))
					for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
						fmt.Fprintf(out, "    %s\n", line)
					}
					fmt.Fprintln(out)
				}
				if len(c.Parents) == 0 {
					break
				}
				h = c.Parents[0]
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "one line per commit")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of commits")

	return cmd
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func newReflogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog [ref]",
		Short: "Show where a ref, or the working copy's HEAD, has been",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			ref := "HEAD"
			if len(args) == 1 {
				ref = args[0]
			}
			entries, err := r.ReadReflog(ref, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				to := repo.NullSpec
				if e.NewHash != "" {
					to = e.NewHash.Short()
				}
				fmt.Fprintf(out, "%s %s %s\n", to, time.Unix(e.Timestamp, 0).Format(time.DateTime), e.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	return cmd
}
