package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/splice/pkg/repo"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <files...>",
		Short: "Track files for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			added, err := r.Add(args)
			if err != nil {
				return err
			}
			if verbose {
				for _, p := range added {
					fmt.Fprintf(cmd.OutOrStdout(), "adding %s\n", p)
				}
			}
			return nil
		},
	}
}

func newRmCmd() *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "rm [--keep] <files...>",
		Short: "Stop tracking files and delete them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			return r.Remove(args, keep)
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "stop tracking but leave the files on disk")
	return cmd
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Rename a tracked file, recording the copy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			return r.Move(args[0], args[1])
		},
	}
}
