package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/splice/pkg/repo"
	"github.com/odvcencio/splice/pkg/update"
)

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Finish an update that was interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			res, err := update.Recover(cmd.Context(), r, newLogger(cmd))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res.Stats, res.Halted, false)
		},
	}
}

func newAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort",
		Short: "Abandon an uncommitted merge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			res, err := update.Abort(cmd.Context(), r, newLogger(cmd))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res.Stats, res.Halted, false)
		},
	}
}
