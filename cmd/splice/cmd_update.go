package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/splice/pkg/apply"
	"github.com/odvcencio/splice/pkg/filemerge"
	"github.com/odvcencio/splice/pkg/overlay"
	"github.com/odvcencio/splice/pkg/repo"
	"github.com/odvcencio/splice/pkg/update"
)

func newUpdateCmd() *cobra.Command {
	var (
		clean     bool
		check     string
		mergeTool string
		preview   bool
	)

	cmd := &cobra.Command{
		Use:     "update [rev]",
		Aliases: []string{"up", "checkout"},
		Short:   "Move the working copy to another revision",
		Long: `Move the working copy to another revision, carrying local changes
along. Without a revision, update to the head of the current branch.

With --clean, local changes are discarded. With --check, the
update.check setting is overridden: "linear" refuses to carry changes
across branches, "noconflict" refuses to carry changes that need a merge.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			opts := update.Options{Force: clean, Logger: newLogger(cmd)}

			switch {
			case len(args) == 1:
				if r.IsBranch(args[0]) {
					opts.Branch = args[0]
				}
				if opts.Target, err = r.Resolve(args[0]); err != nil {
					return err
				}
			default:
				branch, err := r.CurrentBranch()
				if err != nil {
					return err
				}
				if branch == "" || !r.IsBranch(branch) {
					return fmt.Errorf("no revision given and HEAD is not on a branch")
				}
				opts.Branch = branch
				if opts.Target, err = r.ResolveRef(branch); err != nil {
					return err
				}
			}
			if check != "" {
				if opts.UpdateCheck, err = update.ParseCheck(check); err != nil {
					return err
				}
			}
			if opts.Merger, err = mergerFlag(mergeTool); err != nil {
				return err
			}
			return runUpdate(cmd, r, opts, preview)
		},
	}

	cmd.Flags().BoolVarP(&clean, "clean", "C", false, "discard uncommitted changes")
	cmd.Flags().StringVarP(&check, "check", "c", "", "how to treat local changes: none, linear or noconflict")
	cmd.Flags().StringVarP(&mergeTool, "merge-tool", "t", "", "file merge tool: "+strings.Join(filemerge.ToolNames(), ", "))
	cmd.Flags().BoolVar(&preview, "preview", false, "list the files the update would change without touching the working copy")

	return cmd
}

func newMergeCmd() *cobra.Command {
	var (
		force     bool
		ancestor  string
		mergeTool string
		preview   bool
	)

	cmd := &cobra.Command{
		Use:   "merge <rev>",
		Short: "Merge another revision into the working copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			opts := update.Options{BranchMerge: true, Force: force, Logger: newLogger(cmd)}
			if opts.Target, err = r.Resolve(args[0]); err != nil {
				return err
			}
			if ancestor != "" {
				if opts.Ancestor, err = r.Resolve(ancestor); err != nil {
					return err
				}
			}
			if opts.Merger, err = mergerFlag(mergeTool); err != nil {
				return err
			}
			return runUpdate(cmd, r, opts, preview)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "merge even with uncommitted changes")
	cmd.Flags().StringVar(&ancestor, "ancestor", "", "use this revision as the merge base")
	cmd.Flags().StringVarP(&mergeTool, "merge-tool", "t", "", "file merge tool: "+strings.Join(filemerge.ToolNames(), ", "))
	cmd.Flags().BoolVar(&preview, "preview", false, "list the files the merge would change without touching the working copy")

	return cmd
}

func mergerFlag(name string) (filemerge.Merger, error) {
	if name == "" {
		return nil, nil
	}
	return filemerge.Tool(name)
}

func runUpdate(cmd *cobra.Command, r *repo.Repo, opts update.Options, preview bool) error {
	out := cmd.OutOrStdout()
	var ov *overlay.Overlay
	if preview {
		ds, err := r.Dirstate()
		if err != nil {
			return err
		}
		base, err := r.Revision(ds.P1())
		if err != nil {
			return err
		}
		ov = overlay.New(base)
		opts.WorkingCopy = ov
	}

	res, err := update.Update(cmd.Context(), r, opts)
	if err != nil {
		return err
	}
	if ov != nil {
		for _, p := range ov.Changed() {
			fmt.Fprintln(out, p)
		}
		fmt.Fprintln(out, res.Stats.String())
		return nil
	}
	return printResult(out, res.Stats, res.Halted, opts.BranchMerge)
}

func printResult(out io.Writer, st apply.Stats, halted, branchMerge bool) error {
	fmt.Fprintln(out, st.String())
	if halted {
		fmt.Fprintln(out, "merge halted after a failed file merge")
	}
	switch {
	case st.Unresolved > 0 && branchMerge:
		fmt.Fprintln(out, "use 'splice resolve' to retry unresolved file merges or 'splice abort' to abandon")
		return exitError{code: 1}
	case st.Unresolved > 0:
		fmt.Fprintln(out, "use 'splice resolve' to retry unresolved file merges")
		return exitError{code: 1}
	case branchMerge:
		fmt.Fprintln(out, "(branch merge, don't forget to commit)")
	}
	return nil
}
