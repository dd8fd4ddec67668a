package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/repo"
	"github.com/odvcencio/splice/pkg/update"
)

var stateCodes = map[mergestate.FileState]string{
	mergestate.Unresolved:     "U",
	mergestate.Resolving:      "U",
	mergestate.Resolved:       "R",
	mergestate.PathUnresolved: "P",
	mergestate.PathResolved:   "R",
}

func newResolveCmd() *cobra.Command {
	var (
		all       bool
		mark      bool
		unmark    bool
		list      bool
		mergeTool string
	)

	cmd := &cobra.Command{
		Use:   "resolve [paths...]",
		Short: "Redo, mark or list conflicted file merges",
		Long: `Redo the merge of conflicted files from the versions saved when the
conflict was recorded, or mark them resolved or unresolved after editing
them by hand. With --list, show every file of the current merge:
U unresolved, P unresolved path conflict, R resolved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				recs, err := update.Records(r)
				if err != nil {
					return err
				}
				paths, err := repoPaths(r, args)
				if err != nil {
					return err
				}
				for _, rec := range recs {
					if len(paths) > 0 && !underAny(rec.Path, paths) {
						continue
					}
					fmt.Fprintf(out, "%s %s\n", stateCodes[rec.State], rec.Path)
				}
				return nil
			}

			paths, err := repoPaths(r, args)
			if err != nil {
				return err
			}
			opts := update.ResolveOptions{
				Paths:  paths,
				All:    all,
				Mark:   mark,
				Unmark: unmark,
				Logger: newLogger(cmd),
			}
			if opts.Merger, err = mergerFlag(mergeTool); err != nil {
				return err
			}
			res, err := update.Resolve(cmd.Context(), r, opts)
			if err != nil {
				return err
			}

			if mark || unmark {
				if res.Unresolved == 0 {
					fmt.Fprintln(out, "(no more unresolved files)")
				}
				return nil
			}
			return printResult(out, res.Stats, false, false)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "select all unresolved files")
	cmd.Flags().BoolVarP(&mark, "mark", "m", false, "mark files as resolved")
	cmd.Flags().BoolVarP(&unmark, "unmark", "u", false, "mark files as unresolved")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list files of the current merge")
	cmd.Flags().StringVarP(&mergeTool, "merge-tool", "t", "", "file merge tool for the redone merges")
	cmd.MarkFlagsMutuallyExclusive("mark", "unmark", "list")

	return cmd
}

// repoPaths turns arguments relative to the current directory into
// slash-separated paths relative to the repository root.
func repoPaths(r *repo.Repo, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(r.RootDir, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%s: outside repository", a)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out, nil
}

func underAny(p string, dirs []string) bool {
	for _, d := range dirs {
		if d == "." || p == d || strings.HasPrefix(p, d+"/") {
			return true
		}
	}
	return false
}
