package merge

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/match"
	"github.com/odvcencio/splice/pkg/plan"
)

var folder = cases.Fold()

func foldPath(p string) string { return folder.String(p) }

// CheckCollision fails when two paths of the provisional post-merge file
// set differ only in case, or when a file and a directory do. wmf is the
// manifest the plan is applied on top of; p may be nil to check wmf alone.
// Plan entries outside a narrow scope are dropped first.
func CheckCollision(wmf *manifest.Manifest, p *plan.Plan, narrow match.Matcher) error {
	pmmf := make(map[string]struct{}, wmf.Len())
	narrowed := !match.IsAlways(narrow)
	wmf.Walk(func(f string, _ manifest.Entry) {
		if !narrowed || narrow.Match(f) {
			pmmf[f] = struct{}{}
		}
	})

	if p != nil {
		if narrowed {
			for _, f := range p.Files() {
				if !narrow.Match(f) {
					p.Remove(f)
				}
			}
		}
		for _, f := range p.Files(plan.Add, plan.AddModified, plan.Forget, plan.Get,
			plan.ChangedDeleted, plan.DeletedChanged) {
			pmmf[f] = struct{}{}
		}
		for _, f := range p.Files(plan.Remove) {
			delete(pmmf, f)
		}
		for _, a := range p.Actions(plan.DirRenameMoveLocal) {
			delete(pmmf, a.Args.(plan.MoveArgs).Source)
			pmmf[a.Path] = struct{}{}
		}
		for _, f := range p.Files(plan.LocalDirRenameGet) {
			pmmf[f] = struct{}{}
		}
		for _, a := range p.Actions(plan.Merge) {
			if args := a.Args.(plan.MergeArgs); args.Move {
				delete(pmmf, args.Local)
			}
			pmmf[a.Path] = struct{}{}
		}
	}

	paths := make([]string, 0, len(pmmf))
	for f := range pmmf {
		paths = append(paths, f)
	}
	sort.Strings(paths)

	foldMap := make(map[string]string, len(paths))
	for _, f := range paths {
		fold := foldPath(f)
		if prev, ok := foldMap[fold]; ok {
			return NewStateError(ErrCaseCollision,
				"case-folding collision between "+f+" and "+prev, "")
		}
		foldMap[fold] = f
	}

	folds := make([]string, 0, len(foldMap))
	for fold := range foldMap {
		folds = append(folds, fold)
	}
	sort.Strings(folds)
	var foldPrefix, unfoldPrefix, lastFull string
	for _, fold := range folds {
		f := foldMap[fold]
		if foldPrefix != "" && strings.HasPrefix(fold, foldPrefix) && !strings.HasPrefix(f, unfoldPrefix) {
			return NewStateError(ErrCaseCollision,
				"case-folding collision between "+lastFull+" and directory of "+f, "")
		}
		foldPrefix = fold + "/"
		unfoldPrefix = f + "/"
		lastFull = f
	}
	return nil
}
