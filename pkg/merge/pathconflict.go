package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/plan"
)

var creatingKinds = []plan.Kind{plan.Created, plan.DeletedChanged, plan.Merge, plan.CreatedMerge}

func isCreating(k plan.Kind) bool {
	for _, c := range creatingKinds {
		if k == c {
			return true
		}
	}
	return false
}

// CheckPathConflicts finds paths that would exist both as a file and as a
// directory once p is applied. A local file in the way of a remote
// directory is renamed aside; a remote file in the way of a surviving local
// directory is written under a new name. A remote manifest that is itself
// inconsistent fails with ErrInvalidPathConflict.
func CheckPathConflicts(local, other Revision, p *plan.Plan, opts *Options) error {
	mf := local.Manifest()
	mo := other.Manifest()

	localConflicts := make(map[string]bool)
	remoteConflicts := make(map[string]bool)
	invalid := make(map[string]bool)
	createdDirs := make(map[string]bool)
	deleted := make(map[string]bool)

	for _, f := range p.Files(creatingKinds...) {
		for _, d := range manifest.FindDirs(f) {
			createdDirs[d] = true
		}
		if mf.HasDir(f) {
			// Fine if everything below the local directory goes away; known
			// once all deletions are collected.
			remoteConflicts[f] = true
		}
	}
	for _, f := range p.Files(plan.Remove) {
		deleted[f] = true
	}
	for _, a := range p.Actions(plan.Merge) {
		if args := a.Args.(plan.MergeArgs); args.Move {
			deleted[args.Local] = true
		}
	}
	for _, a := range p.Actions(plan.DirRenameMoveLocal) {
		deleted[a.Args.(plan.MoveArgs).Source] = true
	}

	for d := range createdDirs {
		if mf.Has(d) {
			if mo.Has(d) {
				invalid[d] = true
			} else {
				localConflicts[d] = true
			}
		}
		if a, ok := p.Get(d); ok && isCreating(a.Kind) {
			invalid[d] = true
		}
	}

	for _, f := range sortedSet(localConflicts) {
		if deleted[f] {
			continue
		}
		pnew := safeName(f, strings.TrimSuffix(local.String(), "+"), mf, p)
		orig := f
		if wc, ok := local.(WorkingCopy); ok {
			if src := wc.CopySource(f); src != "" {
				orig = src
			}
		}
		p.Add(pnew, plan.PathConflictResolve, plan.ConflictResolveArgs{Source: f, Origin: orig}, "local path conflict")
		p.Add(f, plan.PathConflict, plan.PathConflictArgs{Renamed: pnew, Origin: "l"}, "path conflict")
	}

	if len(remoteConflicts) > 0 {
		tag := strings.TrimSuffix(other.String(), "+")
		for _, fp := range filesInDirs(mf, remoteConflicts) {
			f, dir := fp[0], fp[1]
			if deleted[f] || !remoteConflicts[dir] {
				continue
			}
			a, _ := p.Get(dir)
			pnew := safeName(dir, tag, mf, p)
			switch a.Kind {
			case plan.DeletedChanged, plan.Merge:
				p.Add(pnew, a.Kind, a.Args, a.Reason)
			default:
				p.Add(pnew, plan.LocalDirRenameGet, plan.MoveArgs{Source: dir, Flag: plan.FlagOf(a.Args)}, "remote path conflict")
			}
			p.Add(dir, plan.PathConflict, plan.PathConflictArgs{Renamed: pnew, Origin: "r"}, "path conflict")
			delete(remoteConflicts, dir)
		}
	}

	if len(invalid) > 0 {
		for _, d := range sortedSet(invalid) {
			opts.warn("%s: is both a file and a directory", d)
		}
		return NewStateError(ErrInvalidPathConflict, "", "")
	}
	return nil
}

// safeName returns "f~tag", or "f~tag~N" for the first N that is free in
// both the manifest and the plan.
func safeName(f, tag string, mf *manifest.Manifest, p *plan.Plan) string {
	taken := func(name string) bool {
		if mf.Has(name) {
			return true
		}
		_, ok := p.Get(name)
		return ok
	}
	name := f + "~" + tag
	if !taken(name) {
		return name
	}
	for n := 1; ; n++ {
		name = fmt.Sprintf("%s~%s~%d", f, tag, n)
		if !taken(name) {
			return name
		}
	}
}

// filesInDirs yields (file, dir) for every file of mf below one of dirs, in
// path order.
func filesInDirs(mf *manifest.Manifest, dirs map[string]bool) [][2]string {
	var out [][2]string
	for _, f := range mf.Paths() {
		for _, d := range manifest.FindDirs(f) {
			if dirs[d] {
				out = append(out, [2]string{f, d})
				break
			}
		}
	}
	return out
}

func sortedSet(s map[string]bool) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
