package merge

import (
	"bytes"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/plan"
)

// checkUnknownFile reports whether an untracked file sits at f and differs
// from other's content at f2.
func checkUnknownFile(wc WorkingCopy, other Revision, f, f2 string) bool {
	if wc == nil || wc.InMemory() || !wc.Untracked(f) {
		return false
	}
	if f2 == "" {
		f2 = f
	}
	return differs(wc, f, other, f2)
}

// differs compares the content and flag of a at fa with b at fb. Read
// errors count as a difference.
func differs(a Revision, fa string, b Revision, fb string) bool {
	if a.Flag(fa) != b.Flag(fb) {
		return true
	}
	da, err := a.Data(fa)
	if err != nil {
		return true
	}
	db, err := b.Data(fb)
	if err != nil {
		return true
	}
	return !bytes.Equal(da, db)
}

// unknownDirsChecker finds untracked files standing where a directory must
// be created, and untracked directories where a file must be written. It
// caches directory probes across calls.
type unknownDirsChecker struct {
	unknownDirs map[string]bool
	missingDirs map[string]bool
}

func newUnknownDirsChecker() *unknownDirsChecker {
	return &unknownDirsChecker{unknownDirs: map[string]bool{}, missingDirs: map[string]bool{}}
}

// check returns the conflicting path for f, or "".
func (c *unknownDirsChecker) check(wc WorkingCopy, f string) string {
	if wc == nil || wc.InMemory() {
		return ""
	}
	dirs := manifest.FindDirs(f)
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if c.missingDirs[d] {
			return ""
		}
		if c.unknownDirs[d] {
			continue
		}
		if wc.Untracked(d) {
			return d
		}
		if !wc.Exists(d) {
			c.missingDirs[d] = true
			return ""
		}
		c.unknownDirs[d] = true
	}
	if wc.IsDir(f) && wc.UntrackedUnder(f) {
		return f
	}
	return ""
}

// CheckUnknownFiles vets actions that create files against untracked files
// in the working copy. Without Force, conflicts are handled per the
// configured policy and may abort with ErrUntrackedConflict before anything
// is written. With Force, CreatedMerge actions become a Get or a Merge
// against the untracked content. Remaining Created actions become Get,
// asking for a backup where an untracked file is in the way. A local side
// that is not a working copy has no untracked files.
func CheckUnknownFiles(local, other Revision, p *plan.Plan, opts *Options) error {
	wc, _ := local.(WorkingCopy)
	ignored := func(f string) bool { return wc != nil && wc.Ignored(f) }
	fileConflicts := map[string]bool{}
	pathConflicts := map[string]bool{}
	warnConflicts := map[string]bool{}
	abortConflicts := map[string]bool{}

	unknownCfg := opts.CheckUnknown
	if unknownCfg == "" {
		unknownCfg = PolicyAbort
	}
	ignoredCfg := opts.CheckIgnored
	if ignoredCfg == "" {
		ignoredCfg = PolicyAbort
	}
	collect := func(conflicts []string, cfg Policy) {
		for _, f := range conflicts {
			switch cfg {
			case PolicyAbort:
				abortConflicts[f] = true
			case PolicyWarn:
				warnConflicts[f] = true
			}
		}
	}

	if !opts.Force {
		dirs := newUnknownDirsChecker()
		mf := local.Manifest()
		for _, f := range p.Files(plan.Created, plan.DeletedChanged) {
			if checkUnknownFile(wc, other, f, "") {
				fileConflicts[f] = true
			} else if opts.CheckPathConflicts && !mf.Has(f) {
				if path := dirs.check(wc, f); path != "" {
					pathConflicts[path] = true
				}
			}
		}
		for _, a := range p.Actions(plan.LocalDirRenameGet) {
			if checkUnknownFile(wc, other, a.Path, a.Args.(plan.MoveArgs).Source) {
				fileConflicts[a.Path] = true
			}
		}

		var ignoredFiles, unknown []string
		all := map[string]bool{}
		for f := range fileConflicts {
			all[f] = true
		}
		for f := range pathConflicts {
			all[f] = true
		}
		for _, f := range sortedSet(all) {
			if ignored(f) {
				ignoredFiles = append(ignoredFiles, f)
			} else {
				unknown = append(unknown, f)
			}
		}
		collect(ignoredFiles, ignoredCfg)
		collect(unknown, unknownCfg)
	} else {
		for _, a := range p.Actions(plan.CreatedMerge) {
			f := a.Path
			args := a.Args.(plan.CreatedMergeArgs)
			different := checkUnknownFile(wc, other, f, "")
			cfg := unknownCfg
			if ignored(f) {
				cfg = ignoredCfg
			}
			// config  different  mergeforce  |  action      backup
			//    *        n          *       |  get           n
			//    *        y          y       |  merge         -
			//  abort      y          n       |  merge         -
			//  warn       y          n       |  warn + get    y
			//  ignore     y          n       |  get           y
			switch {
			case !different:
				p.Add(f, plan.Get, plan.GetArgs{Flag: args.Flag}, "remote created")
			case opts.MergeForce || cfg == PolicyAbort:
				p.Add(f, plan.Merge, plan.MergeArgs{Local: f, Other: f, Ancestor: args.Ancestor},
					"remote differs from untracked local")
			default:
				if cfg == PolicyWarn {
					warnConflicts[f] = true
				}
				p.Add(f, plan.Get, plan.GetArgs{Flag: args.Flag, Backup: true}, "remote created")
			}
		}
	}

	for _, f := range sortedSet(abortConflicts) {
		switch {
		case !pathConflicts[f]:
			opts.warn("%s: untracked file differs", f)
		case wc.Untracked(f):
			opts.warn("%s: untracked file conflicts with directory", f)
		default:
			opts.warn("%s: untracked directory conflicts with file", f)
		}
	}
	if len(abortConflicts) > 0 {
		return NewStateError(ErrUntrackedConflict,
			"untracked files in working directory differ from files in requested revision", "")
	}

	for _, f := range sortedSet(warnConflicts) {
		if wc.IsDir(f) {
			opts.warn("%s: replacing untracked files in directory", f)
		} else {
			opts.warn("%s: replacing untracked file", f)
		}
	}

	for _, a := range p.Actions(plan.Created) {
		backup := fileConflicts[a.Path] || pathConflicts[a.Path]
		for _, d := range manifest.FindDirs(a.Path) {
			backup = backup || pathConflicts[d]
		}
		p.Add(a.Path, plan.Get, plan.GetArgs{Flag: plan.FlagOf(a.Args), Backup: backup}, a.Reason)
	}
	return nil
}
