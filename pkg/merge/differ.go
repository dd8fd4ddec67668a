package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/match"
	"github.com/odvcencio/splice/pkg/plan"
)

// Commit info keys recorded for the commit that concludes a merge.
const (
	InfoFilenodeSource      = "filenode-source"
	InfoMergeRemoval        = "merge-removal-candidate"
	InfoOutsideNarrowAction = "outside-narrow-merge-action"
)

func revKey(r Revision) string {
	if _, ok := r.(WorkingCopy); ok {
		return "wc"
	}
	return "rev:" + string(r.ID())
}

// ancestorIsSide reports whether ancestor is local, other, or a parent of
// local. Diffing against it again would not narrow the scan.
func ancestorIsSide(ancestor, local, other Revision) bool {
	key := revKey(ancestor)
	if key == revKey(local) || key == revKey(other) {
		return true
	}
	for _, p := range local.Parents() {
		if key == "rev:"+string(p) {
			return true
		}
	}
	return false
}

// ManifestMerge classifies every differing path between local and other
// against ancestor and returns the raw plan.
func ManifestMerge(local, other, ancestor Revision, opts Options) (*plan.Plan, error) {
	log := opts.logger()
	p := plan.New()

	matcher := opts.Matcher
	if match.IsAlways(matcher) {
		matcher = nil
	}

	copies := NewCopies()
	if opts.FollowCopies && opts.Copies != nil {
		c, err := opts.Copies.MergeCopies(local, other, ancestor)
		if err != nil {
			return nil, fmt.Errorf("merge: trace copies: %w", err)
		}
		if c != nil {
			copies = c
		}
	}
	bc1, bc2 := copies.Local, copies.Other

	log.Debug("resolving manifests",
		"branchmerge", opts.BranchMerge, "force", opts.Force, "partial", matcher != nil,
		"ancestor", ancestor.String(), "local", local.String(), "remote", other.String())

	m1, m2, ma := local.Manifest(), other.Manifest(), ancestor.Manifest()

	copied1 := make(map[string]bool)
	for _, src := range bc1.Copy {
		copied1[src] = true
	}
	for _, dst := range bc1.MoveWithDir {
		copied1[dst] = true
	}
	copied2 := make(map[string]bool)
	for _, src := range bc2.Copy {
		copied2[src] = true
	}
	for _, dst := range bc2.MoveWithDir {
		copied2[dst] = true
	}

	var relevant []string
	if !ancestorIsSide(ancestor, local, other) && !opts.ForceFullDiff {
		set := make(map[string]struct{})
		for f := range ma.Diff(m2, nil) {
			set[f] = struct{}{}
		}
		for dst, src := range bc1.Copy {
			if _, ok := set[src]; ok {
				set[dst] = struct{}{}
			}
		}
		for f := range bc1.MoveWithDir {
			set[f] = struct{}{}
		}
		relevant = make([]string, 0, len(set))
		for f := range set {
			relevant = append(relevant, f)
		}
		sort.Strings(relevant)
		matcher = match.Intersect(matcher, match.Exact(relevant...))
	}

	// Paths identical on both sides need nothing.
	keepSame := func(f string) {
		if matcher != nil && !matcher.Match(f) {
			return
		}
		e1, ok1 := m1.Get(f)
		e2, ok2 := m2.Get(f)
		if ok1 && ok2 && e1 == e2 {
			p.Add(f, plan.Keep, nil, "local and remote agree")
		}
	}
	if relevant != nil {
		for _, f := range relevant {
			keepSame(f)
		}
	} else {
		m1.Walk(func(f string, _ manifest.Entry) { keepSame(f) })
	}

	diff := m1.Diff(m2, matcher)
	paths := make([]string, 0, len(diff))
	for f := range diff {
		paths = append(paths, f)
	}
	sort.Strings(paths)

	anc := ancestor.ID()
	for _, f := range paths {
		ch := diff[f]
		n1, fl1 := ch.Old.Node, ch.Old.Flag
		n2, fl2 := ch.New.Node, ch.New.Flag

		switch {
		case ch.InOld && ch.InNew:
			switch {
			case !ma.Has(f):
				fa, ok := bc1.Copy[f]
				if !ok {
					fa, ok = bc2.Copy[f]
				}
				if ok {
					p.Add(f, plan.Merge, plan.MergeArgs{Local: f, Other: f, Base: fa, Ancestor: anc},
						"both renamed from "+fa)
				} else {
					p.Add(f, plan.Merge, plan.MergeArgs{Local: f, Other: f, Ancestor: anc}, "both created")
				}
			case bc1.Copy[f] != "":
				fa := bc1.Copy[f]
				p.Add(f, plan.Merge, plan.MergeArgs{Local: f, Other: fa, Base: fa, Ancestor: anc},
					"local replaced from "+fa)
			case bc2.Copy[f] != "":
				fa := bc2.Copy[f]
				p.Add(f, plan.Merge, plan.MergeArgs{Local: fa, Other: f, Base: fa, Ancestor: anc},
					"other replaced from "+fa)
			default:
				ea, _ := ma.Get(f)
				a, fla := ea.Node, ea.Flag
				noLink := fl1 != manifest.FlagSymlink && fl2 != manifest.FlagSymlink && fla != manifest.FlagSymlink
				switch {
				case n2 == a && fl2 == fla:
					p.Add(f, plan.Keep, nil, "remote unchanged")
				case n1 == a && fl1 == fla:
					if n1 == n2 {
						p.Add(f, plan.Exec, plan.FlagArgs{Flag: fl2}, "update permissions")
					} else {
						p.Add(f, plan.Get, plan.GetArgs{Flag: fl2}, "local unchanged - use remote")
						if opts.BranchMerge {
							p.AddCommitInfo(f, InfoFilenodeSource, "other")
						}
					}
				case noLink && n2 == a:
					p.Add(f, plan.Exec, plan.FlagArgs{Flag: fl2}, "update permissions")
				case noLink && n1 == a:
					p.Add(f, plan.Get, plan.GetArgs{Flag: fl1}, "local unchanged - use remote")
					if opts.BranchMerge {
						p.AddCommitInfo(f, InfoFilenodeSource, "other")
					}
				default:
					p.Add(f, plan.Merge, plan.MergeArgs{Local: f, Other: f, Base: f, Ancestor: anc}, "versions differ")
				}
			}

		case ch.InOld:
			switch {
			case copied2[f]:
				// handled from the remote side
			case bc1.MoveWithDir[f] != "":
				f2 := bc1.MoveWithDir[f]
				if m2.Has(f2) {
					p.Add(f2, plan.Merge, plan.MergeArgs{Local: f, Other: f2, Move: true, Ancestor: anc},
						"remote directory rename, both created")
				} else {
					p.Add(f2, plan.DirRenameMoveLocal, plan.MoveArgs{Source: f, Flag: fl1},
						"remote directory rename - move from "+f)
				}
			case bc1.Copy[f] != "":
				f2 := bc1.Copy[f]
				p.Add(f, plan.Merge, plan.MergeArgs{Local: f, Other: f2, Base: f2, Ancestor: anc},
					"local copied/moved from "+f2)
			case ma.Has(f):
				switch {
				case n1 != ma.Node(f):
					if opts.AcceptRemote {
						p.Add(f, plan.Remove, nil, "remote delete")
					} else {
						p.Add(f, plan.ChangedDeleted, plan.MergeArgs{Local: f, Base: f, Ancestor: anc},
							"prompt changed/deleted")
						if opts.BranchMerge {
							p.AddCommitInfo(f, InfoMergeRemoval, "yes")
						}
					}
				case isAdded(local, f):
					p.Add(f, plan.Forget, nil, "remote deleted")
				default:
					p.Add(f, plan.Remove, nil, "other deleted")
					if opts.BranchMerge {
						p.AddCommitInfo(f, InfoMergeRemoval, "yes")
					}
				}
			default:
				p.Add(f, plan.KeepNew, nil, "ancestor missing, remote missing")
			}

		case ch.InNew:
			switch {
			case copied1[f]:
				// handled from the local side
			case bc2.MoveWithDir[f] != "":
				f2 := bc2.MoveWithDir[f]
				if m1.Has(f2) {
					p.Add(f2, plan.Merge, plan.MergeArgs{Local: f2, Other: f, Ancestor: anc},
						"local directory rename, both created")
				} else {
					p.Add(f2, plan.LocalDirRenameGet, plan.MoveArgs{Source: f, Flag: fl2},
						"local directory rename - get from "+f)
				}
			case bc2.Copy[f] != "":
				f2 := bc2.Copy[f]
				if m2.Has(f2) {
					p.Add(f, plan.Merge, plan.MergeArgs{Local: f2, Other: f, Base: f2, Ancestor: anc},
						"remote copied from "+f2)
				} else {
					p.Add(f, plan.Merge, plan.MergeArgs{Local: f2, Other: f, Base: f2, Move: true, Ancestor: anc},
						"remote moved from "+f2)
				}
			case !ma.Has(f):
				// force  branchmerge  |  action
				//   n         *       |  create
				//   y         n       |  create
				//   y         y       |  create or merge, decided by the
				//                     |  untracked file check
				if opts.Force && opts.BranchMerge {
					p.Add(f, plan.CreatedMerge, plan.CreatedMergeArgs{Flag: fl2, Ancestor: anc},
						"remote created, get or merge")
				} else {
					p.Add(f, plan.Created, plan.FlagArgs{Flag: fl2}, "remote created")
				}
			case n2 != ma.Node(f):
				df := ""
				for _, d := range sortedKeys(bc1.DirMove) {
					if strings.HasPrefix(f, d) {
						df = bc1.DirMove[d] + f[len(d):]
						break
					}
				}
				switch {
				case df != "" && m1.Has(df):
					p.Add(df, plan.Merge, plan.MergeArgs{Local: df, Other: f, Base: f, Ancestor: anc},
						"local directory rename - respect move from "+f)
				case opts.AcceptRemote:
					p.Add(f, plan.Created, plan.FlagArgs{Flag: fl2}, "remote recreating")
				default:
					p.Add(f, plan.DeletedChanged, plan.MergeArgs{Other: f, Base: f, Ancestor: anc},
						"prompt deleted/changed")
					if opts.BranchMerge {
						p.AddCommitInfo(f, InfoMergeRemoval, "yes")
					}
				}
			default:
				p.Add(f, plan.KeepAbsent, nil, "local not present, remote unchanged")
				if opts.BranchMerge {
					p.AddCommitInfo(f, InfoMergeRemoval, "yes")
				}
			}
		}
	}

	if opts.CheckPathConflicts {
		if err := CheckPathConflicts(local, other, p, &opts); err != nil {
			return nil, err
		}
	}

	if !match.IsAlways(opts.Narrow) {
		if err := filterNarrowActions(opts.Narrow, opts.BranchMerge, p); err != nil {
			return nil, err
		}
	}

	renameDelete := make(map[string][]string, len(bc1.RenameDelete)+len(bc2.RenameDelete))
	for k, v := range bc1.RenameDelete {
		renameDelete[k] = v
	}
	for k, v := range bc2.RenameDelete {
		renameDelete[k] = v
	}
	p.SetRenames(copies.Diverge, renameDelete)
	return p, nil
}

func isAdded(r Revision, f string) bool {
	wc, ok := r.(WorkingCopy)
	return ok && wc.Added(f)
}

// sortedKeys returns the keys of m, deepest directory first.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}
