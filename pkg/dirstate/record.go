package dirstate

import "github.com/odvcencio/splice/pkg/plan"

// RecordUpdates applies the tracking-state consequences of an executed
// plan. fileData holds metadata for files written by plain gets; a nil
// value, or a missing path, leaves the file to be compared by content.
func (d *Dirstate) RecordUpdates(p *plan.Plan, branchMerge bool, fileData map[string]*FileData) {
	// removals first
	for _, f := range p.Files(plan.Remove) {
		d.UpdateFile(f, FileUpdate{P1Tracked: branchMerge})
	}
	for _, f := range p.Files(plan.Forget) {
		d.UpdateFile(f, FileUpdate{})
	}

	for _, a := range p.Actions(plan.PathConflictResolve) {
		args := a.Args.(plan.ConflictResolveArgs)
		d.UpdateFile(a.Path, FileUpdate{WCTracked: true})
		d.Copy(args.Origin, a.Path)
		d.UpdateFile(args.Source, FileUpdate{P1Tracked: args.Source == args.Origin})
	}

	for _, f := range p.Files(plan.Add) {
		d.UpdateFile(f, FileUpdate{WCTracked: true})
	}
	for _, f := range p.Files(plan.AddModified) {
		if branchMerge {
			d.UpdateFile(f, FileUpdate{P1Tracked: true, WCTracked: true, PossiblyDirty: true})
		} else {
			d.UpdateFile(f, FileUpdate{WCTracked: true})
		}
	}
	for _, f := range p.Files(plan.Exec) {
		d.UpdateFile(f, FileUpdate{P1Tracked: true, WCTracked: true, PossiblyDirty: true})
	}

	for _, f := range p.Files(plan.Get) {
		if branchMerge {
			old, ok := d.Entries[f]
			p1 := ok && (old.WCTracked || old.P1Tracked || old.P2Info) && !old.Added()
			d.UpdateFile(f, FileUpdate{P1Tracked: p1, WCTracked: true, P2Info: true})
		} else {
			d.UpdateFile(f, FileUpdate{P1Tracked: true, WCTracked: true, Data: fileData[f]})
		}
	}

	for _, a := range p.Actions(plan.Merge) {
		args := a.Args.(plan.MergeArgs)
		f := a.Path
		if branchMerge {
			d.UpdateFile(f, FileUpdate{P1Tracked: args.Local == f, WCTracked: true, P2Info: true})
			if args.Local != args.Other {
				if args.Move {
					d.UpdateFile(args.Local, FileUpdate{P1Tracked: true})
				}
				if args.Local != f {
					d.Copy(args.Local, f)
				} else {
					d.Copy(args.Other, f)
				}
			}
			continue
		}
		// An update merged local changes in; the result reads as a local
		// modification of the new parent's file.
		if args.Other == f {
			d.UpdateFile(f, FileUpdate{P1Tracked: true, WCTracked: true, PossiblyDirty: true})
		}
		if args.Move {
			d.UpdateFile(args.Local, FileUpdate{})
		}
	}

	for _, a := range p.Actions(plan.DirRenameMoveLocal) {
		src := a.Args.(plan.MoveArgs).Source
		if branchMerge {
			d.UpdateFile(a.Path, FileUpdate{WCTracked: true})
			d.UpdateFile(src, FileUpdate{P1Tracked: true})
			d.Copy(src, a.Path)
		} else {
			d.UpdateFile(a.Path, FileUpdate{P1Tracked: true, WCTracked: true})
			d.UpdateFile(src, FileUpdate{})
		}
	}
	for _, a := range p.Actions(plan.LocalDirRenameGet) {
		src := a.Args.(plan.MoveArgs).Source
		if branchMerge {
			d.UpdateFile(a.Path, FileUpdate{WCTracked: true})
			d.Copy(src, a.Path)
		} else {
			d.UpdateFile(a.Path, FileUpdate{P1Tracked: true, WCTracked: true})
		}
	}
}
