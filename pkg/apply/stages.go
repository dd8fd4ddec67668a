package apply

import (
	"context"
	"fmt"
	"sort"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/plan"
)

type step int

const (
	stepPathConflict step = iota
	stepRemove
	stepResolvePathConflict
	stepGet
	stepBookkeeping
	stepDirRename
	stepExec
	stepMerge
)

type stage struct {
	step step
	run  func(ctx context.Context, e *executor, acts []plan.Action) error
}

// stages maps every action kind to the step that executes it.
var stages = map[plan.Kind]stage{
	plan.Keep:                {stepBookkeeping, bookkeeping},
	plan.KeepNew:             {stepBookkeeping, bookkeeping},
	plan.KeepAbsent:          {stepBookkeeping, bookkeeping},
	plan.Forget:              {stepBookkeeping, bookkeeping},
	plan.Add:                 {stepBookkeeping, bookkeeping},
	plan.AddModified:         {stepBookkeeping, bookkeeping},
	plan.PathConflict:        {stepPathConflict, recordPathConflicts},
	plan.Remove:              {stepRemove, removeFiles},
	plan.PathConflictResolve: {stepResolvePathConflict, resolvePathConflicts},
	plan.Get:                 {stepGet, getFiles},
	plan.Created:             {stepGet, unplanned},
	plan.CreatedMerge:        {stepGet, unplanned},
	plan.DirRenameMoveLocal:  {stepDirRename, moveLocal},
	plan.LocalDirRenameGet:   {stepDirRename, getRenamed},
	plan.Exec:                {stepExec, setFlags},
	plan.Merge:               {stepMerge, mergeFiles},
	plan.ChangedDeleted:      {stepMerge, mergeFiles},
	plan.DeletedChanged:      {stepMerge, mergeFiles},
}

type scheduled struct {
	kind plan.Kind
	run  func(ctx context.Context, e *executor, acts []plan.Action) error
}

// schedule orders the kinds by step, and by declaration within a step.
func schedule() []scheduled {
	kinds := plan.AllKinds()
	sort.SliceStable(kinds, func(i, j int) bool {
		return stages[kinds[i]].step < stages[kinds[j]].step
	})
	out := make([]scheduled, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, scheduled{kind: k, run: stages[k].run})
	}
	return out
}

func bookkeeping(_ context.Context, e *executor, acts []plan.Action) error {
	for _, a := range acts {
		e.note(a)
	}
	return nil
}

// Created and CreatedMerge are settled by the planner's guards.
func unplanned(_ context.Context, _ *executor, acts []plan.Action) error {
	return fmt.Errorf("%s was not settled by planning", acts[0].Path)
}

func recordPathConflicts(_ context.Context, e *executor, acts []plan.Action) error {
	for _, a := range acts {
		e.note(a)
		args := a.Args.(plan.PathConflictArgs)
		e.warn("%s: path conflict - a file or link has the same name as a directory", a.Path)
		if args.Origin == "l" {
			e.warn("the local file has been renamed to %s", args.Renamed)
		} else {
			e.warn("the remote file has been renamed to %s", args.Renamed)
		}
		e.warn("resolve manually then use 'splice resolve --mark %s'", a.Path)
		if err := e.ms.AddPathConflict(a.Path, args.Renamed, args.Origin); err != nil {
			return err
		}
	}
	return nil
}

func removeFiles(ctx context.Context, e *executor, acts []plan.Action) error {
	err := e.parallel(ctx, acts, func(a plan.Action) error {
		e.note(a)
		if err := e.wc.Remove(a.Path); err != nil {
			e.warn("update failed to remove %s: %v!", a.Path, err)
		}
		return nil
	})
	e.stats.Removed += len(acts)
	return err
}

// resolvePathConflicts moves files renamed out of a directory's way. It
// runs before any get that needs the freed name.
func resolvePathConflicts(_ context.Context, e *executor, acts []plan.Action) error {
	for _, a := range acts {
		e.note(a)
		args := a.Args.(plan.ConflictResolveArgs)
		if !e.wc.Exists(args.Source) {
			continue
		}
		e.log.Info(fmt.Sprintf("moving %s to %s", args.Source, a.Path))
		if err := e.wc.Rename(args.Source, a.Path); err != nil {
			return err
		}
	}
	return nil
}

func getFiles(ctx context.Context, e *executor, acts []plan.Action) error {
	err := e.parallel(ctx, acts, func(a plan.Action) error {
		e.note(a)
		args := a.Args.(plan.GetArgs)
		if args.Backup {
			if err := e.backup(a.Path); err != nil {
				return err
			}
		}
		data, err := e.other.Data(a.Path)
		if err != nil {
			return err
		}
		if err := e.wc.Write(a.Path, data, args.Flag); err != nil {
			e.warn("update failed to write %s: %v!", a.Path, err)
			e.writeFailed(a.Path)
			return nil
		}
		if e.fileData != nil {
			fd, err := e.wc.Stat(a.Path)
			if err != nil {
				fd = nil
			}
			e.setFileData(a.Path, fd)
		}
		e.mu.Lock()
		e.stats.Updated++
		e.mu.Unlock()
		return nil
	})
	return err
}

// backup renames whatever is in the way of writing f, the file itself or a
// file standing where one of its directories should be, to a .orig name.
func (e *executor) backup(f string) error {
	conflicting := f
	if !e.wc.Exists(f) {
		for _, dir := range manifest.FindDirs(f) {
			if e.wc.Exists(dir) && !e.wc.IsDir(dir) {
				conflicting = dir
				break
			}
		}
	}
	if !e.wc.Exists(conflicting) {
		return nil
	}
	orig := conflicting + ".orig"
	e.log.Info(fmt.Sprintf("backing up %s to %s", conflicting, orig))
	return e.wc.Rename(conflicting, orig)
}

func moveLocal(_ context.Context, e *executor, acts []plan.Action) error {
	for _, a := range acts {
		e.note(a)
		args := a.Args.(plan.MoveArgs)
		e.log.Info(fmt.Sprintf("moving %s to %s", args.Source, a.Path))
		data, err := e.wc.Data(args.Source)
		if err != nil {
			return err
		}
		if err := e.wc.Write(a.Path, data, args.Flag); err != nil {
			return err
		}
		if err := e.wc.Remove(args.Source); err != nil {
			return err
		}
	}
	e.stats.Updated += len(acts)
	return nil
}

func getRenamed(_ context.Context, e *executor, acts []plan.Action) error {
	for _, a := range acts {
		e.note(a)
		args := a.Args.(plan.MoveArgs)
		e.log.Info(fmt.Sprintf("getting %s to %s", args.Source, a.Path))
		data, err := e.other.Data(args.Source)
		if err != nil {
			return err
		}
		if err := e.wc.Write(a.Path, data, args.Flag); err != nil {
			return err
		}
	}
	e.stats.Updated += len(acts)
	return nil
}

func setFlags(_ context.Context, e *executor, acts []plan.Action) error {
	for _, a := range acts {
		e.note(a)
		if err := e.wc.SetFlag(a.Path, plan.FlagOf(a.Args)); err != nil {
			return err
		}
	}
	e.stats.Updated += len(acts)
	return nil
}

func mergeFiles(ctx context.Context, e *executor, acts []plan.Action) error {
	if e.halted {
		return errHalted
	}
	for _, a := range acts {
		e.note(a)
		rec, err := e.ms.Get(a.Path)
		if err != nil {
			return err
		}
		if rec.State != mergestate.Unresolved {
			continue
		}
		if err := e.resolve(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
