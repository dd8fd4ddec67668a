package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odvcencio/splice/pkg/apply"
	"github.com/odvcencio/splice/pkg/filemerge"
	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/merge"
	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/object"
	"github.com/odvcencio/splice/pkg/plan"
	"github.com/odvcencio/splice/pkg/repo"
)

// ErrNothingToRecover is returned by Recover when no update was
// interrupted.
var ErrNothingToRecover = errors.New("no interrupted update")

func noMerge() error {
	return merge.NewStateError(merge.ErrNoMergeInProgress, "", "")
}

// Abort discards an uncommitted merge, or the conflicts of an update that
// merged local changes, and returns the working copy to the revision it
// was at before.
func Abort(ctx context.Context, r *repo.Repo, logger *slog.Logger) (*Result, error) {
	unlock, err := r.Lock()
	if err != nil {
		return nil, fmt.Errorf("abort: %w", err)
	}
	defer unlock()

	ds, err := r.Dirstate()
	if err != nil {
		return nil, fmt.Errorf("abort: %w", err)
	}
	target := ds.P1()
	active := false
	if r.HasMergeState() {
		ms, err := r.OpenMergeState()
		if err != nil {
			return nil, fmt.Errorf("abort: %w", err)
		}
		active, err = ms.Active()
		if err == nil && active {
			var local object.Hash
			if local, err = ms.Local(); err == nil {
				target = local
			}
		}
		ms.Close()
		if err != nil {
			return nil, fmt.Errorf("abort: %w", err)
		}
	}
	if ds.P2() == "" && !active {
		return nil, noMerge()
	}
	return update(ctx, r, Options{Target: target, Force: true, Logger: logger})
}

// Recover finishes an update that died midway. An interrupted update is
// redone against its target, discarding whatever it half wrote. An
// interrupted merge cannot be redone from the partial state, so the
// working copy goes back to its first parent and the merge is dropped.
func Recover(ctx context.Context, r *repo.Repo, logger *slog.Logger) (*Result, error) {
	unlock, err := r.Lock()
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	defer unlock()

	m, err := readMarker(r.UpdateStatePath())
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	if m == nil {
		return nil, ErrNothingToRecover
	}
	if !m.BranchMerge {
		return update(ctx, r, Options{Target: object.Hash(m.Target), Force: true, Logger: logger})
	}

	ds, err := r.Dirstate()
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	res, err := update(ctx, r, Options{Target: ds.P1(), Force: true, Logger: logger})
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("note: interrupted merge with %s was abandoned; merge again to redo it",
		object.Hash(m.Target).Short())
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(msg)
	res.Warnings = append(res.Warnings, msg)
	return res, nil
}

// ResolveOptions selects the conflicted files to act on.
type ResolveOptions struct {
	// Paths are files or directories; a directory selects every record
	// under it.
	Paths []string
	// All selects every record.
	All bool
	// Mark and Unmark only change the recorded state; neither runs a
	// merge.
	Mark   bool
	Unmark bool
	Merger filemerge.Merger

	Logger *slog.Logger
}

// ResolveResult is the outcome of Resolve.
type ResolveResult struct {
	apply.Stats
	// Marked lists the paths whose state Mark or Unmark changed.
	Marked   []string
	Warnings []string
}

// Records lists the merge records of the working copy, sorted by path.
// Outside a merge it returns nil.
func Records(r *repo.Repo) ([]*mergestate.Record, error) {
	if !r.HasMergeState() {
		return nil, nil
	}
	ms, err := r.OpenMergeState()
	if err != nil {
		return nil, err
	}
	defer ms.Close()
	if active, err := ms.Active(); err != nil || !active {
		return nil, err
	}
	return ms.Records()
}

// Resolve re-merges, marks or unmarks conflicted files. A re-merge
// resumes from the inputs saved when the conflict was recorded, so it
// works even after the file was edited.
func Resolve(ctx context.Context, r *repo.Repo, opts ResolveOptions) (*ResolveResult, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Mark && opts.Unmark {
		return nil, errors.New("resolve: cannot combine mark and unmark")
	}
	if len(opts.Paths) == 0 && !opts.All {
		return nil, merge.NewStateError(errors.New("no files or directories specified"), "",
			"use --all to re-merge all unresolved files")
	}

	unlock, err := r.Lock()
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	defer unlock()

	if !r.HasMergeState() {
		return nil, noMerge()
	}
	ms, err := r.OpenMergeState()
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	defer ms.Close()
	active, err := ms.Active()
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if !active {
		return nil, noMerge()
	}

	recs, err := ms.Records()
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	var notes warnings
	selected := selectRecords(recs, opts)
	for _, p := range opts.Paths {
		if !matchesAny(recs, p) {
			msg := fmt.Sprintf("%s: no merge record", p)
			log.Warn(msg)
			notes.add(msg)
		}
	}

	out := &ResolveResult{}
	if opts.Mark || opts.Unmark {
		for _, rec := range selected {
			state := markedState(rec, opts.Mark)
			if state == rec.State {
				continue
			}
			if err := ms.SetState(rec.Path, state); err != nil {
				return nil, fmt.Errorf("resolve: %w", err)
			}
			out.Marked = append(out.Marked, rec.Path)
		}
		out.Unresolved, err = ms.UnresolvedCount()
		if err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
		out.Warnings = notes.list()
		return out, nil
	}

	wc, err := r.WorkingCopy()
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	merger, err := resolveMerger(r, opts.Merger)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	paths := make([]string, 0, len(selected))
	for _, rec := range selected {
		if !rec.IsPathConflict() {
			paths = append(paths, rec.Path)
		}
	}
	if len(paths) == 0 {
		out.Warnings = notes.list()
		out.Unresolved, err = ms.UnresolvedCount()
		if err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
		return out, nil
	}
	res, err := apply.ResolvePending(ctx, wc, ms, r.Store, apply.Options{
		Merger:    merger,
		Logger:    log,
		OnWarning: notes.add,
	}, paths...)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	p := plan.New()
	res.FoldInto(p)
	ds := wc.Dirstate()
	ds.RecordUpdates(p, ds.P2() != "", nil)
	if err := ds.Save(); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	out.Stats = res.Stats
	out.Warnings = notes.list()
	return out, nil
}

func selectRecords(recs []*mergestate.Record, opts ResolveOptions) []*mergestate.Record {
	if opts.All {
		return recs
	}
	var out []*mergestate.Record
	for _, rec := range recs {
		for _, p := range opts.Paths {
			if selects(p, rec) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func matchesAny(recs []*mergestate.Record, p string) bool {
	for _, rec := range recs {
		if selects(p, rec) {
			return true
		}
	}
	return false
}

// selects reports whether the path argument p names rec, directly or as a
// directory holding it. "." is the repository root.
func selects(p string, rec *mergestate.Record) bool {
	return p == "." || manifest.IsUnder(rec.Path, p)
}

func markedState(rec *mergestate.Record, resolved bool) mergestate.FileState {
	switch {
	case rec.IsPathConflict() && resolved:
		return mergestate.PathResolved
	case rec.IsPathConflict():
		return mergestate.PathUnresolved
	case resolved:
		return mergestate.Resolved
	}
	return mergestate.Unresolved
}
