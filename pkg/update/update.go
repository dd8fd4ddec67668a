package update

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/splice/pkg/apply"
	"github.com/odvcencio/splice/pkg/copies"
	"github.com/odvcencio/splice/pkg/filemerge"
	"github.com/odvcencio/splice/pkg/match"
	"github.com/odvcencio/splice/pkg/merge"
	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/object"
	"github.com/odvcencio/splice/pkg/repo"
)

// Update moves the working copy to opts.Target, or merges opts.Target into
// it when opts.BranchMerge is set. It holds the working-copy lock for the
// whole operation.
//
//  1. Refuse to run over an interrupted update
//  2. Pick the merge ancestors
//  3. Check the working copy state against the kind of update
//  4. Plan, then guard the plan against conflicts the user did not allow
//  5. Execute, then record parents, file states and HEAD
func Update(ctx context.Context, r *repo.Repo, opts Options) (*Result, error) {
	unlock, err := r.Lock()
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	defer unlock()
	return update(ctx, r, opts)
}

// warnings collects user-facing notes from every stage.
type warnings struct {
	mu   sync.Mutex
	msgs []string
}

func (w *warnings) add(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msg)
}

func (w *warnings) list() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.msgs)
}

func update(ctx context.Context, r *repo.Repo, opts Options) (*Result, error) {
	log := opts.logger()
	cfg := r.Config()
	overwrite := opts.Force && !opts.BranchMerge
	onDisk := opts.WorkingCopy == nil

	if onDisk {
		m, err := readMarker(r.UpdateStatePath())
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		if m != nil && !overwrite {
			return nil, merge.NewStateError(merge.ErrInterruptedUpdate, "",
				"use 'splice recover' or 'splice update --clean' to finish it")
		}
	}

	var (
		wc   apply.Target
		disk *repo.WorkingCopy
	)
	if onDisk {
		w, err := r.WorkingCopy()
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		wc, disk = w, w
	} else {
		wc = opts.WorkingCopy
	}
	dirty := false
	if d, ok := wc.(interface{ Dirty() bool }); ok {
		dirty = d.Dirty()
	}

	parents := wc.Parents()
	p1, err := r.Revision(parents[0])
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	other, err := r.Revision(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	var ms *mergestate.Store
	if onDisk {
		ms, err = r.OpenMergeState()
	} else {
		ms, err = mergestate.Open(mergestate.InMemory)
	}
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	defer ms.Close()

	pas, err := ancestors(r, opts, p1.ID(), other.ID())
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	if !opts.Force {
		if len(parents) > 1 {
			return nil, merge.NewStateError(merge.ErrOutstandingMerge, "",
				"use 'splice commit' or 'splice abort'")
		}
		n, err := ms.UnresolvedCount()
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		if n > 0 {
			return nil, merge.NewStateError(merge.ErrUnresolvedConflicts, "",
				"use 'splice resolve' to resolve")
		}
	}

	check := CheckNone
	if opts.BranchMerge {
		switch {
		case slices.Equal(pas, []object.Hash{other.ID()}):
			return nil, merge.NewStateError(merge.ErrMergeWithAncestor, "", "")
		case slices.Equal(pas, []object.Hash{p1.ID()}) && !opts.MergeAncestor:
			return nil, merge.NewStateError(merge.ErrNothingToMerge, "",
				"use 'splice update' or check 'splice branch'")
		}
		if !opts.Force && dirty {
			return nil, merge.NewStateError(merge.ErrUncommittedChanges, "",
				"use 'splice status' to list changes")
		}
	} else if !overwrite {
		if p1.ID() == other.ID() {
			res := &Result{Noop: true}
			if onDisk {
				if err := moveHead(r, opts, other.ID()); err != nil {
					return nil, fmt.Errorf("update: %w", err)
				}
			}
			return res, nil
		}
		check = opts.UpdateCheck
		if check == "" {
			if check, err = ParseCheck(cfg.Update.Check); err != nil {
				return nil, fmt.Errorf("update: %w", err)
			}
		}
		linear := slices.Equal(pas, []object.Hash{p1.ID()}) || slices.Equal(pas, []object.Hash{other.ID()})
		if check == CheckLinear && !linear && dirty {
			return nil, merge.NewStateError(merge.ErrUncommittedChanges, "",
				"commit or update --clean to discard changes")
		}
	}

	var ancestorRevs []merge.Revision
	switch {
	case overwrite:
		ancestorRevs = []merge.Revision{wc}
	case !opts.BranchMerge:
		ancestorRevs = []merge.Revision{p1}
	default:
		for _, h := range pas {
			rev, err := r.Revision(h)
			if err != nil {
				return nil, fmt.Errorf("update: %w", err)
			}
			ancestorRevs = append(ancestorRevs, rev)
		}
	}

	followCopies := cfg.Merge.FollowCopies
	if overwrite || ancestorRevs[0].ID() == "" || (!opts.BranchMerge && !dirty) {
		followCopies = false
	}

	narrow, err := cfg.NarrowMatcher()
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	checkUnknown, err := merge.ParsePolicy(cfg.Merge.CheckUnknown)
	if err != nil {
		return nil, fmt.Errorf("update: merge.checkunknown: %w", err)
	}
	checkIgnored, err := merge.ParsePolicy(cfg.Merge.CheckIgnored)
	if err != nil {
		return nil, fmt.Errorf("update: merge.checkignored: %w", err)
	}

	var notes warnings
	mopts := merge.Options{
		BranchMerge:        opts.BranchMerge,
		Force:              opts.Force,
		MergeForce:         opts.MergeForce,
		FollowCopies:       followCopies,
		Copies:             copies.New(log),
		Matcher:            opts.Matcher,
		Narrow:             narrow,
		CheckPathConflicts: cfg.Merge.CheckPathConflicts,
		CheckUnknown:       checkUnknown,
		CheckIgnored:       checkIgnored,
		Logger:             log,
		OnWarning:          notes.add,
	}
	p, err := merge.CalculateUpdates(wc, other, ancestorRevs, mopts)
	if err != nil {
		return nil, err
	}

	if check == CheckNoConflict && p.HasConflicts() {
		return nil, merge.NewStateError(merge.ErrConflictingChanges, "",
			"commit or update --clean to discard changes")
	}

	if !r.CaseSensitive() {
		if !opts.BranchMerge && (opts.Force || !dirty) {
			err = merge.CheckCollision(other.Manifest(), nil, narrow)
		} else {
			err = merge.CheckCollision(wc.Manifest(), p, narrow)
		}
		if err != nil {
			return nil, err
		}
	}

	warnRenames(log, &notes, p.Diverge(), "note: possible conflict - %s was renamed multiple times to:")
	warnRenames(log, &notes, p.RenameDelete(), "note: possible conflict - %s was deleted and renamed to:")

	updateDirstate := onDisk && match.IsAlways(opts.Matcher)
	operation := uuid.NewString()
	if updateDirstate {
		m := marker{Target: string(other.ID()), Operation: operation, BranchMerge: opts.BranchMerge}
		if err := writeMarker(r.UpdateStatePath(), m); err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
	}

	merger, err := resolveMerger(r, opts.Merger)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	workers := cfg.Worker.Workers
	if !cfg.Worker.Enabled {
		workers = 1
	}
	labels := opts.Labels
	if labels == (mergestate.Labels{}) {
		labels = mergestate.Labels{Local: "working copy", Other: "destination", Base: "base"}
		if opts.BranchMerge {
			labels.Other = "merge rev"
		}
	}

	log.Debug("applying plan", "target", other.String(), "operation", operation, "actions", p.Len())
	ares, err := apply.Apply(ctx, p, wc, other, ms, r.Store, apply.Options{
		Merger:       merger,
		Workers:      workers,
		Labels:       labels,
		Operation:    operation,
		Ancestors:    ancestorRevs,
		WantFileData: updateDirstate && !opts.BranchMerge,
		Logger:       log,
		OnWarning:    notes.add,
	})
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	if updateDirstate {
		ares.FoldInto(p)
		ares.DropAmbiguous(time.Now())

		ds := disk.Dirstate()
		if opts.BranchMerge {
			ds.SetParents(p1.ID(), other.ID())
		} else {
			ds.SetParents(other.ID(), "")
		}
		ds.RecordUpdates(p, opts.BranchMerge, ares.FileData)
		if err := ds.Save(); err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		if err := removeMarker(r.UpdateStatePath()); err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		if !opts.BranchMerge {
			if err := moveHead(r, opts, other.ID()); err != nil {
				return nil, fmt.Errorf("update: %w", err)
			}
			// failed writes leave nothing for resolve to redo
			if ares.Unresolved == len(ares.Failed) {
				if err := ms.Reset(); err != nil {
					return nil, fmt.Errorf("update: %w", err)
				}
			}
		}
	}

	return &Result{
		Stats:    ares.Stats,
		Warnings: notes.list(),
		Plan:     p,
		Halted:   ares.Halted,
	}, nil
}

// ancestors picks the merge bases of p1 and target. An explicit ancestor
// wins; otherwise merge.preferancestor "*" takes every common ancestor
// head, and a revision naming one of the heads takes that one. The null
// revision stands in when the histories are unrelated.
func ancestors(r *repo.Repo, opts Options, p1, target object.Hash) ([]object.Hash, error) {
	if opts.Ancestor != "" {
		return []object.Hash{opts.Ancestor}, nil
	}
	heads, err := r.CommonAncestorHeads(p1, target)
	if err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return []object.Hash{""}, nil
	}
	pref := strings.TrimSpace(r.Config().Merge.PreferAncestor)
	if pref == "*" || len(heads) == 1 {
		return heads, nil
	}
	if pref != "" {
		if h, err := r.Resolve(pref); err == nil && slices.Contains(heads, h) {
			return []object.Hash{h}, nil
		}
	}
	base, err := r.MergeBase(p1, target)
	if err != nil {
		return nil, err
	}
	return []object.Hash{base}, nil
}

func warnRenames(log *slog.Logger, notes *warnings, table map[string][]string, header string) {
	srcs := make([]string, 0, len(table))
	for src := range table {
		srcs = append(srcs, src)
	}
	slices.Sort(srcs)
	for _, src := range srcs {
		var b strings.Builder
		fmt.Fprintf(&b, header, src)
		for _, dst := range table[src] {
			b.WriteString("\n " + dst)
		}
		log.Warn(b.String())
		notes.add(b.String())
	}
}

// resolveMerger returns override or the configured tool. With
// merge.on-failure "halt", the first unresolved merge stops the rest.
func resolveMerger(r *repo.Repo, override filemerge.Merger) (filemerge.Merger, error) {
	cfg := r.Config().Merge
	m := override
	if m == nil {
		var err error
		if m, err = filemerge.Tool(cfg.Tool); err != nil {
			return nil, err
		}
	}
	if cfg.OnFailure != "halt" {
		return m, nil
	}
	return filemerge.Func(func(ctx context.Context, in filemerge.Input) (filemerge.Result, error) {
		res, err := m.Merge(ctx, in)
		if err == nil && !res.Resolved {
			return res, filemerge.ErrHalt
		}
		return res, err
	}), nil
}

// moveHead points HEAD at target after a plain update. A named branch is
// followed; otherwise HEAD stays put when it already resolves to target and
// is detached at target when it does not.
func moveHead(r *repo.Repo, opts Options, target object.Hash) error {
	reason := "update: moving to " + target.Short()
	if target == "" {
		reason = "update: moving to " + repo.NullSpec
	}
	if opts.Branch != "" {
		return r.SetHead(opts.Branch, target, reason)
	}
	head, err := r.Head()
	if err != nil {
		return err
	}
	if strings.HasPrefix(head, "refs/") {
		cur, err := r.ResolveRef(head)
		if err != nil {
			// unborn branch
			if target == "" {
				return nil
			}
		} else if cur == target {
			return nil
		}
	} else if object.Hash(head) == target {
		return nil
	}
	return r.SetHead("", target, reason)
}
