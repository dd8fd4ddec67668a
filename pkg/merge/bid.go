package merge

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/odvcencio/splice/pkg/plan"
)

// bids collects, for one path, the actions proposed by each ancestor,
// grouped by kind in the order the kinds were first seen.
type bids struct {
	kinds  []plan.Kind
	byKind map[plan.Kind][]plan.Action
}

func (b *bids) add(a plan.Action) {
	if b.byKind == nil {
		b.byKind = make(map[plan.Kind][]plan.Action)
	}
	if _, ok := b.byKind[a.Kind]; !ok {
		b.kinds = append(b.kinds, a.Kind)
	}
	b.byKind[a.Kind] = append(b.byKind[a.Kind], a)
}

func (b *bids) has(k plan.Kind) bool {
	_, ok := b.byKind[k]
	return ok
}

func sameAction(a, b plan.Action) bool {
	return a.Kind == b.Kind && a.Args == b.Args && a.Reason == b.Reason
}

func allSame(l []plan.Action) bool {
	for _, a := range l[1:] {
		if !sameAction(a, l[0]) {
			return false
		}
	}
	return true
}

// auction accumulates per-ancestor plans and picks one action per path.
type auction struct {
	log          *slog.Logger
	opts         *Options
	paths        map[string]*bids
	diverge      map[string][]string
	renameDelete map[string][]string
	commitInfo   map[string]map[string]string
}

func newAuction(opts *Options) *auction {
	return &auction{
		log:        opts.logger(),
		opts:       opts,
		paths:      make(map[string]*bids),
		commitInfo: make(map[string]map[string]string),
	}
}

// bid records every action of one ancestor's plan.
func (au *auction) bid(p *plan.Plan) {
	au.diverge = shortestPerSource(au.diverge, p.Diverge())
	au.renameDelete = shortestPerSource(au.renameDelete, p.RenameDelete())
	for path, kv := range p.CommitInfo() {
		m := au.commitInfo[path]
		if m == nil {
			m = make(map[string]string)
			au.commitInfo[path] = m
		}
		for k, v := range kv {
			m[k] = v
		}
	}
	for _, a := range p.Actions() {
		au.log.Debug(fmt.Sprintf(" %s: %s -> %s", a.Path, a.Reason, a.Kind.Code()))
		b := au.paths[a.Path]
		if b == nil {
			b = &bids{}
			au.paths[a.Path] = b
		}
		b.add(a)
	}
}

// shortestPerSource folds next into acc, keeping for every source path
// the destination set with the fewest entries seen so far.
func shortestPerSource(acc, next map[string][]string) map[string][]string {
	if acc == nil {
		acc = make(map[string][]string, len(next))
	}
	for src, dsts := range next {
		if cur, ok := acc[src]; !ok || len(dsts) < len(cur) {
			acc[src] = append([]string(nil), dsts...)
		}
	}
	return acc
}

// settle picks a winning action for every path.
func (au *auction) settle() *plan.Plan {
	out := plan.New()
	paths := make([]string, 0, len(au.paths))
	for f := range au.paths {
		paths = append(paths, f)
	}
	sort.Strings(paths)

	au.log.Info("auction for merging merge bids", "paths", len(paths))
	for _, f := range paths {
		a := au.pick(f, au.paths[f])
		out.Add(a.Path, a.Kind, a.Args, a.Reason)
	}
	out.SetRenames(au.diverge, au.renameDelete)
	for path, kv := range au.commitInfo {
		for k, v := range kv {
			out.AddCommitInfo(path, k, v)
		}
	}
	return out
}

func (au *auction) pick(f string, b *bids) plan.Action {
	note := func(what string) {
		au.log.Info(fmt.Sprintf(" %s: picking '%s' action", f, what))
	}
	if len(b.kinds) == 1 {
		k := b.kinds[0]
		if l := b.byKind[k]; allSame(l) {
			au.log.Info(fmt.Sprintf(" %s: consensus for %s", f, k.Code()))
			return l[0]
		}
	}
	switch {
	case b.has(plan.Keep):
		note("keep")
		return b.byKind[plan.Keep][0]
	case b.has(plan.KeepAbsent):
		note("keep absent")
		return b.byKind[plan.KeepAbsent][0]
	case b.has(plan.ChangedDeleted) && b.has(plan.KeepNew):
		note("changed/deleted")
		return b.byKind[plan.ChangedDeleted][0]
	case b.has(plan.KeepNew):
		note("keep new")
		return b.byKind[plan.KeepNew][0]
	case b.has(plan.DeletedChanged) && b.has(plan.Get):
		note("delete/changed")
		return b.byKind[plan.DeletedChanged][0]
	}
	if gets := b.byKind[plan.Get]; len(gets) > 0 && allSame(gets) {
		note("get")
		return gets[0]
	}

	au.log.Info(fmt.Sprintf(" %s: multiple bids for merge action:", f))
	for _, k := range b.kinds {
		for _, a := range b.byKind[k] {
			au.log.Info(fmt.Sprintf("  %s -> %s", a.Reason, k.Code()))
		}
	}
	k := b.kinds[0]
	au.opts.warn(" %s: ambiguous merge - picked %s action", f, k.Code())
	return b.byKind[k][0]
}

// CalculateUpdates plans a merge of other into local. With one ancestor
// it is ManifestMerge plus the untracked file guard; with several, every
// ancestor bids a plan and an auction picks one action per path. Working
// copy merges then forget files lost locally, and trivially resolvable
// changed/deleted conflicts are settled against the first ancestor.
func CalculateUpdates(local, other Revision, ancestors []Revision, opts Options) (*plan.Plan, error) {
	if len(ancestors) == 0 {
		return nil, fmt.Errorf("merge: no ancestor")
	}
	wc, isWC := local.(WorkingCopy)
	log := opts.logger()

	var p *plan.Plan
	if len(ancestors) == 1 {
		var err error
		p, err = ManifestMerge(local, other, ancestors[0], opts)
		if err != nil {
			return nil, err
		}
		if err := CheckUnknownFiles(local, other, p, &opts); err != nil {
			return nil, err
		}
	} else {
		log.Info("note: merging with multiple ancestors, using bid merge",
			"local", local.String(), "other", other.String())
		au := newAuction(&opts)
		full := opts
		full.ForceFullDiff = true
		// Every ancestor sees the same untracked files; report each
		// warning once.
		seen := make(map[string]bool)
		full.OnWarning = func(msg string) {
			if !seen[msg] && opts.OnWarning != nil {
				opts.OnWarning(msg)
			}
			seen[msg] = true
		}
		for _, anc := range ancestors {
			log.Info("calculating bids for ancestor", "ancestor", anc.String())
			p1, err := ManifestMerge(local, other, anc, full)
			if err != nil {
				return nil, err
			}
			if err := CheckUnknownFiles(local, other, p1, &full); err != nil {
				return nil, err
			}
			au.bid(p1)
		}
		p = au.settle()
	}

	if isWC {
		forgetRemoved(wc, other, opts.BranchMerge, p)
	}
	ResolveTrivial(local, other, ancestors[0], p)
	return p, nil
}
