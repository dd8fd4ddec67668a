package plan

import (
	"fmt"
	"sort"
)

// Action is the scheduled operation for a single path.
type Action struct {
	Path   string
	Kind   Kind
	Args   Args
	Reason string
}

func (a Action) String() string {
	return fmt.Sprintf("%s: %s -> %s", a.Path, a.Reason, a.Kind.Code())
}

// Plan maps each path to exactly one action and indexes actions by kind.
//
// A Plan has a single owner at a time: the planner builds it, the guards
// rewrite it in place, and the executor reads it. It is not safe for
// concurrent mutation.
type Plan struct {
	files        map[string]Action
	byKind       map[Kind]map[string]Action
	diverge      map[string][]string
	renameDelete map[string][]string
	commitInfo   map[string]map[string]string
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{
		files:        make(map[string]Action),
		byKind:       make(map[Kind]map[string]Action),
		diverge:      make(map[string][]string),
		renameDelete: make(map[string][]string),
		commitInfo:   make(map[string]map[string]string),
	}
}

// Add schedules kind for path, replacing any previous action for it.
func (p *Plan) Add(path string, kind Kind, args Args, reason string) {
	p.Remove(path)
	a := Action{Path: path, Kind: kind, Args: args, Reason: reason}
	p.files[path] = a
	bucket := p.byKind[kind]
	if bucket == nil {
		bucket = make(map[string]Action)
		p.byKind[kind] = bucket
	}
	bucket[path] = a
}

// Remove drops path from the plan.
func (p *Plan) Remove(path string) {
	old, ok := p.files[path]
	if !ok {
		return
	}
	delete(p.files, path)
	delete(p.byKind[old.Kind], path)
}

// Get returns the action for path.
func (p *Plan) Get(path string) (Action, bool) {
	a, ok := p.files[path]
	return a, ok
}

// Files returns the sorted paths whose action is one of kinds, or every
// path when no kinds are given.
func (p *Plan) Files(kinds ...Kind) []string {
	var out []string
	if len(kinds) == 0 {
		out = make([]string, 0, len(p.files))
		for path := range p.files {
			out = append(out, path)
		}
	} else {
		for _, k := range kinds {
			for path := range p.byKind[k] {
				out = append(out, path)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Actions returns the actions of the given kinds (all when empty), sorted
// by kind in the order given and then by path.
func (p *Plan) Actions(kinds ...Kind) []Action {
	if len(kinds) == 0 {
		kinds = AllKinds()
	}
	var out []Action
	for _, k := range kinds {
		bucket := p.byKind[k]
		start := len(out)
		for _, a := range bucket {
			out = append(out, a)
		}
		group := out[start:]
		sort.Slice(group, func(i, j int) bool { return group[i].Path < group[j].Path })
	}
	return out
}

// Len counts actions of the given kinds, or all actions.
func (p *Plan) Len(kinds ...Kind) int {
	if len(kinds) == 0 {
		return len(p.files)
	}
	n := 0
	for _, k := range kinds {
		n += len(p.byKind[k])
	}
	return n
}

// MapKind re-classifies every action of kind from as kind to. transform,
// when non-nil, supplies the new args and reason.
func (p *Plan) MapKind(from, to Kind, transform func(Action) (Args, string)) {
	for _, a := range p.Actions(from) {
		args, reason := a.Args, a.Reason
		if transform != nil {
			args, reason = transform(a)
		}
		p.Add(a.Path, to, args, reason)
	}
}

// Diverge maps a source path to the destinations it was renamed to on the
// two sides.
func (p *Plan) Diverge() map[string][]string { return p.diverge }

// RenameDelete maps a source path renamed on one side and deleted on the
// other to its destinations.
func (p *Plan) RenameDelete() map[string][]string { return p.renameDelete }

// SetRenames replaces the diverge and rename/delete tables.
func (p *Plan) SetRenames(diverge, renameDelete map[string][]string) {
	p.diverge = copyTable(diverge)
	p.renameDelete = copyTable(renameDelete)
}

func copyTable(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// AddCommitInfo annotates path for the commit that records this merge.
func (p *Plan) AddCommitInfo(path, key, value string) {
	m := p.commitInfo[path]
	if m == nil {
		m = make(map[string]string)
		p.commitInfo[path] = m
	}
	m[key] = value
}

// CommitInfo returns the per-path commit annotations.
func (p *Plan) CommitInfo() map[string]map[string]string { return p.commitInfo }

// HasConflicts reports whether any scheduled action may need a merge
// decision.
func (p *Plan) HasConflicts() bool {
	for k, bucket := range p.byKind {
		if len(bucket) == 0 || k.NoOp() {
			continue
		}
		switch k {
		case Get, Exec, Remove, PathConflictResolve:
			continue
		}
		return true
	}
	return false
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	c := New()
	for _, a := range p.files {
		c.Add(a.Path, a.Kind, a.Args, a.Reason)
	}
	c.SetRenames(p.diverge, p.renameDelete)
	for path, kv := range p.commitInfo {
		for k, v := range kv {
			c.AddCommitInfo(path, k, v)
		}
	}
	return c
}

// CheckInvariants verifies that every path sits in exactly one kind bucket
// and that the bucket agrees with the path index.
func (p *Plan) CheckInvariants() error {
	seen := 0
	for k, bucket := range p.byKind {
		if !k.Valid() && len(bucket) > 0 {
			return fmt.Errorf("plan: invalid kind %d", uint8(k))
		}
		for path, a := range bucket {
			fa, ok := p.files[path]
			if !ok {
				return fmt.Errorf("plan: %s in %s bucket but not indexed", path, k)
			}
			if fa.Kind != k || a.Kind != k {
				return fmt.Errorf("plan: %s indexed as %s but bucketed as %s", path, fa.Kind, k)
			}
			seen++
		}
	}
	if seen != len(p.files) {
		return fmt.Errorf("plan: %d indexed paths but %d bucketed", len(p.files), seen)
	}
	return nil
}
