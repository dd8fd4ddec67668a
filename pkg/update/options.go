// Package update moves a working copy to another revision or merges one
// into it. It checks preconditions, plans with the merge package, guards
// the plan, runs the executor and records the outcome in the tracking
// store.
package update

import (
	"fmt"
	"log/slog"

	"github.com/odvcencio/splice/pkg/apply"
	"github.com/odvcencio/splice/pkg/filemerge"
	"github.com/odvcencio/splice/pkg/match"
	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/object"
	"github.com/odvcencio/splice/pkg/plan"
)

// Check says how a plain update treats local changes.
type Check string

const (
	// CheckNone merges local changes into the destination.
	CheckNone Check = "none"
	// CheckLinear refuses a dirty update to a revision that is neither an
	// ancestor nor a descendant of the working copy.
	CheckLinear Check = "linear"
	// CheckNoConflict refuses a dirty update whose plan needs a merge.
	CheckNoConflict Check = "noconflict"
)

// ParseCheck validates a configured check mode.
func ParseCheck(s string) (Check, error) {
	switch Check(s) {
	case CheckNone, CheckLinear, CheckNoConflict:
		return Check(s), nil
	}
	return "", fmt.Errorf("invalid update check %q (want none, linear or noconflict)", s)
}

// Options describes one update or merge.
type Options struct {
	Target object.Hash
	// Branch, for a plain update, makes HEAD follow this branch afterwards.
	Branch string
	// BranchMerge merges Target into the working copy, leaving two parents.
	BranchMerge bool
	// Force discards local changes on a plain update and skips the clean
	// working copy requirement of a merge.
	Force bool
	// MergeForce turns untracked-file conflicts under Force into merges.
	MergeForce bool
	// MergeAncestor allows merging a descendant of the working copy.
	MergeAncestor bool
	// Ancestor overrides the merge base.
	Ancestor object.Hash
	// Matcher limits the update to some paths. A partial update leaves the
	// tracking store alone.
	Matcher match.Matcher
	Labels  mergestate.Labels
	// UpdateCheck overrides the configured check. Ignored for merges and
	// forced updates.
	UpdateCheck Check
	// WorkingCopy replaces the on-disk working copy, typically with an
	// overlay. Only the on-disk copy has its tracking store updated.
	WorkingCopy apply.Target
	// Merger overrides the configured merge tool.
	Merger filemerge.Merger

	Logger *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Result is the outcome of an update.
type Result struct {
	apply.Stats
	// Warnings collects every user-facing note, in order.
	Warnings []string
	// Plan is the executed plan, nil for a no-op update.
	Plan *plan.Plan
	// Halted is set when the merge tool stopped before every merge ran.
	Halted bool
	// Noop is set when the working copy already was at the target.
	Noop bool
}
