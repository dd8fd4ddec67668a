package merge

import (
	"fmt"
	"log/slog"

	"github.com/odvcencio/splice/pkg/match"
)

// Policy says what to do when an untracked file would be overwritten.
type Policy string

const (
	PolicyAbort  Policy = "abort"
	PolicyWarn   Policy = "warn"
	PolicyIgnore Policy = "ignore"
)

// ParsePolicy validates a configured policy. Empty means abort.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return PolicyAbort, nil
	case PolicyAbort, PolicyWarn, PolicyIgnore:
		return Policy(s), nil
	}
	return "", fmt.Errorf("invalid policy %q (want abort, warn or ignore)", s)
}

// Options controls planning.
type Options struct {
	// BranchMerge merges other into the working copy, leaving two parents.
	// Otherwise the working copy jumps to other.
	BranchMerge bool
	// Force discards or overwrites local state where the plan allows it.
	Force bool
	// MergeForce turns untracked-file conflicts under Force into merges.
	MergeForce bool
	// AcceptRemote takes the other side for changed/deleted conflicts.
	AcceptRemote bool
	// FollowCopies enables copy tracing through Copies.
	FollowCopies bool
	Copies       CopyTracer
	// ForceFullDiff disables the ancestor-diff restriction of the scan.
	ForceFullDiff bool
	// Matcher limits the merge to a subset of paths. Nil matches all.
	Matcher match.Matcher
	// Narrow is the working copy's narrow scope. Nil means not narrowed.
	Narrow             match.Matcher
	CheckPathConflicts bool
	CheckUnknown       Policy
	CheckIgnored       Policy

	Logger *slog.Logger
	// OnWarning receives every user-facing warning.
	OnWarning func(msg string)
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	o.logger().Warn(msg)
	if o.OnWarning != nil {
		o.OnWarning(msg)
	}
}
