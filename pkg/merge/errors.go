package merge

import (
	"errors"
	"strings"
)

// Sentinel errors. Callers classify failures with errors.Is; the engine
// wraps each of them in a *StateError carrying the user-facing message.
var (
	ErrOutstandingMerge    = errors.New("outstanding uncommitted merge")
	ErrUnresolvedConflicts = errors.New("outstanding merge conflicts")
	ErrUncommittedChanges  = errors.New("uncommitted changes")
	ErrMergeWithAncestor   = errors.New("merging with a working directory ancestor has no effect")
	ErrNothingToMerge      = errors.New("nothing to merge")
	ErrUntrackedConflict   = errors.New("untracked files differ")
	ErrInvalidPathConflict = errors.New("destination manifest contains path conflicts")
	ErrCaseCollision       = errors.New("case-folding collision")
	ErrOutsideNarrow       = errors.New("merge affects file outside narrow")
	ErrInterruptedUpdate   = errors.New("last update was interrupted")
	ErrConflictingChanges  = errors.New("conflicting changes")
	ErrLocked              = errors.New("working copy is locked")
	ErrNoMergeInProgress   = errors.New("no merge in progress")
)

// StateError reports a precondition or repository-state failure that the
// caller can fix and retry.
type StateError struct {
	Msg  string
	Hint string
	Err  error
}

func (e *StateError) Error() string {
	if e.Hint == "" {
		return e.Msg
	}
	var b strings.Builder
	b.WriteString(e.Msg)
	b.WriteString(" (")
	b.WriteString(e.Hint)
	b.WriteString(")")
	return b.String()
}

func (e *StateError) Unwrap() error { return e.Err }

// NewStateError builds a StateError around a sentinel. An empty msg uses
// the sentinel's text.
func NewStateError(sentinel error, msg, hint string) *StateError {
	if msg == "" {
		msg = sentinel.Error()
	}
	return &StateError{Msg: msg, Hint: hint, Err: sentinel}
}
