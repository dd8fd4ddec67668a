// Package plan holds the per-path action plan produced by the merge planner
// and consumed by the executor.
package plan

import "fmt"

// Kind is the closed set of actions a plan can schedule for a path.
type Kind uint8

const (
	Keep Kind = iota + 1
	KeepNew
	KeepAbsent
	Get
	Exec
	Remove
	Forget
	Add
	AddModified
	Merge
	Created
	CreatedMerge
	ChangedDeleted
	DeletedChanged
	DirRenameMoveLocal
	LocalDirRenameGet
	PathConflict
	PathConflictResolve

	kindEnd
)

var kindCodes = [...]string{
	Keep:                "k",
	KeepNew:             "kn",
	KeepAbsent:          "ka",
	Get:                 "g",
	Exec:                "e",
	Remove:              "r",
	Forget:              "f",
	Add:                 "a",
	AddModified:         "am",
	Merge:               "m",
	Created:             "c",
	CreatedMerge:        "cm",
	ChangedDeleted:      "cd",
	DeletedChanged:      "dc",
	DirRenameMoveLocal:  "dm",
	LocalDirRenameGet:   "dg",
	PathConflict:        "p",
	PathConflictResolve: "pr",
}

var kindNames = [...]string{
	Keep:                "keep",
	KeepNew:             "keep-new",
	KeepAbsent:          "keep-absent",
	Get:                 "get",
	Exec:                "exec",
	Remove:              "remove",
	Forget:              "forget",
	Add:                 "add",
	AddModified:         "add-modified",
	Merge:               "merge",
	Created:             "created",
	CreatedMerge:        "created-merge",
	ChangedDeleted:      "changed-deleted",
	DeletedChanged:      "deleted-changed",
	DirRenameMoveLocal:  "dir-rename-move-local",
	LocalDirRenameGet:   "local-dir-rename-get",
	PathConflict:        "path-conflict",
	PathConflictResolve: "path-conflict-resolve",
}

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, 0, kindEnd-1)
	for k := Keep; k < kindEnd; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k >= Keep && k < kindEnd }

// Code is the short persisted form of the kind ("g", "cd", ...).
func (k Kind) Code() string {
	if !k.Valid() {
		return ""
	}
	return kindCodes[k]
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// NoOp reports whether the kind has no filesystem effect.
func (k Kind) NoOp() bool {
	switch k {
	case Keep, KeepNew, KeepAbsent:
		return true
	}
	return false
}

// NarrowSafe reports whether the action may be dropped for a path outside
// the narrow scope, recording it in commit info instead.
func (k Kind) NarrowSafe() bool {
	switch k {
	case Forget, Remove, Add, AddModified, Get, Created, CreatedMerge, Exec:
		return true
	}
	return false
}

// ParseKind maps a short code back to its kind.
func ParseKind(code string) (Kind, error) {
	for k := Keep; k < kindEnd; k++ {
		if kindCodes[k] == code {
			return k, nil
		}
	}
	return 0, fmt.Errorf("plan: unknown action code %q", code)
}
