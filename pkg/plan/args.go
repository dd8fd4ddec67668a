package plan

import (
	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/object"
)

// Args is the kind-specific payload of an action. The set of
// implementations is closed to this package.
type Args interface {
	args()
}

// GetArgs accompanies Get.
type GetArgs struct {
	Flag manifest.Flag
	// Backup asks the executor to keep an untracked file that would be
	// overwritten.
	Backup bool
}

// FlagArgs accompanies Exec and Created.
type FlagArgs struct {
	Flag manifest.Flag
}

// CreatedMergeArgs accompanies CreatedMerge.
type CreatedMergeArgs struct {
	Flag     manifest.Flag
	Ancestor object.Hash
}

// MergeArgs accompanies Merge, ChangedDeleted and DeletedChanged. Local is
// empty when the local side is absent, Other when the other side is.
type MergeArgs struct {
	Local    string
	Other    string
	Base     string
	Move     bool
	Ancestor object.Hash
}

// MoveArgs accompanies DirRenameMoveLocal and LocalDirRenameGet.
type MoveArgs struct {
	Source string
	Flag   manifest.Flag
}

// PathConflictArgs accompanies PathConflict. Origin is "l" when the local
// file was renamed out of the way and "r" when the remote one was.
type PathConflictArgs struct {
	Renamed string
	Origin  string
}

// ConflictResolveArgs accompanies PathConflictResolve.
type ConflictResolveArgs struct {
	Source string
	Origin string
}

func (GetArgs) args()             {}
func (FlagArgs) args()            {}
func (CreatedMergeArgs) args()    {}
func (MergeArgs) args()           {}
func (MoveArgs) args()            {}
func (PathConflictArgs) args()    {}
func (ConflictResolveArgs) args() {}

// FlagOf extracts the flag carried by args, if any.
func FlagOf(a Args) manifest.Flag {
	switch v := a.(type) {
	case GetArgs:
		return v.Flag
	case FlagArgs:
		return v.Flag
	case CreatedMergeArgs:
		return v.Flag
	case MoveArgs:
		return v.Flag
	}
	return manifest.FlagNone
}
