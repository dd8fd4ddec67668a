package merge

import (
	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/object"
)

// Revision is a read-only snapshot taking part in a merge.
type Revision interface {
	// ID is the revision hash, "" for the null revision and for the
	// working copy.
	ID() object.Hash
	// String is a short tag used in messages and conflict file names.
	String() string
	Manifest() *manifest.Manifest
	Data(path string) ([]byte, error)
	Flag(path string) manifest.Flag
	Parents() []object.Hash
}

// WorkingCopy is the mutable side of a merge. Its manifest is the first
// parent's manifest with local modifications applied; deleted and removed
// files are absent from it.
type WorkingCopy interface {
	Revision
	// InMemory reports that the copy is not backed by a directory, so there
	// are no untracked files and writes are not thread safe.
	InMemory() bool
	// Deleted lists tracked files missing from disk.
	Deleted() []string
	// Removed lists files marked for removal.
	Removed() []string
	// Added reports whether path is tracked but absent from the first parent.
	Added(path string) bool
	// CopySource returns the recorded copy source of path, or "".
	CopySource(path string) string
	// Untracked reports whether path is a file or symlink on disk that is
	// not tracked.
	Untracked(path string) bool
	Ignored(path string) bool
	// Exists reports whether anything, including a dangling symlink, is at
	// path.
	Exists(path string) bool
	IsDir(path string) bool
	// UntrackedUnder reports whether the directory dir holds any file that
	// is not tracked.
	UntrackedUnder(dir string) bool
}

// BranchCopies describes copy information relevant to one side of a merge.
type BranchCopies struct {
	// Copy maps a destination on this side to its source in the base.
	Copy map[string]string
	// RenameDelete maps a source renamed on this side and deleted on the
	// other to its destinations.
	RenameDelete map[string][]string
	// DirMove maps "src/" to "dst/" for directories renamed on this side.
	DirMove map[string]string
	// MoveWithDir maps a file present only on this side to its new path,
	// because the other side moved its directory.
	MoveWithDir map[string]string
}

// Copies is the result of copy tracing between two sides and a base.
type Copies struct {
	Local, Other BranchCopies
	// Diverge maps a source renamed to different destinations on the two
	// sides.
	Diverge map[string][]string
}

// NewCopies returns empty copy information.
func NewCopies() *Copies {
	return &Copies{
		Local:   newBranchCopies(),
		Other:   newBranchCopies(),
		Diverge: map[string][]string{},
	}
}

func newBranchCopies() BranchCopies {
	return BranchCopies{
		Copy:         map[string]string{},
		RenameDelete: map[string][]string{},
		DirMove:      map[string]string{},
		MoveWithDir:  map[string]string{},
	}
}

// CopyTracer computes copies between local, other and their base.
type CopyTracer interface {
	MergeCopies(local, other, base Revision) (*Copies, error)
}

// CopyTracerFunc adapts a function to CopyTracer.
type CopyTracerFunc func(local, other, base Revision) (*Copies, error)

func (f CopyTracerFunc) MergeCopies(local, other, base Revision) (*Copies, error) {
	return f(local, other, base)
}
