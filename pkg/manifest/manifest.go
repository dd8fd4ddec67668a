// Package manifest holds flat path-to-content snapshots of a revision or of
// the working copy.
package manifest

import (
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/splice/pkg/object"
)

// Flag is the type bit of a manifest entry.
type Flag string

const (
	FlagNone    Flag = ""
	FlagExec    Flag = "x"
	FlagSymlink Flag = "l"
)

// FlagFromMode translates a tree mode into a Flag.
func FlagFromMode(mode string) Flag {
	switch mode {
	case object.TreeModeExecutable:
		return FlagExec
	case object.TreeModeSymlink:
		return FlagSymlink
	default:
		return FlagNone
	}
}

// Mode is the tree mode for the flag.
func (f Flag) Mode() string {
	switch f {
	case FlagExec:
		return object.TreeModeExecutable
	case FlagSymlink:
		return object.TreeModeSymlink
	default:
		return object.TreeModeFile
	}
}

// Entry is the content id and flag stored for one path.
type Entry struct {
	Node object.Hash
	Flag Flag
}

// Matcher restricts which paths an operation considers. A nil Matcher
// matches everything.
type Matcher interface {
	Match(path string) bool
}

// Manifest maps repository-relative slash paths to entries. Directories are
// implicit. The zero value is not usable; call New.
type Manifest struct {
	files map[string]Entry
	dirs  map[string]int // lazily built, dir -> number of files below it
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{files: make(map[string]Entry)}
}

// Get returns the entry for p.
func (m *Manifest) Get(p string) (Entry, bool) {
	e, ok := m.files[p]
	return e, ok
}

// Node returns the content id for p, or "" when absent.
func (m *Manifest) Node(p string) object.Hash {
	return m.files[p].Node
}

// Flag returns the flag for p, or FlagNone when absent.
func (m *Manifest) Flag(p string) Flag {
	return m.files[p].Flag
}

// Has reports whether p is a file in the manifest.
func (m *Manifest) Has(p string) bool {
	_, ok := m.files[p]
	return ok
}

// Set records an entry for p.
func (m *Manifest) Set(p string, e Entry) {
	if _, exists := m.files[p]; !exists {
		m.dirs = nil
	}
	m.files[p] = e
}

// Delete removes p.
func (m *Manifest) Delete(p string) {
	if _, exists := m.files[p]; exists {
		delete(m.files, p)
		m.dirs = nil
	}
}

// Len is the number of files.
func (m *Manifest) Len() int { return len(m.files) }

// Paths returns all file paths in sorted order.
func (m *Manifest) Paths() []string {
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Walk calls fn for every file in sorted order.
func (m *Manifest) Walk(fn func(p string, e Entry)) {
	for _, p := range m.Paths() {
		fn(p, m.files[p])
	}
}

func (m *Manifest) buildDirs() {
	if m.dirs != nil {
		return
	}
	m.dirs = make(map[string]int)
	for p := range m.files {
		for _, d := range FindDirs(p) {
			m.dirs[d]++
		}
	}
}

// HasDir reports whether some file lives below dir.
func (m *Manifest) HasDir(dir string) bool {
	m.buildDirs()
	return m.dirs[dir] > 0
}

// Dirs returns every implicit directory in sorted order.
func (m *Manifest) Dirs() []string {
	m.buildDirs()
	out := make([]string, 0, len(m.dirs))
	for d := range m.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (m *Manifest) Clone() *Manifest {
	c := &Manifest{files: make(map[string]Entry, len(m.files))}
	for p, e := range m.files {
		c.files[p] = e
	}
	return c
}

// Filter returns a copy holding only the paths accepted by match.
func (m *Manifest) Filter(match Matcher) *Manifest {
	if match == nil {
		return m.Clone()
	}
	c := New()
	for p, e := range m.files {
		if match.Match(p) {
			c.files[p] = e
		}
	}
	return c
}

// Change describes one differing path between two manifests.
type Change struct {
	Old, New     Entry
	InOld, InNew bool
}

// Diff returns the paths whose entry differs between m and other, limited to
// those accepted by match.
func (m *Manifest) Diff(other *Manifest, match Matcher) map[string]Change {
	out := make(map[string]Change)
	for p, e := range m.files {
		if match != nil && !match.Match(p) {
			continue
		}
		o, ok := other.files[p]
		if ok && o == e {
			continue
		}
		out[p] = Change{Old: e, New: o, InOld: true, InNew: ok}
	}
	for p, o := range other.files {
		if _, ok := m.files[p]; ok {
			continue
		}
		if match != nil && !match.Match(p) {
			continue
		}
		out[p] = Change{New: o, InNew: true}
	}
	return out
}

// FindDirs returns every ancestor directory of p, deepest first.
func FindDirs(p string) []string {
	var dirs []string
	for {
		d := path.Dir(p)
		if d == "." || d == "/" || d == p {
			return dirs
		}
		dirs = append(dirs, d)
		p = d
	}
}

// IsUnder reports whether p is dir or lives below it.
func IsUnder(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, dir+"/")
}
