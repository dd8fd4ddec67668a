package merge

import (
	"fmt"
	"strings"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/object"
)

type fakeFile struct {
	data string
	flag manifest.Flag
}

type fakeRev struct {
	id      object.Hash
	tag     string
	files   map[string]fakeFile
	parents []object.Hash
}

// rev builds a revision from "path=content" pairs. A trailing "*x" on the
// content marks the file executable.
func rev(id string, pairs ...string) *fakeRev {
	r := &fakeRev{id: object.Hash(id), tag: id, files: map[string]fakeFile{}}
	for _, p := range pairs {
		path, content, _ := strings.Cut(p, "=")
		f := fakeFile{data: content}
		if c, ok := strings.CutSuffix(content, "*x"); ok {
			f = fakeFile{data: c, flag: manifest.FlagExec}
		}
		r.files[path] = f
	}
	return r
}

func (r *fakeRev) ID() object.Hash        { return r.id }
func (r *fakeRev) String() string         { return r.tag }
func (r *fakeRev) Parents() []object.Hash { return r.parents }

func (r *fakeRev) Manifest() *manifest.Manifest {
	m := manifest.New()
	for p, f := range r.files {
		m.Set(p, manifest.Entry{Node: object.BlobHash([]byte(f.data)), Flag: f.flag})
	}
	return m
}

func (r *fakeRev) Data(p string) ([]byte, error) {
	f, ok := r.files[p]
	if !ok {
		return nil, fmt.Errorf("%s: not found in %s", p, r.tag)
	}
	return []byte(f.data), nil
}

func (r *fakeRev) Flag(p string) manifest.Flag { return r.files[p].flag }

type fakeWC struct {
	*fakeRev
	added     map[string]bool
	deleted   []string
	removed   []string
	copies    map[string]string
	untracked map[string]string
	ignored   map[string]bool
	dirs      map[string]bool
	inMemory  bool
}

func workingCopy(p1 *fakeRev, pairs ...string) *fakeWC {
	r := rev("", pairs...)
	r.tag = p1.tag + "+"
	r.parents = []object.Hash{p1.id}
	return &fakeWC{
		fakeRev:   r,
		added:     map[string]bool{},
		copies:    map[string]string{},
		untracked: map[string]string{},
		ignored:   map[string]bool{},
		dirs:      map[string]bool{},
	}
}

func (w *fakeWC) InMemory() bool             { return w.inMemory }
func (w *fakeWC) Deleted() []string          { return w.deleted }
func (w *fakeWC) Removed() []string          { return w.removed }
func (w *fakeWC) Added(p string) bool        { return w.added[p] }
func (w *fakeWC) CopySource(p string) string { return w.copies[p] }
func (w *fakeWC) Ignored(p string) bool      { return w.ignored[p] }
func (w *fakeWC) IsDir(p string) bool        { return w.dirs[p] }
func (w *fakeWC) Untracked(p string) bool {
	_, ok := w.untracked[p]
	return ok
}

func (w *fakeWC) Exists(p string) bool {
	if _, ok := w.files[p]; ok {
		return true
	}
	return w.Untracked(p) || w.dirs[p]
}

func (w *fakeWC) UntrackedUnder(dir string) bool {
	for p := range w.untracked {
		if manifest.IsUnder(p, dir) && p != dir {
			return true
		}
	}
	return false
}

// Data serves untracked content too, as a disk working copy would.
func (w *fakeWC) Data(p string) ([]byte, error) {
	if c, ok := w.untracked[p]; ok {
		return []byte(c), nil
	}
	return w.fakeRev.Data(p)
}
