package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/splice/pkg/dirstate"
	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/merge"
	"github.com/odvcencio/splice/pkg/object"
)

// ErrUnsafePath is returned for paths that escape the working copy, name
// the metadata directory or traverse a symbolic link.
var ErrUnsafePath = errors.New("unsafe path")

// WorkingCopy is the on-disk working directory. Its manifest is the first
// parent's with the local changes found when it was opened applied. It
// implements merge.WorkingCopy and the write operations the executor
// needs.
type WorkingCopy struct {
	repo   *Repo
	ds     *dirstate.Dirstate
	p1     *Revision
	mf     *manifest.Manifest
	scan   *scan
	ignore *IgnoreChecker
}

var _ merge.WorkingCopy = (*WorkingCopy)(nil)

// Dirstate loads the tracking store.
func (r *Repo) Dirstate() (*dirstate.Dirstate, error) {
	return dirstate.Load(r.DirstatePath())
}

// WorkingCopy opens the working directory, scanning tracked files for
// changes.
func (r *Repo) WorkingCopy() (*WorkingCopy, error) {
	ds, err := r.Dirstate()
	if err != nil {
		return nil, fmt.Errorf("working copy: %w", err)
	}
	p1, err := r.Revision(ds.P1())
	if err != nil {
		return nil, fmt.Errorf("working copy: %w", err)
	}
	sc, err := r.scanTracked(ds, p1.Manifest())
	if err != nil {
		return nil, fmt.Errorf("working copy: %w", err)
	}

	mf := p1.Manifest().Clone()
	mf.Walk(func(p string, _ manifest.Entry) {
		if _, ok := ds.Get(p); !ok {
			mf.Delete(p)
		}
	})
	for p, st := range sc.status {
		switch st {
		case StatusRemoved, StatusDeleted:
			mf.Delete(p)
		case StatusAdded, StatusModified:
			mf.Set(p, sc.disk[p])
		}
	}

	return &WorkingCopy{
		repo:   r,
		ds:     ds,
		p1:     p1,
		mf:     mf,
		scan:   sc,
		ignore: NewIgnoreChecker(r.RootDir),
	}, nil
}

func (r *Repo) abs(p string) string {
	return filepath.Join(r.RootDir, filepath.FromSlash(p))
}

func (w *WorkingCopy) ID() object.Hash { return "" }

func (w *WorkingCopy) String() string { return w.p1.String() + "+" }

func (w *WorkingCopy) Manifest() *manifest.Manifest { return w.mf }

// Data reads the current content of path from disk; for a symlink it is the
// link target.
func (w *WorkingCopy) Data(p string) ([]byte, error) {
	abs := w.repo.abs(p)
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, err
	}
	return readWorktreeFile(abs, info)
}

// Flag is the tracked flag of path, or the flag on disk for untracked
// files.
func (w *WorkingCopy) Flag(p string) manifest.Flag {
	if e, ok := w.mf.Get(p); ok {
		return e.Flag
	}
	if info, err := os.Lstat(w.repo.abs(p)); err == nil {
		return flagFromFileInfo(info)
	}
	return manifest.FlagNone
}

func (w *WorkingCopy) Parents() []object.Hash {
	if w.ds.P2() != "" {
		return []object.Hash{w.ds.P1(), w.ds.P2()}
	}
	return []object.Hash{w.ds.P1()}
}

func (w *WorkingCopy) P1() object.Hash { return w.ds.P1() }

func (w *WorkingCopy) P2() object.Hash { return w.ds.P2() }

// Parent is the first parent revision.
func (w *WorkingCopy) Parent() *Revision { return w.p1 }

// Dirstate is the tracking store the working copy was opened with. Changes
// to it are persisted by Save.
func (w *WorkingCopy) Dirstate() *dirstate.Dirstate { return w.ds }

func (w *WorkingCopy) InMemory() bool { return false }

func (w *WorkingCopy) Deleted() []string { return w.withStatus(StatusDeleted) }

func (w *WorkingCopy) Removed() []string { return w.withStatus(StatusRemoved) }

// Modified lists tracked files whose content or flag changed.
func (w *WorkingCopy) Modified() []string { return w.withStatus(StatusModified) }

// AddedFiles lists files tracked in neither parent.
func (w *WorkingCopy) AddedFiles() []string { return w.withStatus(StatusAdded) }

func (w *WorkingCopy) withStatus(want FileStatus) []string {
	var out []string
	for p, st := range w.scan.status {
		if st == want {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Status returns the state of a tracked path; untracked paths report
// StatusUnknown.
func (w *WorkingCopy) Status(p string) FileStatus {
	if st, ok := w.scan.status[p]; ok {
		return st
	}
	return StatusUnknown
}

func (w *WorkingCopy) Added(p string) bool { return w.ds.Added(p) }

func (w *WorkingCopy) CopySource(p string) string {
	if e, ok := w.ds.Get(p); ok {
		return e.CopySource
	}
	return ""
}

// Dirty reports uncommitted changes: a pending merge, or any tracked file
// that is not clean.
func (w *WorkingCopy) Dirty() bool {
	if w.ds.P2() != "" {
		return true
	}
	for _, st := range w.scan.status {
		if st != StatusClean {
			return true
		}
	}
	return false
}

func (w *WorkingCopy) Untracked(p string) bool {
	if w.repo.audit(p) != nil {
		return false
	}
	if _, ok := w.ds.Get(p); ok {
		return false
	}
	info, err := os.Lstat(w.repo.abs(p))
	return err == nil && isFileOrLink(info)
}

func (w *WorkingCopy) Ignored(p string) bool { return w.ignore.IsIgnored(p) }

func (w *WorkingCopy) Exists(p string) bool {
	_, err := os.Lstat(w.repo.abs(p))
	return err == nil
}

func (w *WorkingCopy) IsDir(p string) bool {
	info, err := os.Lstat(w.repo.abs(p))
	return err == nil && info.IsDir()
}

func (w *WorkingCopy) UntrackedUnder(dir string) bool {
	found := false
	root := w.repo.abs(dir)
	_ = filepath.WalkDir(root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return fs.SkipAll
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.repo.RootDir, abs)
		if err != nil {
			return nil
		}
		if _, ok := w.ds.Get(filepath.ToSlash(rel)); !ok {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}

// audit rejects paths the working copy must never write through.
func (r *Repo) audit(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || path.Clean(p) != p {
		return fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." || strings.EqualFold(seg, DirName) {
			return fmt.Errorf("%w: %q contains illegal component %q", ErrUnsafePath, p, seg)
		}
	}
	for _, dir := range manifest.FindDirs(p) {
		info, err := os.Lstat(r.abs(dir))
		if err == nil && info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %q traverses symbolic link %q", ErrUnsafePath, p, dir)
		}
	}
	return nil
}

// clearUnknown removes untracked things in the way of writing p: a
// directory at p, or a file where one of p's parent directories belongs.
func (w *WorkingCopy) clearUnknown(p string) error {
	abs := w.repo.abs(p)
	if info, err := os.Lstat(abs); err == nil && info.IsDir() {
		if err := os.RemoveAll(abs); err != nil {
			return err
		}
	}
	dirs := manifest.FindDirs(p)
	for i := len(dirs) - 1; i >= 0; i-- {
		dabs := w.repo.abs(dirs[i])
		info, err := os.Lstat(dabs)
		if err != nil {
			break
		}
		if isFileOrLink(info) {
			return os.Remove(dabs)
		}
	}
	return nil
}

// Write replaces path with data, as a symlink to data for the symlink
// flag.
func (w *WorkingCopy) Write(p string, data []byte, flag manifest.Flag) error {
	if err := w.repo.audit(p); err != nil {
		return err
	}
	if err := w.clearUnknown(p); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	abs := w.repo.abs(p)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("write %s: mkdir: %w", p, err)
	}

	info, statErr := os.Lstat(abs)
	if statErr == nil && (flag == manifest.FlagSymlink || info.Mode()&fs.ModeSymlink != 0) {
		if err := os.Remove(abs); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	if flag == manifest.FlagSymlink {
		if err := os.Symlink(string(data), abs); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
		return nil
	}

	perm := filePermFromFlag(flag)
	if err := os.WriteFile(abs, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(abs, perm); err != nil {
		return fmt.Errorf("write %s: chmod: %w", p, err)
	}
	return nil
}

// Remove deletes path, then any parent directories left empty. A missing
// file is not an error.
func (w *WorkingCopy) Remove(p string) error {
	if err := w.repo.audit(p); err != nil {
		return err
	}
	abs := w.repo.abs(p)
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	w.repo.removeEmptyParents(filepath.Dir(abs))
	return nil
}

// Rename moves src to dst, creating dst's directory.
func (w *WorkingCopy) Rename(src, dst string) error {
	if err := w.repo.audit(src); err != nil {
		return err
	}
	if err := w.repo.audit(dst); err != nil {
		return err
	}
	dabs := w.repo.abs(dst)
	if err := os.MkdirAll(filepath.Dir(dabs), 0o755); err != nil {
		return fmt.Errorf("rename %s: mkdir: %w", dst, err)
	}
	sabs := w.repo.abs(src)
	if err := os.Rename(sabs, dabs); err != nil {
		return err
	}
	w.repo.removeEmptyParents(filepath.Dir(sabs))
	return nil
}

// SetFlag changes the exec bit, or converts between a file and a symlink
// whose target is the file's content.
func (w *WorkingCopy) SetFlag(p string, flag manifest.Flag) error {
	if err := w.repo.audit(p); err != nil {
		return err
	}
	abs := w.repo.abs(p)
	info, err := os.Lstat(abs)
	if err != nil {
		return fmt.Errorf("set flag %s: %w", p, err)
	}
	isLink := info.Mode()&fs.ModeSymlink != 0
	if isLink == (flag == manifest.FlagSymlink) {
		if isLink {
			return nil
		}
		return os.Chmod(abs, filePermFromFlag(flag))
	}
	data, err := readWorktreeFile(abs, info)
	if err != nil {
		return fmt.Errorf("set flag %s: %w", p, err)
	}
	return w.Write(p, data, flag)
}

// Stat captures the metadata of path as it is on disk now.
func (w *WorkingCopy) Stat(p string) (*dirstate.FileData, error) {
	info, err := os.Lstat(w.repo.abs(p))
	if err != nil {
		return nil, err
	}
	return dirstate.FileDataFromInfo(info), nil
}

// Save persists the tracking store.
func (w *WorkingCopy) Save() error { return w.ds.Save() }

// removeEmptyParents removes empty directories up to (but not including)
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		if dir == r.RootDir || !strings.HasPrefix(dir, r.RootDir) {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}

		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}
