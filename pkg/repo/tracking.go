package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/splice/pkg/dirstate"
)

// ErrNotTracked is returned when removing or moving a file that is not
// tracked.
var ErrNotTracked = errors.New("not tracked")

// Add starts tracking the given paths. Each path is resolved relative to
// the current directory. Directories are walked; ignored files under them
// are skipped, but a file named explicitly is always added. Returns the
// repository paths that became tracked.
func (r *Repo) Add(paths []string) ([]string, error) {
	unlock, err := r.Lock()
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	defer unlock()

	ds, err := r.Dirstate()
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	ignore := NewIgnoreChecker(r.RootDir)

	var added []string
	track := func(rel string) {
		e, ok := ds.Get(rel)
		switch {
		case ok && e.WCTracked:
			return
		case ok:
			// re-adding a removed file
			e.WCTracked = true
			e.PossiblyDirty = true
		default:
			ds.UpdateFile(rel, dirstate.FileUpdate{WCTracked: true, PossiblyDirty: true})
		}
		added = append(added, rel)
	}

	for _, p := range paths {
		relPath, err := r.repoRelPath(p)
		if err != nil {
			return nil, fmt.Errorf("add: resolve path %q: %w", p, err)
		}

		absPath := r.RootDir
		if relPath != "." {
			if err := r.audit(relPath); err != nil {
				return nil, fmt.Errorf("add: %w", err)
			}
			absPath = r.abs(relPath)
		}
		info, err := os.Lstat(absPath)
		if err != nil {
			return nil, fmt.Errorf("add: stat %q: %w", relPath, err)
		}
		if isFileOrLink(info) {
			track(relPath)
			continue
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("add: %q is not a regular file", relPath)
		}

		err = filepath.WalkDir(absPath, func(abs string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			rel, err := filepath.Rel(r.RootDir, abs)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if rel == "." {
				return nil
			}
			if d.IsDir() {
				if ignore.IsIgnoredDir(rel) {
					return fs.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() || d.Type()&fs.ModeSymlink != 0 {
				if !ignore.IsIgnored(rel) {
					track(rel)
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("add: walk %q: %w", relPath, err)
		}
	}

	if err := ds.Save(); err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	sort.Strings(added)
	return added, nil
}

// Remove stops tracking the given files. Files in a parent are marked for
// removal by the next commit; added files are simply forgotten. Unless
// keep is set the files are deleted from disk too.
func (r *Repo) Remove(paths []string, keep bool) error {
	unlock, err := r.Lock()
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	defer unlock()

	ds, err := r.Dirstate()
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	for _, p := range paths {
		rel, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("remove: resolve path %q: %w", p, err)
		}
		if err := r.untrack(ds, rel, keep); err != nil {
			return fmt.Errorf("remove: %w", err)
		}
	}
	if err := ds.Save(); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func (r *Repo) untrack(ds *dirstate.Dirstate, rel string, keep bool) error {
	if err := r.audit(rel); err != nil {
		return err
	}
	e, ok := ds.Get(rel)
	if !ok || !e.WCTracked {
		return fmt.Errorf("%q: %w", rel, ErrNotTracked)
	}
	if e.Added() {
		ds.UpdateFile(rel, dirstate.FileUpdate{})
	} else {
		e.WCTracked = false
		e.CopySource = ""
	}
	if keep {
		return nil
	}
	abs := r.abs(rel)
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	r.removeEmptyParents(filepath.Dir(abs))
	return nil
}

// Move renames a tracked file and records dst as a copy of src's origin so
// the rename can be followed by merges.
func (r *Repo) Move(src, dst string) error {
	unlock, err := r.Lock()
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	defer unlock()

	ds, err := r.Dirstate()
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	srcRel, err := r.repoRelPath(src)
	if err != nil {
		return fmt.Errorf("move: resolve path %q: %w", src, err)
	}
	dstRel, err := r.repoRelPath(dst)
	if err != nil {
		return fmt.Errorf("move: resolve path %q: %w", dst, err)
	}
	for _, p := range []string{srcRel, dstRel} {
		if err := r.audit(p); err != nil {
			return fmt.Errorf("move: %w", err)
		}
	}
	se, ok := ds.Get(srcRel)
	if !ok || !se.WCTracked {
		return fmt.Errorf("move: %q: %w", srcRel, ErrNotTracked)
	}
	if de, ok := ds.Get(dstRel); ok && de.WCTracked {
		return fmt.Errorf("move: %q is already tracked", dstRel)
	}
	if _, err := os.Lstat(r.abs(dstRel)); err == nil {
		return fmt.Errorf("move: %q already exists", dstRel)
	}

	origin := srcRel
	switch {
	case se.CopySource != "":
		origin = se.CopySource
	case se.Added():
		origin = ""
	}

	if err := os.MkdirAll(filepath.Dir(r.abs(dstRel)), 0o755); err != nil {
		return fmt.Errorf("move: mkdir: %w", err)
	}
	if err := os.Rename(r.abs(srcRel), r.abs(dstRel)); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	r.removeEmptyParents(filepath.Dir(r.abs(srcRel)))

	if de, ok := ds.Get(dstRel); ok {
		de.WCTracked = true
		de.PossiblyDirty = true
	} else {
		ds.UpdateFile(dstRel, dirstate.FileUpdate{WCTracked: true, PossiblyDirty: true})
	}
	if origin != "" {
		ds.Copy(origin, dstRel)
	}
	if err := r.untrack(ds, srcRel, true); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	if err := ds.Save(); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	return nil
}

// repoRelPath converts a path (absolute, or relative to CWD) into a path
// relative to the repository root. If the path is already relative and does
// not start with the repo root, it is assumed to already be repo-relative.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		return filepath.ToSlash(rel), nil
	}

	// Try to resolve via CWD.
	cwd, err := os.Getwd()
	if err != nil {
		// Fall through to treating p as repo-relative.
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	abs := filepath.Join(cwd, p)
	// Check if the absolute path lives within the repo root.
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	// If the relative path starts with "..", p is outside the repo.
	// In that case, treat the original p as already repo-relative.
	if len(rel) >= 2 && rel[:2] == ".." {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	return filepath.ToSlash(rel), nil
}
