package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/odvcencio/splice/pkg/dirstate"
	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/object"
)

// FileStatus is the state of a working-copy file relative to its first
// parent.
type FileStatus int

const (
	StatusClean    FileStatus = iota
	StatusModified            // content or flag differs from the first parent
	StatusAdded               // tracked, in neither parent
	StatusRemoved             // marked for removal
	StatusDeleted             // tracked but missing from disk
	StatusUnknown             // on disk, not tracked
	StatusIgnored             // on disk, not tracked, matched by .spliceignore
)

var statusCodes = [...]string{"C", "M", "A", "R", "!", "?", "I"}

// Code is the one-letter status shown by the CLI.
func (s FileStatus) Code() string { return statusCodes[s] }

// StatusEntry records the status of a single file.
type StatusEntry struct {
	Path       string
	Status     FileStatus
	CopySource string
}

// scan is the state of the tracked files.
type scan struct {
	status map[string]FileStatus
	// disk holds the content id and flag of added and modified files.
	disk map[string]manifest.Entry
	// refreshed is set when a clean file's cached metadata was updated.
	refreshed bool
}

const statusRacyCleanWindow = 2 * time.Second

// scanTracked compares every tracked file against the first parent's
// manifest p1. Clean files whose cached metadata was stale get it
// refreshed in ds.
func (r *Repo) scanTracked(ds *dirstate.Dirstate, p1 *manifest.Manifest) (*scan, error) {
	sc := &scan{status: make(map[string]FileStatus, len(ds.Entries)), disk: make(map[string]manifest.Entry)}

	for p, e := range ds.Entries {
		if e.Removed() {
			sc.status[p] = StatusRemoved
			continue
		}
		if !e.WCTracked {
			continue
		}

		info, err := os.Lstat(r.abs(p))
		if err != nil || !isFileOrLink(info) {
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("status: stat %q: %w", p, err)
			}
			sc.status[p] = StatusDeleted
			continue
		}
		flag := flagFromFileInfo(info)
		pe, inP1 := p1.Get(p)

		if inP1 && !e.P2Info && entryStatMatchesWorktree(e, info, flag == pe.Flag) {
			sc.status[p] = StatusClean
			continue
		}

		node, err := hashWorktreeFile(r.abs(p), info)
		if err != nil {
			return nil, fmt.Errorf("status: read %q: %w", p, err)
		}
		switch {
		case e.Added():
			sc.status[p] = StatusAdded
			sc.disk[p] = manifest.Entry{Node: node, Flag: flag}
		case !inP1 || e.P2Info || node != pe.Node || flag != pe.Flag:
			sc.status[p] = StatusModified
			sc.disk[p] = manifest.Entry{Node: node, Flag: flag}
		default:
			sc.status[p] = StatusClean
			if refreshEntryStat(e, info) {
				sc.refreshed = true
			}
		}
	}
	return sc, nil
}

// hashWorktreeFile hashes a file's content, or a symlink's target.
func hashWorktreeFile(abs string, info fs.FileInfo) (object.Hash, error) {
	data, err := readWorktreeFile(abs, info)
	if err != nil {
		return "", err
	}
	return object.BlobHash(data), nil
}

func readWorktreeFile(abs string, info fs.FileInfo) ([]byte, error) {
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(abs)
		if err != nil {
			return nil, err
		}
		return []byte(filepath.ToSlash(target)), nil
	}
	return os.ReadFile(abs)
}

func entryStatMatchesWorktree(e *dirstate.Entry, info fs.FileInfo, sameFlag bool) bool {
	if !e.HasFileData() || !sameFlag {
		return false
	}
	if e.Size != info.Size() {
		return false
	}
	if e.Mode.Type() != info.Mode().Type() || e.Mode&0o111 != info.Mode()&0o111 {
		return false
	}
	if isRacyCleanModTime(info.ModTime()) {
		return false
	}
	// Some filesystems expose coarse (second-level) mtimes. When nanoseconds are
	// zero, same-size edits inside a second can evade stat-only detection.
	if info.ModTime().Nanosecond() == 0 {
		return false
	}
	return e.MTime == info.ModTime().UnixNano()
}

// refreshEntryStat caches the metadata of a file found clean by content, so
// the next scan can skip reading it.
func refreshEntryStat(e *dirstate.Entry, info fs.FileInfo) bool {
	if isRacyCleanModTime(info.ModTime()) {
		return false
	}
	next := info.ModTime().UnixNano()
	if !e.PossiblyDirty && e.MTime == next && e.Size == info.Size() && e.Mode == info.Mode() {
		return false
	}
	e.PossiblyDirty = false
	e.Mode = info.Mode()
	e.Size = info.Size()
	e.MTime = next
	return true
}

func isRacyCleanModTime(modTime time.Time) bool {
	now := time.Now()
	if modTime.After(now) {
		return true
	}
	return now.Sub(modTime) < statusRacyCleanWindow
}

// Status reports every file that is not clean: tracked files that differ
// from the first parent, and untracked files on disk. Ignored files are
// listed only when listIgnored is set. Entries are sorted by path.
func (r *Repo) Status(listIgnored bool) ([]StatusEntry, error) {
	wc, err := r.WorkingCopy()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	var entries []StatusEntry
	for p, st := range wc.scan.status {
		if st != StatusClean {
			entries = append(entries, StatusEntry{Path: p, Status: st, CopySource: wc.CopySource(p)})
		}
	}

	err = filepath.WalkDir(r.RootDir, func(abs string, d fs.DirEntry, walkErr error) error {
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
			if rel == DirName || (!listIgnored && wc.ignore.IsIgnoredDir(rel)) {
				return fs.SkipDir
			}
			return nil
		}
		if _, tracked := wc.ds.Get(rel); tracked {
			return nil
		}
		switch {
		case !wc.ignore.IsIgnored(rel):
			entries = append(entries, StatusEntry{Path: rel, Status: StatusUnknown})
		case listIgnored:
			entries = append(entries, StatusEntry{Path: rel, Status: StatusIgnored})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("status: walk: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	// Persist refreshed metadata only when nobody else is using the working
	// copy.
	if wc.scan.refreshed {
		if unlock, err := r.Lock(); err == nil {
			err = wc.ds.Save()
			unlock()
			if err != nil {
				return nil, fmt.Errorf("status: refresh dirstate: %w", err)
			}
		}
	}
	return entries, nil
}
