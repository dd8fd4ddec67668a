// Package dirstate tracks which files of the working copy are tracked
// relative to its parents, and the file metadata last seen for them.
package dirstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/object"
)

// Entry records the tracking state of a single file.
type Entry struct {
	Path string `json:"path"`
	// WCTracked: the file is part of the next commit.
	WCTracked bool `json:"wc_tracked,omitempty"`
	// P1Tracked: the file exists in the first parent.
	P1Tracked bool `json:"p1_tracked,omitempty"`
	// P2Info: the file's content came from, or relates to, the second
	// parent.
	P2Info bool `json:"p2_info,omitempty"`
	// PossiblyDirty forces a content comparison on the next status.
	PossiblyDirty bool `json:"possibly_dirty,omitempty"`

	Mode       fs.FileMode `json:"mode,omitempty"`
	Size       int64       `json:"size"`
	MTime      int64       `json:"mtime"`
	CopySource string      `json:"copy_source,omitempty"`
}

// Added reports a file tracked for the next commit that neither parent has.
func (e *Entry) Added() bool { return e.WCTracked && !e.P1Tracked && !e.P2Info }

// Removed reports a parent's file that will not be in the next commit.
func (e *Entry) Removed() bool { return !e.WCTracked && (e.P1Tracked || e.P2Info) }

// Merged reports a file present in both parents whose content was merged.
func (e *Entry) Merged() bool { return e.WCTracked && e.P1Tracked && e.P2Info }

// HasFileData reports whether the cached metadata can decide cleanliness
// without reading the file.
func (e *Entry) HasFileData() bool {
	return !e.PossiblyDirty && !e.P2Info && e.MTime != 0
}

// FileData is the metadata captured right after writing a file.
type FileData struct {
	Mode  fs.FileMode
	Size  int64
	MTime time.Time
}

// FileDataFromInfo captures the metadata of info.
func FileDataFromInfo(info fs.FileInfo) *FileData {
	return &FileData{Mode: info.Mode(), Size: info.Size(), MTime: info.ModTime()}
}

// Ambiguous reports whether the modification time falls in the same second
// as now or later, where a further write could go unnoticed.
func (d *FileData) Ambiguous(now time.Time) bool {
	return !d.MTime.IsZero() && d.MTime.Unix() >= now.Unix()
}

// FileUpdate is the new tracking state of a file. Data, when non-nil,
// caches the metadata of the file as written.
type FileUpdate struct {
	P1Tracked     bool
	WCTracked     bool
	P2Info        bool
	PossiblyDirty bool
	Data          *FileData
}

// Dirstate is the tracking store of a working copy.
type Dirstate struct {
	Parents [2]object.Hash    `json:"parents"`
	Entries map[string]*Entry `json:"entries"`

	path string
}

// New returns an empty dirstate that saves to path.
func New(path string) *Dirstate {
	return &Dirstate{Entries: make(map[string]*Entry), path: path}
}

// Load reads the dirstate at path. A missing file yields an empty
// dirstate.
func Load(path string) (*Dirstate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(path), nil
		}
		return nil, fmt.Errorf("read dirstate: %w", err)
	}

	var ds Dirstate
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("read dirstate: unmarshal: %w", err)
	}
	if ds.Entries == nil {
		ds.Entries = make(map[string]*Entry)
	}
	ds.path = path
	return &ds, nil
}

// Save atomically writes the dirstate back to the path it was loaded from.
func (d *Dirstate) Save() error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("write dirstate: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".dirstate-tmp-*")
	if err != nil {
		return fmt.Errorf("write dirstate: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write dirstate: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write dirstate: close: %w", err)
	}

	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write dirstate: rename: %w", err)
	}
	return nil
}

// SetParents records the working copy's parents. p2 is "" outside a merge.
// Leaving a merge turns merged files into local modifications and files
// from the second parent into additions.
func (d *Dirstate) SetParents(p1, p2 object.Hash) {
	leaving := d.Parents[1] != "" && p2 == ""
	d.Parents = [2]object.Hash{p1, p2}
	if !leaving {
		return
	}
	for p, e := range d.Entries {
		if !e.P2Info {
			continue
		}
		e.P2Info = false
		switch {
		case e.WCTracked && e.P1Tracked:
			e.PossiblyDirty = true
		case !e.WCTracked && !e.P1Tracked:
			delete(d.Entries, p)
		}
	}
}

// P1 returns the first parent.
func (d *Dirstate) P1() object.Hash { return d.Parents[0] }

// P2 returns the second parent, "" outside a merge.
func (d *Dirstate) P2() object.Hash { return d.Parents[1] }

// Get returns the entry for path.
func (d *Dirstate) Get(path string) (*Entry, bool) {
	e, ok := d.Entries[path]
	return e, ok
}

// UpdateFile replaces the tracking state of path. A file tracked nowhere is
// dropped. Any recorded copy source is cleared.
func (d *Dirstate) UpdateFile(path string, u FileUpdate) {
	if !u.P1Tracked && !u.WCTracked && !u.P2Info {
		delete(d.Entries, path)
		return
	}
	e := &Entry{
		Path:          path,
		WCTracked:     u.WCTracked,
		P1Tracked:     u.P1Tracked,
		P2Info:        u.P2Info,
		PossiblyDirty: u.PossiblyDirty,
	}
	if u.Data != nil && !u.PossiblyDirty {
		e.Mode = u.Data.Mode
		e.Size = u.Data.Size
		if !u.Data.MTime.IsZero() {
			e.MTime = u.Data.MTime.UnixNano()
		}
	}
	d.Entries[path] = e
}

// Copy records that dst was copied from src. An empty src clears it.
func (d *Dirstate) Copy(src, dst string) {
	if src == dst {
		return
	}
	e, ok := d.Entries[dst]
	if !ok {
		return
	}
	e.CopySource = src
}

// Tracked lists the files in the next commit, sorted.
func (d *Dirstate) Tracked() []string {
	var out []string
	for p, e := range d.Entries {
		if e.WCTracked {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Added reports whether path is tracked but in neither parent.
func (d *Dirstate) Added(path string) bool {
	e, ok := d.Entries[path]
	return ok && e.Added()
}

// Removed lists files marked for removal, sorted.
func (d *Dirstate) Removed() []string {
	var out []string
	for p, e := range d.Entries {
		if e.Removed() {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Rebuild resets the dirstate to a clean checkout of parent whose files are
// m. Every entry needs a content check on the next status.
func (d *Dirstate) Rebuild(parent object.Hash, m *manifest.Manifest) {
	d.SetParents(parent, "")
	d.Entries = make(map[string]*Entry, m.Len())
	m.Walk(func(p string, _ manifest.Entry) {
		d.Entries[p] = &Entry{Path: p, WCTracked: true, P1Tracked: true, PossiblyDirty: true}
	})
}
