// Package overlay is a working copy held in memory on top of a revision.
// Merges run against it without touching disk or the tracking store, which
// lets callers preview an update or merge two revisions headlessly.
package overlay

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/odvcencio/splice/pkg/dirstate"
	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/merge"
	"github.com/odvcencio/splice/pkg/object"
)

// ErrPathConflict is returned when a write would make a path both a file
// and a directory.
var ErrPathConflict = errors.New("overlay: path conflict")

// Overlay records writes over a base revision. It implements
// merge.WorkingCopy and the executor's write operations. It is safe for
// use by one writer at a time only, which the executor guarantees by
// disabling parallelism when InMemory reports true.
type Overlay struct {
	base merge.Revision

	mu      sync.Mutex
	mf      *manifest.Manifest
	written map[string][]byte
}

var _ merge.WorkingCopy = (*Overlay)(nil)

// New returns an overlay whose initial content is base.
func New(base merge.Revision) *Overlay {
	return &Overlay{
		base:    base,
		mf:      base.Manifest().Clone(),
		written: make(map[string][]byte),
	}
}

func (o *Overlay) ID() object.Hash { return "" }

func (o *Overlay) String() string { return o.base.String() + "+" }

// Manifest is the current state; content ids of written files are the blob
// hashes of their data.
func (o *Overlay) Manifest() *manifest.Manifest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mf
}

func (o *Overlay) Data(p string) ([]byte, error) {
	o.mu.Lock()
	data, ok := o.written[p]
	has := o.mf.Has(p)
	o.mu.Unlock()
	if ok {
		return data, nil
	}
	if !has {
		return nil, fmt.Errorf("overlay: %s: %w", p, object.ErrNotFound)
	}
	return o.base.Data(p)
}

func (o *Overlay) Flag(p string) manifest.Flag {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mf.Flag(p)
}

func (o *Overlay) Parents() []object.Hash { return []object.Hash{o.base.ID()} }

func (o *Overlay) InMemory() bool { return true }

func (o *Overlay) Deleted() []string { return nil }

func (o *Overlay) Removed() []string { return nil }

func (o *Overlay) Added(p string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mf.Has(p) && !o.base.Manifest().Has(p)
}

func (o *Overlay) CopySource(string) string { return "" }

func (o *Overlay) Untracked(string) bool { return false }

func (o *Overlay) Ignored(string) bool { return false }

func (o *Overlay) Exists(p string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mf.Has(p) || o.mf.HasDir(p)
}

func (o *Overlay) IsDir(p string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mf.HasDir(p)
}

func (o *Overlay) UntrackedUnder(string) bool { return false }

// Write stores data at p. It fails instead of replacing a directory or a
// file on one of p's parent directories.
func (o *Overlay) Write(p string, data []byte, flag manifest.Flag) error {
	if p == "" || path.Clean(p) != p || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
		return fmt.Errorf("overlay: invalid path %q", p)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mf.HasDir(p) {
		return fmt.Errorf("%w: %s is a directory", ErrPathConflict, p)
	}
	for _, dir := range manifest.FindDirs(p) {
		if o.mf.Has(dir) {
			return fmt.Errorf("%w: %s conflicts with file %s", ErrPathConflict, p, dir)
		}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	o.written[p] = buf
	o.mf.Set(p, manifest.Entry{Node: object.BlobHash(buf), Flag: flag})
	return nil
}

// Remove deletes p; a missing path is not an error.
func (o *Overlay) Remove(p string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mf.Delete(p)
	delete(o.written, p)
	return nil
}

func (o *Overlay) Rename(src, dst string) error {
	data, err := o.Data(src)
	if err != nil {
		return err
	}
	if err := o.Write(dst, data, o.Flag(src)); err != nil {
		return err
	}
	return o.Remove(src)
}

func (o *Overlay) SetFlag(p string, flag manifest.Flag) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.mf.Get(p)
	if !ok {
		return fmt.Errorf("overlay: set flag %s: %w", p, object.ErrNotFound)
	}
	e.Flag = flag
	o.mf.Set(p, e)
	return nil
}

// Stat returns nil: in-memory files have no metadata worth caching.
func (o *Overlay) Stat(string) (*dirstate.FileData, error) { return nil, nil }

// Changed lists paths whose entry differs from the base, sorted.
func (o *Overlay) Changed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := o.base.Manifest().Diff(o.mf, nil)
	out := make([]string, 0, len(d))
	for p := range d {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Dirty reports whether anything was written or removed.
func (o *Overlay) Dirty() bool { return len(o.Changed()) > 0 }
