// Package apply executes a merge plan against a working copy.
//
// Steps run in a fixed order: merge inputs are preserved first, then path
// conflicts are recorded, removals and gets run on a bounded worker pool,
// directory renames and flag changes follow, and content merges run last
// through a filemerge.Merger with their state persisted per path.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/splice/pkg/dirstate"
	"github.com/odvcencio/splice/pkg/filemerge"
	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/merge"
	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/object"
	"github.com/odvcencio/splice/pkg/plan"
)

// Target is a working copy the executor can write to.
type Target interface {
	merge.WorkingCopy
	Write(path string, data []byte, flag manifest.Flag) error
	// Remove deletes path; a missing path is not an error.
	Remove(path string) error
	Rename(src, dst string) error
	SetFlag(path string, flag manifest.Flag) error
	// Stat returns the metadata of a written file, or nil when the target
	// keeps none.
	Stat(path string) (*dirstate.FileData, error)
}

// BlobStore preserves merge inputs so a merge can resume after the working
// copy changed.
type BlobStore interface {
	WriteBlob(b *object.Blob) (object.Hash, error)
	BlobData(h object.Hash) ([]byte, error)
}

// Options controls execution.
type Options struct {
	// Merger resolves content merges. Nil uses the "merge" tool.
	Merger filemerge.Merger
	// Workers bounds the remove and get pools. Zero means one per CPU.
	// In-memory targets always use one.
	Workers int
	Labels  mergestate.Labels
	// Operation identifies the run in the merge state.
	Operation string
	// Ancestors are the revisions merge actions may name as their base.
	Ancestors []merge.Revision
	// WantFileData captures metadata of fetched files for the tracking
	// store.
	WantFileData bool

	Logger    *slog.Logger
	OnWarning func(msg string)
}

// Stats counts what the executor did.
type Stats struct {
	Updated    int
	Merged     int
	Removed    int
	Unresolved int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d files updated, %d files merged, %d files removed, %d files unresolved",
		s.Updated, s.Merged, s.Removed, s.Unresolved)
}

// Result is the outcome of Apply.
type Result struct {
	Stats
	// FileData holds post-write metadata of fetched files. A nil entry
	// means the file must be compared by content.
	FileData map[string]*dirstate.FileData
	// Extras are tracking-store actions required by merge resolutions.
	Extras map[plan.Kind][]string
	// Failed lists fetched files that could not be written. They count as
	// unresolved and stay tracked without metadata.
	Failed []string
	// Halted is set when the merger asked to stop before every merge ran.
	Halted bool
}

// FoldInto adds the extra actions to p, replacing the merge actions they
// resolve. Extra gets carry no metadata.
func (r *Result) FoldInto(p *plan.Plan) {
	for _, k := range plan.AllKinds() {
		for _, f := range r.Extras[k] {
			var args plan.Args
			if k == plan.Get {
				args = plan.GetArgs{}
				if r.FileData != nil {
					r.FileData[f] = nil
				}
			}
			p.Add(f, k, args, "merge result")
		}
	}
}

// DropAmbiguous discards metadata whose modification time is not strictly
// before now; a later write in the same second could go unnoticed.
func (r *Result) DropAmbiguous(now time.Time) {
	for f, fd := range r.FileData {
		if fd != nil && fd.Ambiguous(now) {
			r.FileData[f] = nil
		}
	}
}

var errHalted = errors.New("apply: halted")

type executor struct {
	wc        Target
	other     merge.Revision
	ms        *mergestate.Store
	blobs     BlobStore
	opts      Options
	log       *slog.Logger
	workers   int
	ancestors map[object.Hash]merge.Revision

	mu       sync.Mutex
	fileData map[string]*dirstate.FileData
	moves    []string
	failed   []string
	halted   bool
	stats    Stats
}

func newExecutor(wc Target, other merge.Revision, ms *mergestate.Store, blobs BlobStore, opts Options) *executor {
	e := &executor{
		wc:        wc,
		other:     other,
		ms:        ms,
		blobs:     blobs,
		opts:      opts,
		log:       opts.Logger,
		workers:   opts.Workers,
		ancestors: make(map[object.Hash]merge.Revision),
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.opts.Merger == nil {
		e.opts.Merger, _ = filemerge.Tool("merge")
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if wc.InMemory() {
		e.workers = 1
	}
	for _, a := range opts.Ancestors {
		e.ancestors[a.ID()] = a
	}
	if opts.WantFileData && !wc.InMemory() {
		e.fileData = make(map[string]*dirstate.FileData)
	}
	return e
}

func (e *executor) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.Warn(msg)
	if e.opts.OnWarning != nil {
		e.opts.OnWarning(msg)
	}
}

func (e *executor) note(a plan.Action) {
	e.log.Debug(fmt.Sprintf(" %s: %s -> %s", a.Path, a.Reason, a.Kind.Code()))
}

// Apply executes p against wc, taking new content from other. The merge
// state ms is restarted for this operation. Per-path I/O failures during
// removal are warned; a failed content merge is left unresolved.
func Apply(ctx context.Context, p *plan.Plan, wc Target, other merge.Revision, ms *mergestate.Store, blobs BlobStore, opts Options) (*Result, error) {
	e := newExecutor(wc, other, ms, blobs, opts)

	var p1 object.Hash
	if parents := wc.Parents(); len(parents) > 0 {
		p1 = parents[0]
	}
	if err := ms.Start(p1, other.ID(), opts.Labels, opts.Operation); err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	for f, kv := range p.CommitInfo() {
		for k, v := range kv {
			if err := ms.AddCommitInfo(f, k, v); err != nil {
				return nil, fmt.Errorf("apply: %w", err)
			}
		}
	}

	// Local sides are stored before anything moves or overwrites them.
	for _, a := range p.Actions(plan.Merge, plan.ChangedDeleted, plan.DeletedChanged) {
		if err := e.recordMerge(a); err != nil {
			return nil, fmt.Errorf("apply: record merge %s: %w", a.Path, err)
		}
	}
	for _, f := range e.moves {
		if wc.Exists(f) {
			if err := wc.Remove(f); err != nil {
				return nil, fmt.Errorf("apply: remove moved %s: %w", f, err)
			}
		}
	}

	for _, st := range schedule() {
		acts := p.Actions(st.kind)
		if len(acts) == 0 {
			continue
		}
		err := st.run(ctx, e, acts)
		if errors.Is(err, errHalted) {
			e.halted = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("apply: %s: %w", st.kind, err)
		}
	}

	return e.result()
}

func (e *executor) result() (*Result, error) {
	updated, merged, removed, err := e.ms.Counts()
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	unresolved, err := e.ms.UnresolvedCount()
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	extras, err := e.ms.ExtraActions()
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	st := e.stats
	st.Updated += updated
	st.Merged += merged
	st.Removed += removed
	st.Unresolved = unresolved + len(e.failed)
	sort.Strings(e.failed)
	return &Result{Stats: st, FileData: e.fileData, Extras: extras, Failed: e.failed, Halted: e.halted}, nil
}

func (e *executor) ancestor(id object.Hash) (merge.Revision, error) {
	anc, ok := e.ancestors[id]
	if !ok {
		return nil, fmt.Errorf("unknown ancestor %q", id.Short())
	}
	return anc, nil
}

func (e *executor) storeBlob(data []byte) (object.Hash, error) {
	return e.blobs.WriteBlob(&object.Blob{Data: data})
}

// recordMerge stores all three sides of a merge as blobs and registers the
// path as unresolved.
func (e *executor) recordMerge(a plan.Action) error {
	args, ok := a.Args.(plan.MergeArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T", a.Args)
	}
	rec := mergestate.Record{
		Path:         a.Path,
		LocalPath:    args.Local,
		OtherPath:    args.Other,
		AncestorPath: args.Base,
		AncestorRev:  args.Ancestor,
	}
	if args.Local != "" {
		data, err := e.wc.Data(args.Local)
		if err != nil {
			return err
		}
		if rec.LocalKey, err = e.storeBlob(data); err != nil {
			return err
		}
		rec.LocalFlag = e.wc.Flag(args.Local)
	}
	if args.Other != "" {
		data, err := e.other.Data(args.Other)
		if err != nil {
			return err
		}
		if rec.OtherNode, err = e.storeBlob(data); err != nil {
			return err
		}
		rec.OtherFlag = e.other.Flag(args.Other)
	}
	if args.Base != "" {
		anc, err := e.ancestor(args.Ancestor)
		if err != nil {
			return err
		}
		data, err := anc.Data(args.Base)
		if err != nil {
			return err
		}
		if rec.AncestorNode, err = e.storeBlob(data); err != nil {
			return err
		}
		rec.AncestorFlag = anc.Flag(args.Base)
	}
	if err := e.ms.Add(rec); err != nil {
		return err
	}
	if args.Move && args.Local != a.Path {
		e.moves = append(e.moves, args.Local)
	}
	return nil
}

// parallel runs fn for every action on the worker pool.
func (e *executor) parallel(ctx context.Context, acts []plan.Action, fn func(plan.Action) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, a := range acts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(a)
		})
	}
	return g.Wait()
}

// writeFailed records a path whose new content never reached the working
// copy. It carries no file data, so its tracking entry is compared by
// content.
func (e *executor) writeFailed(f string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, f)
	if e.fileData != nil {
		delete(e.fileData, f)
	}
}

func (e *executor) setFileData(f string, fd *dirstate.FileData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fileData[f] = fd
}
