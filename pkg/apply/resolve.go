package apply

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/odvcencio/splice/pkg/diff3"
	"github.com/odvcencio/splice/pkg/filemerge"
	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/plan"
)

// ResolvePending runs the merger over records left unresolved by an
// earlier Apply, limited to paths when any are given. Records already
// resolved are never handed to the merger again; a record interrupted
// mid-resolution is retried.
func ResolvePending(ctx context.Context, wc Target, ms *mergestate.Store, blobs BlobStore, opts Options, paths ...string) (*Result, error) {
	e := newExecutor(wc, nil, ms, blobs, opts)
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}
	recs, err := ms.Records()
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	for _, rec := range recs {
		if len(want) > 0 && !want[rec.Path] {
			continue
		}
		if rec.State != mergestate.Unresolved && rec.State != mergestate.Resolving {
			continue
		}
		err := e.resolve(ctx, rec)
		if errors.Is(err, errHalted) {
			e.halted = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("apply: resolve %s: %w", rec.Path, err)
		}
	}
	return e.result()
}

func (e *executor) input(rec *mergestate.Record) (filemerge.Input, error) {
	in := filemerge.Input{Path: rec.Path}
	labels, err := e.ms.Labels()
	if err != nil {
		return in, err
	}
	in.Labels = diff3.Labels{Local: labels.Local, Base: labels.Base, Other: labels.Other}
	if in.Labels.Local == "" {
		in.Labels.Local = diff3.DefaultLabels.Local
	}
	if in.Labels.Base == "" {
		in.Labels.Base = diff3.DefaultLabels.Base
	}
	if in.Labels.Other == "" {
		in.Labels.Other = diff3.DefaultLabels.Other
	}

	in.Local.Absent = rec.LocalKey == ""
	if !in.Local.Absent {
		if in.Local.Data, err = e.blobs.BlobData(rec.LocalKey); err != nil {
			return in, fmt.Errorf("local: %w", err)
		}
		in.Local.Flag = rec.LocalFlag
	}
	in.Other.Absent = rec.OtherNode == ""
	if !in.Other.Absent {
		if in.Other.Data, err = e.blobs.BlobData(rec.OtherNode); err != nil {
			return in, fmt.Errorf("other: %w", err)
		}
		in.Other.Flag = rec.OtherFlag
	}
	in.Base.Absent = rec.AncestorNode == ""
	if !in.Base.Absent {
		if in.Base.Data, err = e.blobs.BlobData(rec.AncestorNode); err != nil {
			return in, fmt.Errorf("base: %w", err)
		}
		in.Base.Flag = rec.AncestorFlag
	}
	return in, nil
}

// resolve merges one record and persists the outcome. Only a halt request,
// a cancelled context or a failure of the merge state itself is returned;
// merger failures leave the record unresolved.
func (e *executor) resolve(ctx context.Context, rec *mergestate.Record) error {
	f := rec.Path
	if err := e.ms.SetState(f, mergestate.Resolving); err != nil {
		return err
	}
	in, err := e.input(rec)
	if err != nil {
		e.warn("merging %s failed: %v", f, err)
		return e.ms.SetState(f, mergestate.Unresolved)
	}

	if !in.Local.Absent && !in.Other.Absent &&
		in.Local.Flag == in.Other.Flag && bytes.Equal(in.Local.Data, in.Other.Data) {
		if rec.LocalPath != f {
			if err := e.wc.Write(f, in.Local.Data, in.Local.Flag); err != nil {
				e.warn("merging %s failed: %v", f, err)
				return e.ms.SetState(f, mergestate.Unresolved)
			}
		}
		if err := e.ms.SetResult(f, mergestate.ResultNone, 0); err != nil {
			return err
		}
		return e.ms.SetState(f, mergestate.Resolved)
	}

	e.log.Info(fmt.Sprintf("merging %s", f))
	res, err := e.opts.Merger.Merge(ctx, in)
	switch {
	case errors.Is(err, filemerge.ErrHalt):
		if err := e.ms.SetState(f, mergestate.Unresolved); err != nil {
			return err
		}
		return errHalted
	case err != nil && ctx.Err() != nil:
		if err := e.ms.SetState(f, mergestate.Unresolved); err != nil {
			return err
		}
		return ctx.Err()
	case err != nil:
		e.warn("merging %s failed: %v", f, err)
		if err := e.ms.SetResult(f, mergestate.ResultConflict, 0); err != nil {
			return err
		}
		return e.ms.SetState(f, mergestate.Unresolved)
	}

	if res.Deleted {
		err = e.wc.Remove(f)
	} else {
		err = e.wc.Write(f, res.Data, res.Flag)
	}
	if err != nil {
		e.warn("merging %s failed: %v", f, err)
		return e.ms.SetState(f, mergestate.Unresolved)
	}

	if !res.Resolved {
		e.warn("warning: conflicts while merging %s! (edit, then use 'splice resolve --mark')", f)
		if err := e.ms.SetResult(f, mergestate.ResultConflict, 0); err != nil {
			return err
		}
		return e.ms.SetState(f, mergestate.Unresolved)
	}
	if err := e.ms.SetResult(f, mergestate.ResultClean, e.resultAction(f, in, res)); err != nil {
		return err
	}
	return e.ms.SetState(f, mergestate.Resolved)
}

// resultAction is the tracking-store follow-up of a resolution that picked
// a side of a changed/deleted conflict. Plain merges need none.
func (e *executor) resultAction(f string, in filemerge.Input, res filemerge.Result) plan.Kind {
	switch {
	case res.Deleted && in.Local.Absent:
		return plan.Forget
	case res.Deleted:
		return plan.Remove
	case in.Local.Absent:
		return plan.Get
	case in.Other.Absent:
		if e.wc.Added(f) {
			return plan.Add
		}
		return plan.AddModified
	}
	return 0
}
