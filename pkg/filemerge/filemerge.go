// Package filemerge resolves the content of a single path that both sides
// of a merge changed.
package filemerge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/splice/pkg/diff3"
	"github.com/odvcencio/splice/pkg/manifest"
)

// ErrHalt tells the executor to stop resolving and leave the remaining
// merges pending.
var ErrHalt = errors.New("merge halted")

// Side is one version of the file being merged.
type Side struct {
	Data []byte
	Flag manifest.Flag
	// Absent marks a side where the file does not exist.
	Absent bool
}

// Input is everything a merger needs to resolve one path.
type Input struct {
	Path               string
	Local, Other, Base Side
	Labels             diff3.Labels
}

// Result is the outcome of a merge. An unresolved result still carries the
// content to leave in the working copy.
type Result struct {
	Resolved bool
	Data     []byte
	Flag     manifest.Flag
	// Deleted means the resolution removes the file.
	Deleted bool
}

// Merger resolves a single path.
type Merger interface {
	Merge(ctx context.Context, in Input) (Result, error)
}

// Func adapts a function to Merger.
type Func func(ctx context.Context, in Input) (Result, error)

func (f Func) Merge(ctx context.Context, in Input) (Result, error) { return f(ctx, in) }

type tool struct {
	name  string
	merge func(in Input) Result
}

func (t tool) Merge(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return t.merge(in), nil
}

func (t tool) String() string { return t.name }

var tools = map[string]tool{
	"merge": {name: "merge", merge: mergeTool(diff3.StyleMerge)},
	"union": {name: "union", merge: mergeTool(diff3.StyleUnion)},
	"local": {name: "local", merge: takeSide(func(in Input) Side { return in.Local })},
	"other": {name: "other", merge: takeSide(func(in Input) Side { return in.Other })},
	"fail":  {name: "fail", merge: failTool},
}

// Tool returns the built-in merger called name: merge, union, local, other
// or fail.
func Tool(name string) (Merger, error) {
	t, ok := tools[name]
	if !ok {
		return nil, fmt.Errorf("filemerge: unknown tool %q (want one of %v)", name, ToolNames())
	}
	return t, nil
}

// ToolNames lists the built-in tools in sorted order.
func ToolNames() []string {
	names := make([]string, 0, len(tools))
	for n := range tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func mergeTool(style diff3.Style) func(Input) Result {
	return func(in Input) Result {
		if in.Local.Absent || in.Other.Absent {
			// changed/deleted is a decision, not a content merge
			return Result{Data: in.Local.Data, Flag: in.Local.Flag, Deleted: in.Local.Absent}
		}
		flag, _ := MergeFlags(in.Local.Flag, in.Other.Flag, in.Base.Flag, !in.Base.Absent)
		if data, ok := trivial(in); ok {
			return Result{Resolved: true, Data: data, Flag: flag}
		}
		if isBinary(in.Local.Data) || isBinary(in.Other.Data) || isBinary(in.Base.Data) {
			return Result{Data: in.Local.Data, Flag: flag}
		}
		r := diff3.Merge(in.Base.Data, in.Local.Data, in.Other.Data, diff3.Options{Style: style, Labels: in.Labels})
		return Result{Resolved: style == diff3.StyleUnion || !r.HasConflicts(), Data: r.Merged, Flag: flag}
	}
}

// trivial settles merges where at most one side changed.
func trivial(in Input) ([]byte, bool) {
	switch {
	case bytes.Equal(in.Local.Data, in.Other.Data):
		return in.Local.Data, true
	case in.Base.Absent:
		return nil, false
	case bytes.Equal(in.Base.Data, in.Local.Data):
		return in.Other.Data, true
	case bytes.Equal(in.Base.Data, in.Other.Data):
		return in.Local.Data, true
	}
	return nil, false
}

func takeSide(pick func(Input) Side) func(Input) Result {
	return func(in Input) Result {
		s := pick(in)
		if s.Absent {
			return Result{Resolved: true, Deleted: true}
		}
		return Result{Resolved: true, Data: s.Data, Flag: s.Flag}
	}
}

func failTool(in Input) Result {
	return Result{Data: in.Local.Data, Flag: in.Local.Flag, Deleted: in.Local.Absent}
}

// MergeFlags picks the merged flag. If exactly one side changed the flag
// relative to base, that side wins. ok is false when both sides changed it
// differently, or there is no base and they differ; local is kept then.
func MergeFlags(local, other, base manifest.Flag, hasBase bool) (manifest.Flag, bool) {
	switch {
	case local == other:
		return local, true
	case !hasBase:
		return local, false
	case local == base:
		return other, true
	case other == base:
		return local, true
	}
	return local, false
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}
