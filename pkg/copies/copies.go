// Package copies traces renames and copies between the two sides of a merge
// and their common base.
package copies

import (
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/merge"
)

// Tracer detects exact renames and copies: a path that a side added whose
// content and flag equal a base path. Copies recorded by a working copy
// take precedence over detected ones.
type Tracer struct {
	Logger *slog.Logger
}

// New returns a Tracer logging to logger, or to slog.Default when nil.
func New(logger *slog.Logger) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{Logger: logger}
}

var _ merge.CopyTracer = (*Tracer)(nil)

// MergeCopies computes the copy information ManifestMerge consumes.
func (t *Tracer) MergeCopies(local, other, base merge.Revision) (*merge.Copies, error) {
	out := merge.NewCopies()
	m1, m2, mb := local.Manifest(), other.Manifest(), base.Manifest()

	copies1 := PathCopies(base, local)
	copies2 := PathCopies(base, other)
	if len(copies1) == 0 && len(copies2) == 0 {
		return out, nil
	}

	inverse1 := invert(copies1)
	inverse2 := invert(copies2)
	sources := make(map[string]bool, len(inverse1)+len(inverse2))
	for src := range inverse1 {
		sources[src] = true
	}
	for src := range inverse2 {
		sources[src] = true
	}

	for _, src := range sortedKeys(sources) {
		dsts1, dsts2 := inverse1[src], inverse2[src]
		switch {
		case len(dsts1) > 0 && len(dsts2) > 0:
			both := intersect(dsts1, dsts2)
			switch {
			case !m1.Has(src) && !m2.Has(src):
				// Renamed on both sides. Any shared destination means the
				// sides agree.
				if len(both) == 0 {
					out.Diverge[src] = union(dsts1, dsts2)
					continue
				}
				fallthrough
			case m1.Has(src) && m2.Has(src):
				for _, dst := range both {
					out.Local.Copy[dst] = src
					out.Other.Copy[dst] = src
				}
			}
		case len(dsts1) > 0:
			checkSingleSide(src, dsts1, m1, m2, mb, out.Local)
		case len(dsts2) > 0:
			checkSingleSide(src, dsts2, m2, m1, mb, out.Other)
		}
	}

	added1 := addedOnly(m1, m2, mb)
	added2 := addedOnly(m2, m1, mb)
	dirRenames(m1, out.Local, copies1, added2, out.Other)
	dirRenames(m2, out.Other, copies2, added1, out.Local)

	for src, dsts := range out.Diverge {
		t.Logger.Debug("divergent renames", "source", src, "destinations", strings.Join(dsts, ", "))
	}
	for d, nd := range out.Local.DirMove {
		t.Logger.Debug("discovered dir src", "from", d, "to", nd, "side", "local")
	}
	for d, nd := range out.Other.DirMove {
		t.Logger.Debug("discovered dir src", "from", d, "to", nd, "side", "other")
	}
	return out, nil
}

// checkSingleSide handles a source copied only on side 1. A source gone
// from both sides was renamed on one and deleted on the other; a source the
// other side modified must carry that change to the copy.
func checkSingleSide(src string, dsts []string, m1, m2, mb *manifest.Manifest, bc merge.BranchCopies) {
	e2, in2 := m2.Get(src)
	if !in2 {
		if !m1.Has(src) {
			bc.RenameDelete[src] = dsts
		}
		return
	}
	eb, inBase := mb.Get(src)
	if !inBase {
		return
	}
	if eb != e2 {
		for _, dst := range dsts {
			bc.Copy[dst] = src
		}
	}
}

// dirRenames finds directories side moved as a whole, and the files the
// other side added inside them, which must follow the move. The dir move
// belongs to side; the follow-up moves belong to the other side.
func dirRenames(m *manifest.Manifest, side merge.BranchCopies, fullCopy map[string]string, addedOther []string, otherSide merge.BranchCopies) {
	invalid := make(map[string]bool)
	dirMove := make(map[string]string)
	for _, dst := range sortedMapKeys(fullCopy) {
		src := fullCopy[dst]
		dsrc, ddst := dirname(src), dirname(dst)
		switch {
		case invalid[dsrc]:
		case dsrc == "" || m.HasDir(dsrc):
			// the directory was not entirely moved
			invalid[dsrc] = true
		case dirMove[dsrc] != "" && dirMove[dsrc] != ddst:
			// files from one directory went to different places
			invalid[dsrc] = true
		default:
			dirMove[dsrc] = ddst
		}
	}
	for d := range invalid {
		delete(dirMove, d)
	}
	if len(dirMove) == 0 {
		return
	}

	for d, nd := range dirMove {
		side.DirMove[d+"/"] = nd + "/"
	}
	dirs := make([]string, 0, len(side.DirMove))
	for d := range side.DirMove {
		dirs = append(dirs, d)
	}
	// deepest first
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	for _, f := range addedOther {
		if _, copied := fullCopy[f]; copied {
			continue
		}
		for _, d := range dirs {
			if !strings.HasPrefix(f, d) {
				continue
			}
			df := side.DirMove[d] + f[len(d):]
			if _, ok := side.Copy[df]; !ok {
				otherSide.MoveWithDir[f] = df
			}
			break
		}
	}
}

func dirname(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}

// addedOnly lists paths m added relative to base that the other side did
// not also add.
func addedOnly(m, other, base *manifest.Manifest) []string {
	var out []string
	m.Walk(func(p string, _ manifest.Entry) {
		if !base.Has(p) && !other.Has(p) {
			out = append(out, p)
		}
	})
	return out
}

func invert(copies map[string]string) map[string][]string {
	out := make(map[string][]string)
	for _, dst := range sortedMapKeys(copies) {
		src := copies[dst]
		out[src] = append(out[src], dst)
	}
	return out
}

func intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if in[s] {
			out = append(out, s)
		}
	}
	return out
}

func union(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	return sortedKeys(set)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedMapKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
