package copies

import (
	"sort"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/merge"
)

// PathCopies maps each path side added relative to base to the base path it
// was copied or renamed from.
//
// Candidates pair on identical node and flag. Sources the side deleted are
// consumed first, one destination each, in path order; remaining
// destinations are copies of the first surviving source.
func PathCopies(base, side merge.Revision) map[string]string {
	mb, ms := base.Manifest(), side.Manifest()
	out := make(map[string]string)

	wc, _ := side.(merge.WorkingCopy)
	newByKey := make(map[manifest.Entry][]string)
	ms.Walk(func(p string, e manifest.Entry) {
		if mb.Has(p) {
			return
		}
		if wc != nil {
			if src := wc.CopySource(p); src != "" && mb.Has(src) {
				out[p] = src
				return
			}
		}
		newByKey[e] = append(newByKey[e], p)
	})
	if len(newByKey) == 0 {
		return out
	}

	removedByKey := make(map[manifest.Entry][]string)
	keptByKey := make(map[manifest.Entry][]string)
	mb.Walk(func(p string, e manifest.Entry) {
		if _, ok := newByKey[e]; !ok {
			return
		}
		if ms.Has(p) {
			keptByKey[e] = append(keptByKey[e], p)
		} else {
			removedByKey[e] = append(removedByKey[e], p)
		}
	})

	for key, dsts := range newByKey {
		removed := removedByKey[key]
		kept := keptByKey[key]
		if len(removed) == 0 && len(kept) == 0 {
			continue
		}
		sort.Strings(dsts)
		n := min(len(dsts), len(removed))
		for i := 0; i < n; i++ {
			out[dsts[i]] = removed[i]
		}
		var fallback string
		switch {
		case len(kept) > 0:
			fallback = kept[0]
		case len(removed) > 0:
			fallback = removed[0]
		}
		for _, dst := range dsts[n:] {
			out[dst] = fallback
		}
	}
	return out
}
