package merge

import (
	"bytes"

	"github.com/odvcencio/splice/pkg/plan"
)

// forgetRemoved schedules files the working copy lost for forgetting, so
// they do not resurrect from the other side's manifest.
func forgetRemoved(wc WorkingCopy, other Revision, branchMerge bool, p *plan.Plan) {
	m2 := other.Manifest()
	for _, f := range wc.Deleted() {
		if m2.Has(f) {
			continue
		}
		if branchMerge {
			p.Add(f, plan.Remove, nil, "forget deleted")
		} else {
			p.Add(f, plan.Forget, nil, "forget deleted")
		}
	}
	if branchMerge {
		return
	}
	for _, f := range wc.Removed() {
		if !m2.Has(f) {
			p.Add(f, plan.Forget, nil, "forget removed")
		}
	}
}

// ResolveTrivial settles changed/deleted conflicts whose changed side is
// identical to the ancestor: the deletion wins.
func ResolveTrivial(local, other, ancestor Revision, p *plan.Plan) {
	ma := ancestor.Manifest()
	for _, a := range p.Actions(plan.ChangedDeleted) {
		if ma.Has(a.Path) && sameContent(local, ancestor, a.Path) {
			p.Add(a.Path, plan.Remove, nil, "prompt same")
		}
	}
	for _, a := range p.Actions(plan.DeletedChanged) {
		if ma.Has(a.Path) && sameContent(other, ancestor, a.Path) {
			p.Remove(a.Path)
		}
	}
}

func sameContent(r, ancestor Revision, f string) bool {
	if r.Flag(f) != ancestor.Flag(f) {
		return false
	}
	d1, err := r.Data(f)
	if err != nil {
		return false
	}
	d2, err := ancestor.Data(f)
	if err != nil {
		return false
	}
	return bytes.Equal(d1, d2)
}
