package merge

import (
	"github.com/odvcencio/splice/pkg/match"
	"github.com/odvcencio/splice/pkg/plan"
)

// filterNarrowActions drops actions outside the narrow scope. A plain
// update simply ignores them. A branch merge can only drop no-op actions
// and the kinds that are safe to replay later, which are noted in the
// commit info; anything else fails.
func filterNarrowActions(narrow match.Matcher, branchMerge bool, p *plan.Plan) error {
	for _, a := range p.Actions() {
		if narrow.Match(a.Path) {
			continue
		}
		switch {
		case !branchMerge, a.Kind.NoOp():
			p.Remove(a.Path)
		case a.Kind.NarrowSafe():
			p.Remove(a.Path)
			p.AddCommitInfo(a.Path, InfoOutsideNarrowAction, a.Kind.Code())
		default:
			return NewStateError(ErrOutsideNarrow,
				"merge affects file '"+a.Path+"' outside narrow, which is not yet supported",
				"merging in the other direction may work")
		}
	}
	return nil
}
