package repo

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/odvcencio/splice/pkg/object"
)

const (
	maxMergeBaseBFSSteps = 1_000_000
	maxMergeBaseBFSDepth = 1_000_000
)

// These vars allow tests to tighten safety limits without affecting
// production defaults.
var (
	mergeBaseBFSStepsLimit = maxMergeBaseBFSSteps
	mergeBaseBFSDepthLimit = maxMergeBaseBFSDepth
)

type mergeBaseTraversalQueueItem struct {
	hash  object.Hash
	depth int
}

func mergeBaseTraversalLimits() (maxSteps int, maxDepth int) {
	maxSteps = normalizeMergeBaseTraversalLimit(mergeBaseBFSStepsLimit, maxMergeBaseBFSSteps)
	maxDepth = normalizeMergeBaseTraversalLimit(mergeBaseBFSDepthLimit, maxMergeBaseBFSDepth)

	return maxSteps, maxDepth
}

func normalizeMergeBaseTraversalLimit(limit, hardMax int) int {
	// Keep safety defaults as hard bounds; test hooks may only tighten.
	if limit <= 0 || limit > hardMax {
		return hardMax
	}
	return limit
}

func mergeBaseStepsLimitError(limit int) error {
	return fmt.Errorf("ancestry: traversal exceeded maximum steps (%d)", limit)
}

func mergeBaseDepthLimitError(limit int) error {
	return fmt.Errorf("ancestry: traversal exceeded maximum depth (%d)", limit)
}

// MergeBase finds the best common ancestor of two commits: the one with the
// highest generation, ties broken by the smaller hash. It uses cached
// generation numbers for pruning, fast ancestor checks for linear histories,
// and a memoized pair cache for repeated queries. "" means none exists.
func (r *Repo) MergeBase(a, b object.Hash) (object.Hash, error) {
	if a == "" || b == "" {
		return "", nil
	}
	if a == b {
		return a, nil
	}

	state := r.getMergeTraversalState()
	if cached, ok := state.loadMergeBase(a, b); ok {
		if cached.found {
			return cached.base, nil
		}
		return "", nil
	}

	genA, err := state.generation(r, a)
	if err != nil {
		return "", err
	}
	genB, err := state.generation(r, b)
	if err != nil {
		return "", err
	}

	// Fast path: one side already contains the other. The lower generation
	// is the only possible ancestor, so it is tried first.
	gens := map[object.Hash]uint64{a: genA, b: genB}
	order := [2]object.Hash{a, b}
	if genA > genB {
		order = [2]object.Hash{b, a}
	}
	for i, anc := range order {
		desc := order[1-i]
		isAncestor, err := r.isAncestorWithGeneration(state, anc, desc, gens[anc], gens[desc])
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, anc, true)
			return anc, nil
		}
	}

	base, found, err := r.findMergeBaseWithPruning(state, a, b, genA, genB)
	if err != nil {
		return "", err
	}
	state.storeMergeBase(a, b, base, found)
	if !found {
		return "", nil
	}
	return base, nil
}

func (r *Repo) isAncestorWithGeneration(state *mergeBaseTraversalState, ancestor, descendant object.Hash, ancestorGeneration, descendantGeneration uint64) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if ancestorGeneration > descendantGeneration {
		return false, nil
	}

	maxSteps, maxDepth := mergeBaseTraversalLimits()
	visited := map[object.Hash]struct{}{descendant: {}}
	queue := []mergeBaseTraversalQueueItem{{hash: descendant, depth: 0}}
	steps := 0

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxSteps {
			return false, mergeBaseStepsLimitError(maxSteps)
		}
		if item.depth > maxDepth {
			return false, mergeBaseDepthLimitError(maxDepth)
		}

		cur := item.hash
		if cur == ancestor {
			return true, nil
		}

		curGeneration, err := state.generation(r, cur)
		if err != nil {
			return false, err
		}
		if curGeneration <= ancestorGeneration {
			continue
		}

		commit, err := state.readCommit(r, cur)
		if err != nil {
			return false, err
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			parentGeneration, err := state.generation(r, p)
			if err != nil {
				return false, err
			}
			if parentGeneration < ancestorGeneration {
				continue
			}
			childDepth := item.depth + 1
			if childDepth > maxDepth {
				return false, mergeBaseDepthLimitError(maxDepth)
			}
			visited[p] = struct{}{}
			queue = append(queue, mergeBaseTraversalQueueItem{hash: p, depth: childDepth})
		}
	}

	return false, nil
}

func (r *Repo) findMergeBaseWithPruning(state *mergeBaseTraversalState, a, b object.Hash, genA, genB uint64) (object.Hash, bool, error) {
	maxSteps, maxDepth := mergeBaseTraversalLimits()

	visitedA := map[object.Hash]struct{}{a: {}}
	visitedB := map[object.Hash]struct{}{b: {}}
	depthA := map[object.Hash]int{a: 0}
	depthB := map[object.Hash]int{b: 0}

	queueA := mergeBaseMaxHeap{{hash: a, generation: genA}}
	queueB := mergeBaseMaxHeap{{hash: b, generation: genB}}
	heap.Init(&queueA)
	heap.Init(&queueB)

	best := object.Hash("")
	var bestGeneration uint64
	steps := 0

	for queueA.Len() > 0 || queueB.Len() > 0 {
		if best != "" {
			topA, okA := queueA.Peek()
			topB, okB := queueB.Peek()
			if (!okA || topA.generation < bestGeneration) && (!okB || topB.generation < bestGeneration) {
				break
			}
		}

		traverseA := false
		switch {
		case queueA.Len() == 0:
			traverseA = false
		case queueB.Len() == 0:
			traverseA = true
		default:
			topA := queueA[0]
			topB := queueB[0]
			if topA.generation > topB.generation {
				traverseA = true
			} else if topA.generation < topB.generation {
				traverseA = false
			} else {
				traverseA = topA.hash <= topB.hash
			}
		}

		var item mergeBaseQueueItem
		if traverseA {
			item = heap.Pop(&queueA).(mergeBaseQueueItem)
		} else {
			item = heap.Pop(&queueB).(mergeBaseQueueItem)
		}

		steps++
		if steps > maxSteps {
			return "", false, mergeBaseStepsLimitError(maxSteps)
		}
		if best != "" && item.generation < bestGeneration {
			continue
		}

		itemDepth := 0
		if traverseA {
			itemDepth = depthA[item.hash]
		} else {
			itemDepth = depthB[item.hash]
		}
		if itemDepth > maxDepth {
			return "", false, mergeBaseDepthLimitError(maxDepth)
		}

		if traverseA {
			if _, seen := visitedB[item.hash]; seen {
				best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, item.hash, item.generation)
			}
		} else {
			if _, seen := visitedA[item.hash]; seen {
				best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, item.hash, item.generation)
			}
		}

		commit, err := state.readCommit(r, item.hash)
		if err != nil {
			return "", false, err
		}

		for _, p := range commit.Parents {
			if p == "" {
				continue
			}

			parentGeneration, err := state.generation(r, p)
			if err != nil {
				return "", false, err
			}
			if best != "" && parentGeneration < bestGeneration {
				continue
			}

			childDepth := itemDepth + 1
			if childDepth > maxDepth {
				return "", false, mergeBaseDepthLimitError(maxDepth)
			}

			if traverseA {
				if _, seen := visitedA[p]; seen {
					continue
				}
				visitedA[p] = struct{}{}
				depthA[p] = childDepth
				heap.Push(&queueA, mergeBaseQueueItem{hash: p, generation: parentGeneration})
				if _, seen := visitedB[p]; seen {
					best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, p, parentGeneration)
				}
			} else {
				if _, seen := visitedB[p]; seen {
					continue
				}
				visitedB[p] = struct{}{}
				depthB[p] = childDepth
				heap.Push(&queueB, mergeBaseQueueItem{hash: p, generation: parentGeneration})
				if _, seen := visitedA[p]; seen {
					best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, p, parentGeneration)
				}
			}
		}
	}

	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}

func chooseBetterMergeBase(best object.Hash, bestGeneration uint64, candidate object.Hash, candidateGeneration uint64) (object.Hash, uint64) {
	if best == "" {
		return candidate, candidateGeneration
	}
	if candidateGeneration > bestGeneration {
		return candidate, candidateGeneration
	}
	if candidateGeneration < bestGeneration {
		return best, bestGeneration
	}
	if candidate < best {
		return candidate, candidateGeneration
	}
	return best, bestGeneration
}

// IsAncestor reports whether ancestor is reachable from descendant through
// parent links. The null revision is an ancestor of everything.
func (r *Repo) IsAncestor(ancestor, descendant object.Hash) (bool, error) {
	if ancestor == "" {
		return true, nil
	}
	if descendant == "" {
		return false, nil
	}
	state := r.getMergeTraversalState()
	genA, err := state.generation(r, ancestor)
	if err != nil {
		return false, err
	}
	genD, err := state.generation(r, descendant)
	if err != nil {
		return false, err
	}
	return r.isAncestorWithGeneration(state, ancestor, descendant, genA, genD)
}

// Parents returns the parents of a commit. The null revision has none.
func (r *Repo) Parents(id object.Hash) ([]object.Hash, error) {
	if id == "" {
		return nil, nil
	}
	commit, err := r.getMergeTraversalState().readCommit(r, id)
	if err != nil {
		return nil, err
	}
	return commit.Parents, nil
}

// CommonAncestorHeads returns every common ancestor of a and b that is not
// an ancestor of another common ancestor, sorted by hash. Criss-cross
// histories have more than one.
func (r *Repo) CommonAncestorHeads(a, b object.Hash) ([]object.Hash, error) {
	if a == "" || b == "" {
		return nil, nil
	}
	if a == b {
		return []object.Hash{a}, nil
	}

	state := r.getMergeTraversalState()
	ancestorsA, err := r.ancestorSet(state, a)
	if err != nil {
		return nil, err
	}
	ancestorsB, err := r.ancestorSet(state, b)
	if err != nil {
		return nil, err
	}

	generations := make(map[object.Hash]uint64)
	var common []object.Hash
	for h := range ancestorsA {
		if _, ok := ancestorsB[h]; !ok {
			continue
		}
		g, err := state.generation(r, h)
		if err != nil {
			return nil, err
		}
		generations[h] = g
		common = append(common, h)
	}
	sort.Slice(common, func(i, j int) bool {
		gi, gj := generations[common[i]], generations[common[j]]
		if gi != gj {
			return gi > gj
		}
		return common[i] < common[j]
	})

	// Descendants have higher generations, so by the time a commit is
	// reached every common descendant has already covered it.
	covered := make(map[object.Hash]struct{})
	var heads []object.Hash
	for _, h := range common {
		if _, ok := covered[h]; ok {
			continue
		}
		heads = append(heads, h)
		if err := r.coverAncestors(state, h, covered); err != nil {
			return nil, err
		}
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i] < heads[j] })
	return heads, nil
}

func (r *Repo) ancestorSet(state *mergeBaseTraversalState, h object.Hash) (map[object.Hash]struct{}, error) {
	maxSteps, _ := mergeBaseTraversalLimits()
	seen := map[object.Hash]struct{}{h: {}}
	queue := []object.Hash{h}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > maxSteps {
			return nil, mergeBaseStepsLimitError(maxSteps)
		}
		cur := queue[0]
		queue = queue[1:]
		commit, err := state.readCommit(r, cur)
		if err != nil {
			return nil, err
		}
		for _, p := range commit.Parents {
			if _, ok := seen[p]; ok || p == "" {
				continue
			}
			seen[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return seen, nil
}

func (r *Repo) coverAncestors(state *mergeBaseTraversalState, h object.Hash, covered map[object.Hash]struct{}) error {
	maxSteps, _ := mergeBaseTraversalLimits()
	queue := []object.Hash{h}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > maxSteps {
			return mergeBaseStepsLimitError(maxSteps)
		}
		cur := queue[0]
		queue = queue[1:]
		commit, err := state.readCommit(r, cur)
		if err != nil {
			return err
		}
		for _, p := range commit.Parents {
			if _, ok := covered[p]; ok || p == "" {
				continue
			}
			covered[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return nil
}
