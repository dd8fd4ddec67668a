package repo

import (
	"fmt"
	"sync"

	"github.com/odvcencio/splice/pkg/object"
)

type mergeBaseCacheKey struct {
	left  object.Hash
	right object.Hash
}

type mergeBaseCacheEntry struct {
	base  object.Hash
	found bool
}

// mergeBaseTraversalState memoizes what ancestry queries learn about the
// commit graph. Commits are immutable, so entries never go stale.
type mergeBaseTraversalState struct {
	mu sync.RWMutex

	parents     map[object.Hash][]object.Hash
	generations map[object.Hash]uint64
	mergeBases  map[mergeBaseCacheKey]mergeBaseCacheEntry
}

// parentList is the slice of a commit the traversals need.
type parentList struct {
	Parents []object.Hash
}

func newMergeBaseTraversalState() *mergeBaseTraversalState {
	return &mergeBaseTraversalState{
		parents:     make(map[object.Hash][]object.Hash),
		generations: make(map[object.Hash]uint64),
		mergeBases:  make(map[mergeBaseCacheKey]mergeBaseCacheEntry),
	}
}

func canonicalMergeBaseCacheKey(a, b object.Hash) mergeBaseCacheKey {
	if a <= b {
		return mergeBaseCacheKey{left: a, right: b}
	}
	return mergeBaseCacheKey{left: b, right: a}
}

func (s *mergeBaseTraversalState) loadMergeBase(a, b object.Hash) (mergeBaseCacheEntry, bool) {
	key := canonicalMergeBaseCacheKey(a, b)
	s.mu.RLock()
	entry, ok := s.mergeBases[key]
	s.mu.RUnlock()
	return entry, ok
}

func (s *mergeBaseTraversalState) storeMergeBase(a, b, base object.Hash, found bool) {
	key := canonicalMergeBaseCacheKey(a, b)
	s.mu.Lock()
	s.mergeBases[key] = mergeBaseCacheEntry{base: base, found: found}
	s.mu.Unlock()
}

func (s *mergeBaseTraversalState) mergeBaseCacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mergeBases)
}

func (s *mergeBaseTraversalState) readCommit(r *Repo, h object.Hash) (parentList, error) {
	s.mu.RLock()
	cached, ok := s.parents[h]
	s.mu.RUnlock()
	if ok {
		return parentList{Parents: cached}, nil
	}

	commit, err := r.Store.ReadCommit(h)
	if err != nil {
		return parentList{}, fmt.Errorf("ancestry: read commit %s: %w", h, err)
	}

	s.mu.Lock()
	s.parents[h] = commit.Parents
	s.mu.Unlock()
	return parentList{Parents: commit.Parents}, nil
}

func (s *mergeBaseTraversalState) generationCacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.generations)
}

// generation is one more than the highest parent generation; root commits
// have generation 1 and the null revision 0.
func (s *mergeBaseTraversalState) generation(r *Repo, h object.Hash) (uint64, error) {
	return s.generationRecursive(r, h, make(map[object.Hash]bool))
}

func (s *mergeBaseTraversalState) generationRecursive(r *Repo, h object.Hash, visiting map[object.Hash]bool) (uint64, error) {
	if h == "" {
		return 0, nil
	}
	s.mu.RLock()
	g, ok := s.generations[h]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}
	if visiting[h] {
		return 0, fmt.Errorf("ancestry: commit graph cycle detected at %s", h)
	}

	visiting[h] = true
	defer delete(visiting, h)
	commit, err := s.readCommit(r, h)
	if err != nil {
		return 0, err
	}

	var maxParent uint64
	for _, p := range commit.Parents {
		pg, err := s.generationRecursive(r, p, visiting)
		if err != nil {
			return 0, err
		}
		maxParent = max(maxParent, pg)
	}

	s.mu.Lock()
	s.generations[h] = maxParent + 1
	s.mu.Unlock()
	return maxParent + 1, nil
}

type mergeBaseQueueItem struct {
	hash       object.Hash
	generation uint64
}

// mergeBaseMaxHeap pops the highest generation first, then the smallest
// hash.
type mergeBaseMaxHeap []mergeBaseQueueItem

func (h mergeBaseMaxHeap) Len() int { return len(h) }

func (h mergeBaseMaxHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].hash < h[j].hash
	}
	return h[i].generation > h[j].generation
}

func (h mergeBaseMaxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeBaseMaxHeap) Push(x any) { *h = append(*h, x.(mergeBaseQueueItem)) }

func (h *mergeBaseMaxHeap) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}

func (h mergeBaseMaxHeap) Peek() (mergeBaseQueueItem, bool) {
	if len(h) == 0 {
		return mergeBaseQueueItem{}, false
	}
	return h[0], true
}
