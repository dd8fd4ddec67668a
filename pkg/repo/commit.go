package repo

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/odvcencio/splice/pkg/merge"
	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/object"
)

// ErrNothingChanged is returned by Commit for a clean working copy.
var ErrNothingChanged = errors.New("nothing changed")

// OpenMergeState opens the merge conflict database.
func (r *Repo) OpenMergeState() (*mergestate.Store, error) {
	return mergestate.Open(r.MergeStatePath())
}

// HasMergeState reports whether a merge conflict database exists, without
// creating one.
func (r *Repo) HasMergeState() bool {
	_, err := os.Stat(r.MergeStatePath())
	return err == nil
}

// Commit records the working copy as a new revision whose parents are the
// working copy's parents.
//
//  1. Refuse unresolved conflicts, missing tracked files and clean copies
//  2. Write blobs for added and modified files, then the tree
//  3. Write the commit and advance the current branch, or HEAD if detached
//  4. Mark every tracked file clean against the new revision
func (r *Repo) Commit(message, author string) (object.Hash, error) {
	unlock, err := r.Lock()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	defer unlock()

	wc, err := r.WorkingCopy()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	var ms *mergestate.Store
	if r.HasMergeState() {
		ms, err = r.OpenMergeState()
		if err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
		defer ms.Close()
		n, err := ms.UnresolvedCount()
		if err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
		if n > 0 {
			return "", merge.NewStateError(merge.ErrUnresolvedConflicts,
				"unresolved merge conflicts", "see 'splice resolve'")
		}
	}
	if deleted := wc.Deleted(); len(deleted) > 0 {
		return "", fmt.Errorf("commit: tracked file %q is missing (restore it or use 'splice rm')", deleted[0])
	}
	if !wc.Dirty() {
		return "", ErrNothingChanged
	}

	for p := range wc.scan.disk {
		data, err := wc.Data(p)
		if err != nil {
			return "", fmt.Errorf("commit: read %q: %w", p, err)
		}
		if _, err := r.Store.WriteBlob(&object.Blob{Data: data}); err != nil {
			return "", fmt.Errorf("commit: write blob %q: %w", p, err)
		}
	}

	treeHash, err := r.BuildTree(wc.Manifest())
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	parents := wc.Parents()
	if parents[0] == "" {
		parents = nil
	}
	commitObj := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	reason := "commit: " + firstLine(message)
	if len(parents) > 1 {
		reason = "commit (merge): " + firstLine(message)
	}
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("commit: read HEAD: %w", err)
	}
	// head is either a ref path ("refs/heads/main") or a detached hash.
	if strings.HasPrefix(head, "refs/") {
		var updateErr error
		if p1 := wc.P1(); p1 == "" {
			updateErr = r.UpdateRefCAS(head, commitHash, reason)
		} else {
			updateErr = r.UpdateRefCAS(head, commitHash, reason, p1)
		}
		if updateErr != nil {
			return "", fmt.Errorf("commit: update ref %q: %w", head, updateErr)
		}
	} else if err := r.SetHead("", commitHash, reason); err != nil {
		return "", fmt.Errorf("commit: update detached HEAD: %w", err)
	}

	ds := wc.Dirstate()
	ds.SetParents(commitHash, "")
	for p, e := range ds.Entries {
		if !e.WCTracked {
			delete(ds.Entries, p)
			continue
		}
		_, changed := wc.scan.disk[p]
		e.P1Tracked = true
		e.P2Info = false
		e.CopySource = ""
		e.PossiblyDirty = e.PossiblyDirty || changed
	}
	if err := ds.Save(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	if ms != nil {
		if err := ms.Reset(); err != nil {
			return "", fmt.Errorf("commit: clear merge state: %w", err)
		}
	}
	return commitHash, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Log walks the commit history starting from the given hash, following
// first-parent links, returning up to limit commits in reverse-chronological
// order (newest first).
func (r *Repo) Log(start object.Hash, limit int) ([]*object.CommitObj, error) {
	var commits []*object.CommitObj
	current := start

	for current != "" && len(commits) < limit {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		commits = append(commits, c)

		// Follow first parent.
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	return commits, nil
}
