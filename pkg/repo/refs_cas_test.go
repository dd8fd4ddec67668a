package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/splice/pkg/object"
)

func TestUpdateRefCAS_SingleWinner(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	base := object.Hash(strings.Repeat("a", 64))
	if err := r.UpdateRef("refs/heads/topic", base, "start"); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	const workers = 16
	var wins atomic.Int32
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			next := object.Hash(fmt.Sprintf("%064x", i+1))
			err := r.UpdateRefCAS("refs/heads/topic", next, "race", base)
			switch {
			case err == nil:
				wins.Add(1)
				return nil
			case errors.Is(err, ErrRefCASMismatch):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected UpdateRefCAS error: %v", err)
	}
	if n := wins.Load(); n != 1 {
		t.Fatalf("winners = %d, want 1", n)
	}

	got, err := r.ResolveRef("refs/heads/topic")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got == base {
		t.Fatalf("ref still at the base hash")
	}
	entries, err := r.ReadReflog("topic", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 || entries[0].OldHash != base || entries[0].NewHash != got {
		t.Fatalf("reflog = %+v, want start then the single winning move", entries)
	}
}

func TestUpdateRefCAS_MismatchLeavesNoLock(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	cur := object.Hash(strings.Repeat("b", 64))
	if err := r.UpdateRef("refs/heads/topic", cur, "start"); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	err = r.UpdateRefCAS("refs/heads/topic", object.Hash(strings.Repeat("c", 64)), "stale", object.Hash(strings.Repeat("d", 64)))
	if !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("err = %v, want ErrRefCASMismatch", err)
	}
	if _, err := os.Stat(filepath.Join(r.Dir, "refs", "heads", "topic.lock")); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind: %v", err)
	}
	if got, _ := r.ResolveRef("topic"); got != cur {
		t.Fatalf("ref moved to %s on a mismatch", got)
	}
}

func TestCreateBranch_Concurrent(t *testing.T) {
	r := initRepoWithFile(t, "a.txt", []byte("one\n"))
	head, err := r.Commit("one", "tester")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var wins, dups atomic.Int32
	var g errgroup.Group
	for range 12 {
		g.Go(func() error {
			err := r.CreateBranch("topic", head)
			switch {
			case err == nil:
				wins.Add(1)
			case strings.Contains(err.Error(), "already exists"):
				dups.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected CreateBranch error: %v", err)
	}
	if wins.Load() != 1 || dups.Load() != 11 {
		t.Fatalf("wins=%d dups=%d, want 1 and 11", wins.Load(), dups.Load())
	}
}
