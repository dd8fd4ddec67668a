package mergestate

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/odvcencio/splice/pkg/plan"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemory)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStartAndMeta(t *testing.T) {
	s := openTestStore(t)
	active, err := s.Active()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active {
		t.Fatal("fresh store should not be active")
	}

	labels := Labels{Local: "working copy", Other: "merge rev", Base: "base"}
	if err := s.Start("l1", "o1", labels, "op-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if active, _ := s.Active(); !active {
		t.Fatal("store should be active after Start")
	}
	if got, _ := s.Local(); got != "l1" {
		t.Fatalf("local = %q", got)
	}
	if got, _ := s.Other(); got != "o1" {
		t.Fatalf("other = %q", got)
	}
	if got, _ := s.Labels(); got != labels {
		t.Fatalf("labels = %+v", got)
	}
	if got, _ := s.Operation(); got != "op-1" {
		t.Fatalf("operation = %q", got)
	}
}

func TestStartClearsPreviousState(t *testing.T) {
	s := openTestStore(t)
	if err := s.Start("l1", "o1", Labels{}, "op-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Add(Record{Path: "f"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddCommitInfo("f", "k", "v"); err != nil {
		t.Fatalf("commit info: %v", err)
	}
	if err := s.Start("l2", "o2", Labels{}, "op-2"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	recs, err := s.Records()
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("records after restart = %d, want 0", len(recs))
	}
	info, _ := s.CommitInfo()
	if len(info) != 0 {
		t.Fatalf("commit info after restart = %v", info)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := openTestStore(t)
	rec := Record{
		Path:         "a.txt",
		LocalKey:     "blob1",
		LocalPath:    "a.txt",
		LocalFlag:    "x",
		AncestorPath: "a.txt",
		AncestorNode: "anc",
		OtherPath:    "b.txt",
		OtherNode:    "oth",
		AncestorRev:  "rev",
	}
	if err := s.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := s.Get("a.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rec.State = Unresolved
	if !reflect.DeepEqual(*got, rec) {
		t.Fatalf("record = %+v, want %+v", *got, rec)
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}
	if err := s.SetState("missing", Resolved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("set state missing: err = %v, want ErrNotFound", err)
	}
}

func TestUnresolvedIncludesPathConflicts(t *testing.T) {
	s := openTestStore(t)
	for _, p := range []string{"b", "a", "c"} {
		if err := s.Add(Record{Path: p}); err != nil {
			t.Fatalf("add %s: %v", p, err)
		}
	}
	if err := s.AddPathConflict("d", "d~l", "l"); err != nil {
		t.Fatalf("add path conflict: %v", err)
	}
	if err := s.SetState("b", Resolved); err != nil {
		t.Fatalf("set state: %v", err)
	}

	got, err := s.Unresolved()
	if err != nil {
		t.Fatalf("unresolved: %v", err)
	}
	if want := []string{"a", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unresolved = %v, want %v", got, want)
	}
	n, _ := s.UnresolvedCount()
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}

	d, err := s.Get("d")
	if err != nil {
		t.Fatalf("get d: %v", err)
	}
	if !d.IsPathConflict() || d.Renamed != "d~l" || d.Origin != "l" {
		t.Fatalf("path conflict record = %+v", d)
	}
}

func TestCountsAndExtraActions(t *testing.T) {
	s := openTestStore(t)
	results := []struct {
		path   string
		code   int
		action plan.Kind
	}{
		{"updated", ResultNone, 0},
		{"merged", ResultClean, 0},
		{"removed", ResultClean, plan.Remove},
		{"kept", ResultClean, plan.AddModified},
		{"conflict", ResultConflict, 0},
	}
	for _, r := range results {
		if err := s.Add(Record{Path: r.path}); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := s.SetResult(r.path, r.code, r.action); err != nil {
			t.Fatalf("set result: %v", err)
		}
	}
	if err := s.Add(Record{Path: "pending"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	updated, merged, removed, err := s.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if updated != 1 || merged != 2 || removed != 1 {
		t.Fatalf("counts = %d/%d/%d, want 1/2/1", updated, merged, removed)
	}

	extras, err := s.ExtraActions()
	if err != nil {
		t.Fatalf("extra actions: %v", err)
	}
	want := map[plan.Kind][]string{
		plan.Remove:      {"removed"},
		plan.AddModified: {"kept"},
	}
	if !reflect.DeepEqual(extras, want) {
		t.Fatalf("extras = %v, want %v", extras, want)
	}
}

func TestResolvingReloadsAsUnresolved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Start("l", "o", Labels{}, "op"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, p := range []string{"done", "busy"} {
		if err := s.Add(Record{Path: p}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := s.SetState("done", Resolved); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := s.SetState("busy", Resolving); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	busy, err := s.Get("busy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if busy.State != Unresolved {
		t.Fatalf("busy state = %q, want %q", busy.State, Unresolved)
	}
	done, _ := s.Get("done")
	if done.State != Resolved {
		t.Fatalf("done state = %q, want %q", done.State, Resolved)
	}
	if active, _ := s.Active(); !active {
		t.Fatal("state should survive reopen")
	}
}
