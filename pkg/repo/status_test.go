package repo

import (
	"os"
	"path/filepath"
	"testing"
)

func statusMap(t *testing.T, r *Repo, listIgnored bool) map[string]FileStatus {
	t.Helper()
	entries, err := r.Status(listIgnored)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	out := make(map[string]FileStatus, len(entries))
	for i, e := range entries {
		if i > 0 && entries[i-1].Path >= e.Path {
			t.Fatalf("Status entries not sorted: %q before %q", entries[i-1].Path, e.Path)
		}
		out[e.Path] = e.Status
	}
	return out
}

// Test 1: Added file shows as added, untracked file as unknown.
func TestStatus_AddedAndUnknown(t *testing.T) {
	r := initRepoWithFile(t, "main.go", []byte("package main\n"))
	writeWorkFile(t, r, "notes.txt", "todo\n")

	st := statusMap(t, r, false)
	if st["main.go"] != StatusAdded {
		t.Errorf("main.go = %s, want A", st["main.go"].Code())
	}
	if st["notes.txt"] != StatusUnknown {
		t.Errorf("notes.txt = %s, want ?", st["notes.txt"].Code())
	}
	if len(st) != 2 {
		t.Errorf("Status = %v, want 2 entries", st)
	}
}

// Test 2: Clean files are not listed; edits show as modified.
func TestStatus_CleanThenModified(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	commitFiles(t, r, "first", map[string]string{"a.txt": "one\n", "b.txt": "two\n"})

	if st := statusMap(t, r, false); len(st) != 0 {
		t.Fatalf("clean working copy reported %v", st)
	}

	// same size, so only the content comparison can catch it
	writeWorkFile(t, r, "a.txt", "uno\n")
	st := statusMap(t, r, false)
	if st["a.txt"] != StatusModified || len(st) != 1 {
		t.Fatalf("Status = %v, want only a.txt modified", st)
	}
}

// Test 3: A file whose exec bit flips is modified.
func TestStatus_FlagChange(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	commitFiles(t, r, "first", map[string]string{"run.sh": "#!/bin/sh\n"})
	if err := os.Chmod(filepath.Join(r.RootDir, "run.sh"), 0o755); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	if st := statusMap(t, r, false); st["run.sh"] != StatusModified {
		t.Fatalf("run.sh = %v, want modified", st["run.sh"])
	}
}

// Test 4: Removed and deleted files.
func TestStatus_RemovedAndDeleted(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	commitFiles(t, r, "first", map[string]string{"a.txt": "a\n", "b.txt": "b\n"})

	if err := r.Remove([]string{"a.txt"}, false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := os.Remove(filepath.Join(r.RootDir, "b.txt")); err != nil {
		t.Fatalf("os.Remove: %v", err)
	}
	st := statusMap(t, r, false)
	if st["a.txt"] != StatusRemoved {
		t.Errorf("a.txt = %s, want R", st["a.txt"].Code())
	}
	if st["b.txt"] != StatusDeleted {
		t.Errorf("b.txt = %s, want !", st["b.txt"].Code())
	}
}

// Test 5: Ignored files are hidden unless requested.
func TestStatus_Ignored(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	writeWorkFile(t, r, IgnoreFile, "*.log\nbuild/\n")
	writeWorkFile(t, r, "debug.log", "x\n")
	writeWorkFile(t, r, "build/out.bin", "x\n")

	st := statusMap(t, r, false)
	if _, ok := st["debug.log"]; ok {
		t.Errorf("ignored file listed without listIgnored: %v", st)
	}
	if _, ok := st["build/out.bin"]; ok {
		t.Errorf("file in ignored dir listed: %v", st)
	}
	if st[IgnoreFile] != StatusUnknown {
		t.Errorf("%s should be unknown", IgnoreFile)
	}

	st = statusMap(t, r, true)
	if st["debug.log"] != StatusIgnored || st["build/out.bin"] != StatusIgnored {
		t.Errorf("listIgnored Status = %v", st)
	}
	for p := range st {
		if filepath.Dir(p) == DirName {
			t.Fatalf("metadata file %q listed", p)
		}
	}
}

// Test 6: Moves record the copy source.
func TestStatus_MoveRecordsCopy(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	commitFiles(t, r, "first", map[string]string{"old.txt": "content\n"})

	if err := r.Move("old.txt", "sub/new.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	entries, err := r.Status(false)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	var sawNew, sawOld bool
	for _, e := range entries {
		switch e.Path {
		case "sub/new.txt":
			sawNew = true
			if e.Status != StatusAdded || e.CopySource != "old.txt" {
				t.Errorf("sub/new.txt = %+v, want added copy of old.txt", e)
			}
		case "old.txt":
			sawOld = true
			if e.Status != StatusRemoved {
				t.Errorf("old.txt = %s, want R", e.Status.Code())
			}
		}
	}
	if !sawNew || !sawOld {
		t.Fatalf("Status = %+v", entries)
	}
}
