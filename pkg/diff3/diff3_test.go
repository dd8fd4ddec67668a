package diff3

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

func editKinds(ops []edit) []opKind {
	out := make([]opKind, len(ops))
	for i, op := range ops {
		out[i] = op.kind
	}
	return out
}

func TestDiffLinesReplacement(t *testing.T) {
	ops := diffLines([]string{"a", "b", "c"}, []string{"a", "x", "c"})
	want := []edit{{opEqual, "a"}, {opDelete, "b"}, {opInsert, "x"}, {opEqual, "c"}}
	if len(ops) != len(want) {
		t.Fatalf("got %d ops, want %d: %v", len(ops), len(want), ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op[%d] = %v, want %v", i, ops[i], want[i])
		}
	}
}

func TestDiffLinesEdges(t *testing.T) {
	for _, k := range editKinds(diffLines(nil, []string{"a", "b"})) {
		if k != opInsert {
			t.Errorf("empty -> lines: got kind %d, want insert", k)
		}
	}
	for _, k := range editKinds(diffLines([]string{"a", "b"}, nil)) {
		if k != opDelete {
			t.Errorf("lines -> empty: got kind %d, want delete", k)
		}
	}
	same := []string{"a", "b", "c"}
	for _, k := range editKinds(diffLines(same, same)) {
		if k != opEqual {
			t.Errorf("identical: got kind %d, want equal", k)
		}
	}
}

func TestDiffLinesIsMinimal(t *testing.T) {
	a := strings.Split("a b c a b b a", " ")
	b := strings.Split("c b a b a c", " ")
	edits := 0
	var fromA, fromB []string
	for _, op := range diffLines(a, b) {
		switch op.kind {
		case opEqual:
			fromA = append(fromA, op.line)
			fromB = append(fromB, op.line)
		case opDelete:
			edits++
			fromA = append(fromA, op.line)
		case opInsert:
			edits++
			fromB = append(fromB, op.line)
		}
	}
	if strings.Join(fromA, " ") != strings.Join(a, " ") || strings.Join(fromB, " ") != strings.Join(b, " ") {
		t.Fatalf("edit script does not reproduce inputs: %v / %v", fromA, fromB)
	}
	if edits != 5 {
		t.Errorf("edit distance: got %d, want 5", edits)
	}
}

func TestMergeConflictMarkersUseLabels(t *testing.T) {
	base := []byte("a\nb\nc\n")
	local := []byte("a\nL\nc\n")
	other := []byte("a\nO\nc\n")

	r := Merge(base, local, other, Options{Labels: Labels{Local: "working copy", Other: "merge rev"}})
	want := "a\n<<<<<<< working copy\nL\n=======\nO\n>>>>>>> merge rev\nc\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
	if r.Conflicts != 1 {
		t.Errorf("conflicts: got %d, want 1", r.Conflicts)
	}
}

func TestMergeMerge3IncludesBase(t *testing.T) {
	r := Merge([]byte("x\n"), []byte("l\n"), []byte("o\n"), Options{Style: StyleMerge3})
	want := "<<<<<<< local\nl\n||||||| base\nx\n=======\no\n>>>>>>> other\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

func TestMergeUnionKeepsBothSides(t *testing.T) {
	r := Merge([]byte("x\n"), []byte("l\n"), []byte("o\n"), Options{Style: StyleUnion})
	if string(r.Merged) != "l\no\n" {
		t.Errorf("merged = %q", r.Merged)
	}
	if !r.HasConflicts() {
		t.Error("union still reports the conflicting region")
	}
}

func TestMergeCleanTopBottom(t *testing.T) {
	base := []byte("line1\nline2\nline3\n")
	local := []byte("new-top\nline1\nline2\nline3\n")
	other := []byte("line1\nline2\nline3\nnew-bottom\n")

	r := Merge(base, local, other, Options{})

	if r.HasConflicts() {
		t.Fatal("expected clean merge, got conflicts")
	}

	want := "new-top\nline1\nline2\nline3\nnew-bottom\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

func TestMergeLocalOnly(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	local := []byte("aaa\nBBB\nccc\n")
	other := []byte("aaa\nbbb\nccc\n") // same as base

	r := Merge(base, local, other, Options{})

	if r.HasConflicts() {
		t.Fatal("expected clean merge, got conflicts")
	}
	want := "aaa\nBBB\nccc\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

func TestMergeOtherOnly(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	local := []byte("aaa\nbbb\nccc\n") // same as base
	other := []byte("aaa\nBBB\nccc\n")

	r := Merge(base, local, other, Options{})

	if r.HasConflicts() {
		t.Fatal("expected clean merge, got conflicts")
	}
	want := "aaa\nBBB\nccc\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

func TestMergeConflict(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	local := []byte("aaa\nLOCAL\nccc\n")
	other := []byte("aaa\nOTHER\nccc\n")

	r := Merge(base, local, other, Options{})

	if !r.HasConflicts() {
		t.Fatal("expected conflicts, got clean merge")
	}

	// The merged output should contain conflict markers.
	if !bytes.Contains(r.Merged, []byte("<<<<<<<")) {
		t.Error("merged output missing <<<<<<< marker")
	}
	if !bytes.Contains(r.Merged, []byte("=======")) {
		t.Error("merged output missing ======= marker")
	}
	if !bytes.Contains(r.Merged, []byte(">>>>>>>")) {
		t.Error("merged output missing >>>>>>> marker")
	}

	// There should be at least one conflict hunk.
	hasConflictHunk := false
	for _, h := range r.Hunks {
		if h.Type == HunkConflict {
			hasConflictHunk = true
		}
	}
	if !hasConflictHunk {
		t.Error("expected at least one HunkConflict in Hunks")
	}
}

func TestMergeIdenticalChange(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	local := []byte("aaa\nSAME\nccc\n")
	other := []byte("aaa\nSAME\nccc\n")

	r := Merge(base, local, other, Options{})

	if r.HasConflicts() {
		t.Fatal("expected clean merge when both sides make the same change")
	}
	want := "aaa\nSAME\nccc\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

func TestMergeNonOverlappingInserts(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\nddd\neee\n")
	local := []byte("aaa\nLOCAL-INSERT\nbbb\nccc\nddd\neee\n")
	other := []byte("aaa\nbbb\nccc\nddd\nOTHER-INSERT\neee\n")

	r := Merge(base, local, other, Options{})

	if r.HasConflicts() {
		t.Fatalf("expected clean merge, got conflicts:\n%s", r.Merged)
	}

	want := "aaa\nLOCAL-INSERT\nbbb\nccc\nddd\nOTHER-INSERT\neee\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

func TestMergeDeleteVsModify(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	local := []byte("aaa\nccc\n")            // deleted "bbb"
	other := []byte("aaa\nBBB-MOD\nccc\n") // modified "bbb"

	r := Merge(base, local, other, Options{})

	if !r.HasConflicts() {
		t.Fatal("expected conflict when one side deletes and the other modifies")
	}
}

func TestMergeEmptyBase(t *testing.T) {
	base := []byte("")
	local := []byte("hello\n")
	other := []byte("world\n")

	r := Merge(base, local, other, Options{})

	// Both sides added content to an empty base - this is a conflict
	// since both inserted at the same position.
	if !r.HasConflicts() {
		t.Fatal("expected conflict when both sides add to empty base")
	}
}

func TestMergeEmptyLocal(t *testing.T) {
	base := []byte("aaa\nbbb\n")
	local := []byte("")
	other := []byte("aaa\nbbb\n") // same as base

	r := Merge(base, local, other, Options{})

	if r.HasConflicts() {
		t.Fatal("expected clean merge")
	}
	// Local deleted everything, other unchanged → take local.
	if string(r.Merged) != "" {
		t.Errorf("merged = %q, want empty", r.Merged)
	}
}

func TestMergeEmptyOther(t *testing.T) {
	base := []byte("aaa\nbbb\n")
	local := []byte("aaa\nbbb\n") // same as base
	other := []byte("")

	r := Merge(base, local, other, Options{})

	if r.HasConflicts() {
		t.Fatal("expected clean merge")
	}
	if string(r.Merged) != "" {
		t.Errorf("merged = %q, want empty", r.Merged)
	}
}

func TestMergeAllEmpty(t *testing.T) {
	r := Merge([]byte{}, []byte{}, []byte{}, Options{})
	if r.HasConflicts() {
		t.Fatal("expected clean merge for all-empty inputs")
	}
	if len(r.Merged) != 0 {
		t.Errorf("expected empty merged, got %q", r.Merged)
	}
}

func TestMergeLargeFile(t *testing.T) {
	var baseBuf, localBuf, otherBuf strings.Builder
	const n = 2000

	for i := 0; i < n; i++ {
		line := fmt.Sprintf("line-%04d\n", i)
		baseBuf.WriteString(line)
		localBuf.WriteString(line)
		otherBuf.WriteString(line)
	}

	// Local changes line 100.
	localLines := strings.Split(localBuf.String(), "\n")
	localLines[100] = "LOCAL-CHANGED"
	localContent := []byte(strings.Join(localLines, "\n"))

	// Other changes line 1900.
	otherLines := strings.Split(otherBuf.String(), "\n")
	otherLines[1900] = "OTHER-CHANGED"
	otherContent := []byte(strings.Join(otherLines, "\n"))

	base := []byte(baseBuf.String())

	start := time.Now()
	r := Merge(base, localContent, otherContent, Options{})
	elapsed := time.Since(start)

	if r.HasConflicts() {
		t.Fatal("expected clean merge for non-overlapping changes")
	}

	if elapsed > 5*time.Second {
		t.Fatalf("merge took %v, expected < 5s for %d lines", elapsed, n)
	}

	if !bytes.Contains(r.Merged, []byte("LOCAL-CHANGED")) {
		t.Error("merged output missing LOCAL-CHANGED")
	}
	if !bytes.Contains(r.Merged, []byte("OTHER-CHANGED")) {
		t.Error("merged output missing OTHER-CHANGED")
	}
}
