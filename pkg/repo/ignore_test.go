package repo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIgnore_MetadataDirsAlwaysIgnored(t *testing.T) {
	ic := NewIgnoreChecker(t.TempDir())

	for _, p := range []string{".splice/HEAD", ".splice/objects/abc", ".git/config"} {
		if !ic.IsIgnored(p) {
			t.Errorf("expected %s to be ignored", p)
		}
	}
	if !ic.IsIgnoredDir(".splice") {
		t.Error("expected .splice directory to be ignored")
	}
	if ic.IsIgnored("main.go") || ic.IsIgnored("src/util.go") {
		t.Error("regular files must not be ignored without patterns")
	}
}

func TestIgnore_BareGlobMatchesAtAnyDepth(t *testing.T) {
	dir := t.TempDir()
	writeIgnoreFile(t, dir, "*.o\n")
	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored("foo.o") || !ic.IsIgnored("src/deep/foo.o") {
		t.Error("expected *.o to match at every depth")
	}
	if ic.IsIgnored("src/foo.go") {
		t.Error("expected src/foo.go to NOT be ignored")
	}
}

func TestIgnore_DirectoryPattern(t *testing.T) {
	dir := t.TempDir()
	writeIgnoreFile(t, dir, "build/\n")
	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored("build/output.o") || !ic.IsIgnored("pkg/build/sub/file.txt") {
		t.Error("expected files under build/ to be ignored")
	}
	if ic.IsIgnored("build") {
		t.Error("a directory-only pattern must not match a file named build")
	}
	if !ic.IsIgnoredDir("build") {
		t.Error("expected the build directory itself to be ignored")
	}
}

func TestIgnore_NegationAndComments(t *testing.T) {
	dir := t.TempDir()
	writeIgnoreFile(t, dir, "# logs\n*.log\n!important.log\n\n")
	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored("debug.log") {
		t.Error("expected debug.log to be ignored")
	}
	if ic.IsIgnored("important.log") {
		t.Error("expected important.log to be re-included")
	}
	if ic.IsIgnored("# logs") {
		t.Error("comment text must not become a pattern")
	}
}

func TestIgnore_AnchoredPatterns(t *testing.T) {
	dir := t.TempDir()
	writeIgnoreFile(t, dir, "/vendor\ndocs/*.html\n**/*.gen.go\n")
	ic := NewIgnoreChecker(dir)

	cases := map[string]bool{
		"vendor/x/y.go":       true,
		"src/vendor/y.go":     false,
		"docs/index.html":     true,
		"docs/api/index.html": false,
		"cmd/file.gen.go":     true,
		"file.gen.go":         true,
		"file.go":             false,
	}
	for p, want := range cases {
		if got := ic.IsIgnored(p); got != want {
			t.Errorf("IsIgnored(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestIgnore_LaterPatternWins(t *testing.T) {
	ic := newIgnoreChecker([]string{"!keep.txt", "*.txt"})
	if !ic.IsIgnored("keep.txt") {
		t.Error("a later pattern must override an earlier negation")
	}
}

func writeIgnoreFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, IgnoreFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", IgnoreFile, err)
	}
}
