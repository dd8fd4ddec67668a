package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/splice/pkg/object"
)

func TestConfigRoundTrip(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Merge.CheckUnknown = "warn"
	cfg.Merge.Tool = "union"
	cfg.Update.Check = "noconflict"
	cfg.Narrow.Include = []string{"src/**"}
	if err := r.WriteConfig(cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	reopened, err := Open(r.RootDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got := reopened.Config()
	if got.Merge.CheckUnknown != "warn" || got.Merge.Tool != "union" || got.Update.Check != "noconflict" {
		t.Fatalf("config = %+v", got)
	}
	m, err := got.NarrowMatcher()
	if err != nil {
		t.Fatalf("NarrowMatcher: %v", err)
	}
	if m == nil || !m.Match("src/a.go") || m.Match("docs/a.md") {
		t.Fatalf("narrow matcher does not follow include patterns")
	}
}

func TestReadConfigMissingReturnsDefaults(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := ReadConfig(r.Dir)
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.Merge.CheckUnknown != "abort" || !cfg.Merge.FollowCopies || cfg.Update.Check != "linear" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if m, _ := cfg.NarrowMatcher(); m != nil {
		t.Fatalf("default config should not narrow")
	}
}

func TestReadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"policy", "[merge]\ncheckunknown = \"maybe\"\n"},
		{"tool", "[merge]\ntool = \"kdiff3\"\n"},
		{"check", "[update]\ncheck = \"strict\"\n"},
		{"workers", "[worker]\nworkers = -2\n"},
		{"syntax", "[merge\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadConfig(dir); err == nil {
				t.Fatalf("ReadConfig(%q) should fail", tt.body)
			}
		})
	}
}

func TestCaseSensitiveOverride(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Filesystem.CaseSensitive = "false"
	if err := r.WriteConfig(cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if r.CaseSensitive() {
		t.Fatal("CaseSensitive should honour the override")
	}
}

func TestListRefs(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := r.UpdateRef("refs/heads/main", object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), "test"); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateRef("refs/heads/feature/x", object.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"), "test"); err != nil {
		t.Fatal(err)
	}

	heads, err := r.ListRefs("heads")
	if err != nil {
		t.Fatal(err)
	}
	if len(heads) != 2 {
		t.Fatalf("heads len = %d, want 2", len(heads))
	}
	if _, ok := heads["heads/feature/x"]; !ok {
		t.Fatalf("expected heads/feature/x in prefix listing, got %v", heads)
	}
}
