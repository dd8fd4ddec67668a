package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/splice/pkg/object"
)

func initRepoWithFile(t *testing.T, name string, content []byte) *Repo {
	t.Helper()
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	writeWorkFile(t, r, name, string(content))
	if _, err := r.Add([]string{name}); err != nil {
		t.Fatalf("Add(%s): %v", name, err)
	}
	return r
}

func writeWorkFile(t *testing.T, r *Repo, name, content string) {
	t.Helper()
	abs := filepath.Join(r.RootDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func readWorkFile(t *testing.T, r *Repo, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.RootDir, filepath.FromSlash(name)))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

// commitFiles writes files, tracks them and commits.
func commitFiles(t *testing.T, r *Repo, message string, files map[string]string) object.Hash {
	t.Helper()
	var names []string
	for name, content := range files {
		writeWorkFile(t, r, name, content)
		names = append(names, name)
	}
	if _, err := r.Add(names); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := r.Commit(message, "test-author")
	if err != nil {
		t.Fatalf("Commit %q: %v", message, err)
	}
	return h
}
