package update

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/splice/pkg/object"
	"github.com/odvcencio/splice/pkg/repo"
)

func newRepo(t *testing.T) *repo.Repo {
	t.Helper()
	r, err := repo.Init(t.TempDir())
	require.NoError(t, err)
	return r
}

func writeFile(t *testing.T, r *repo.Repo, name, content string) {
	t.Helper()
	abs := filepath.Join(r.RootDir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func readFile(t *testing.T, r *repo.Repo, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.RootDir, filepath.FromSlash(name)))
	require.NoError(t, err, "read %s", name)
	return string(data)
}

func exists(r *repo.Repo, name string) bool {
	_, err := os.Lstat(filepath.Join(r.RootDir, filepath.FromSlash(name)))
	return err == nil
}

// commit writes and tracks files, then commits them on top of the working
// copy's parent.
func commit(t *testing.T, r *repo.Repo, message string, files map[string]string) object.Hash {
	t.Helper()
	names := make([]string, 0, len(files))
	for name, content := range files {
		writeFile(t, r, name, content)
		names = append(names, name)
	}
	_, err := r.Add(names)
	require.NoError(t, err)
	h, err := r.Commit(message, "test-author")
	require.NoError(t, err)
	return h
}

func parents(t *testing.T, r *repo.Repo) (object.Hash, object.Hash) {
	t.Helper()
	ds, err := r.Dirstate()
	require.NoError(t, err)
	return ds.P1(), ds.P2()
}

func mustUpdate(t *testing.T, r *repo.Repo, opts Options) *Result {
	t.Helper()
	res, err := Update(context.Background(), r, opts)
	require.NoError(t, err)
	return res
}

// history builds
//
//	base --- main        (main changes a's last line)
//	    \
//	     side            (side changes a as given and adds c)
//
// and leaves the working copy clean at side.
func history(t *testing.T, r *repo.Repo, sideA string) (base, main, side object.Hash) {
	t.Helper()
	base = commit(t, r, "base", map[string]string{
		"a": "1\n2\n3\n4\n5\n",
		"b": "bee\n",
	})
	main = commit(t, r, "main", map[string]string{"a": "1\n2\n3\n4\nmain\n"})
	mustUpdate(t, r, Options{Target: base})
	side = commit(t, r, "side", map[string]string{"a": sideA, "c": "sea\n"})
	return base, main, side
}
