package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/object"
)

func openWorkingCopy(t *testing.T, r *Repo) *WorkingCopy {
	t.Helper()
	wc, err := r.WorkingCopy()
	if err != nil {
		t.Fatalf("WorkingCopy: %v", err)
	}
	return wc
}

func TestWorkingCopy_ManifestReflectsLocalChanges(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	first := commitFiles(t, r, "first", map[string]string{"keep.txt": "k\n", "edit.txt": "e\n", "gone.txt": "g\n", "rm.txt": "r\n"})

	writeWorkFile(t, r, "edit.txt", "edited\n")
	writeWorkFile(t, r, "new.txt", "n\n")
	if _, err := r.Add([]string{"new.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := os.Remove(filepath.Join(r.RootDir, "gone.txt")); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove([]string{"rm.txt"}, false); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	wc := openWorkingCopy(t, r)
	mf := wc.Manifest()
	if mf.Has("gone.txt") || mf.Has("rm.txt") {
		t.Errorf("deleted and removed files must be absent: %v", mf.Paths())
	}
	if got := mf.Node("edit.txt"); got != object.BlobHash([]byte("edited\n")) {
		t.Errorf("edit.txt node = %s, want disk content hash", got)
	}
	if !mf.Has("new.txt") || !mf.Has("keep.txt") {
		t.Errorf("manifest paths = %v", mf.Paths())
	}

	if wc.ID() != "" || wc.String() != first.Short()+"+" {
		t.Errorf("ID/String = %q/%q", wc.ID(), wc.String())
	}
	if got := wc.Deleted(); len(got) != 1 || got[0] != "gone.txt" {
		t.Errorf("Deleted = %v", got)
	}
	if got := wc.Removed(); len(got) != 1 || got[0] != "rm.txt" {
		t.Errorf("Removed = %v", got)
	}
	if !wc.Added("new.txt") || wc.Added("keep.txt") {
		t.Errorf("Added misreports")
	}
	if !wc.Dirty() {
		t.Errorf("Dirty = false with local changes")
	}
	if wc.Parents()[0] != first || len(wc.Parents()) != 1 {
		t.Errorf("Parents = %v", wc.Parents())
	}
}

func TestWorkingCopy_UntrackedQueries(t *testing.T) {
	r := initRepoWithFile(t, "tracked.txt", []byte("t\n"))
	writeWorkFile(t, r, "loose.txt", "l\n")
	writeWorkFile(t, r, "dir/inner.txt", "i\n")
	writeWorkFile(t, r, IgnoreFile, "*.tmp\n")
	writeWorkFile(t, r, "x.tmp", "x\n")

	wc := openWorkingCopy(t, r)
	if !wc.Untracked("loose.txt") || wc.Untracked("tracked.txt") || wc.Untracked("missing") {
		t.Errorf("Untracked misreports")
	}
	if wc.Untracked("dir") {
		t.Errorf("a directory is not an untracked file")
	}
	if !wc.IsDir("dir") || !wc.Exists("dir/inner.txt") || wc.Exists("nope") {
		t.Errorf("IsDir/Exists misreport")
	}
	if !wc.UntrackedUnder("dir") {
		t.Errorf("UntrackedUnder(dir) = false")
	}
	if !wc.Ignored("x.tmp") || wc.Ignored("loose.txt") {
		t.Errorf("Ignored misreports")
	}
	data, err := wc.Data("loose.txt")
	if err != nil || string(data) != "l\n" {
		t.Errorf("Data = %q, %v", data, err)
	}
}

func TestWorkingCopy_WriteClearsObstacles(t *testing.T) {
	r := initRepoWithFile(t, "a.txt", []byte("a\n"))
	wc := openWorkingCopy(t, r)

	// a file where a directory is needed
	writeWorkFile(t, r, "d", "file in the way\n")
	if err := wc.Write("d/f.txt", []byte("f\n"), manifest.FlagNone); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := readWorkFile(t, r, "d/f.txt"); got != "f\n" {
		t.Errorf("d/f.txt = %q", got)
	}

	// a directory where a file is needed
	writeWorkFile(t, r, "e/inner.txt", "x\n")
	if err := wc.Write("e", []byte("e\n"), manifest.FlagExec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Lstat(filepath.Join(r.RootDir, "e"))
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if !info.Mode().IsRegular() || info.Mode()&0o111 == 0 {
		t.Errorf("e mode = %v, want executable file", info.Mode())
	}
}

func TestWorkingCopy_SymlinkAndFlags(t *testing.T) {
	r := initRepoWithFile(t, "a.txt", []byte("a\n"))
	wc := openWorkingCopy(t, r)

	if err := wc.Write("link", []byte("a.txt"), manifest.FlagSymlink); err != nil {
		t.Fatalf("Write symlink: %v", err)
	}
	target, err := os.Readlink(filepath.Join(r.RootDir, "link"))
	if err != nil || target != "a.txt" {
		t.Fatalf("Readlink = %q, %v", target, err)
	}
	if wc.Flag("link") != manifest.FlagSymlink {
		t.Errorf("Flag(link) = %v", wc.Flag("link"))
	}

	if err := wc.SetFlag("link", manifest.FlagNone); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	if got := readWorkFile(t, r, "link"); got != "a.txt" {
		t.Errorf("converted link content = %q", got)
	}
	if err := wc.SetFlag("a.txt", manifest.FlagExec); err != nil {
		t.Fatalf("SetFlag exec: %v", err)
	}
	fd, err := wc.Stat("a.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fd.Mode&0o111 == 0 || fd.Size != 2 {
		t.Errorf("Stat = %+v", fd)
	}
}

func TestWorkingCopy_RemoveAndRename(t *testing.T) {
	r := initRepoWithFile(t, "a.txt", []byte("a\n"))
	writeWorkFile(t, r, "deep/dir/b.txt", "b\n")
	wc := openWorkingCopy(t, r)

	if err := wc.Rename("deep/dir/b.txt", "moved/b.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.RootDir, "deep")); !os.IsNotExist(err) {
		t.Errorf("emptied source dirs should be pruned")
	}
	if err := wc.Remove("moved/b.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := wc.Remove("moved/b.txt"); err != nil {
		t.Fatalf("Remove of a missing file should succeed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.RootDir, "moved")); !os.IsNotExist(err) {
		t.Errorf("empty parent should be pruned")
	}
}

func TestWorkingCopy_AuditRejectsUnsafePaths(t *testing.T) {
	r := initRepoWithFile(t, "a.txt", []byte("a\n"))
	if err := os.Symlink(t.TempDir(), filepath.Join(r.RootDir, "escape")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	wc := openWorkingCopy(t, r)

	for _, p := range []string{"../x", "/etc/passwd", ".splice/HEAD", "a/./b", "escape/x", ""} {
		if err := wc.Write(p, []byte("x"), manifest.FlagNone); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Write(%q) = %v, want ErrUnsafePath", p, err)
		}
	}
}

func TestTracking_AddDirectorySkipsIgnored(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	writeWorkFile(t, r, IgnoreFile, "*.o\n")
	writeWorkFile(t, r, "src/a.c", "a\n")
	writeWorkFile(t, r, "src/a.o", "obj\n")

	added, err := r.Add([]string{filepath.Join(r.RootDir, "src")})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(added) != 1 || added[0] != "src/a.c" {
		t.Fatalf("Add = %v, want [src/a.c]", added)
	}

	// named explicitly, an ignored file is still added
	added, err = r.Add([]string{filepath.Join(r.RootDir, "src", "a.o")})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(added) != 1 {
		t.Fatalf("explicit Add = %v", added)
	}
}

func TestTracking_RemoveAddedForgets(t *testing.T) {
	r := initRepoWithFile(t, "a.txt", []byte("a\n"))
	if err := r.Remove([]string{"a.txt"}, true); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ds, err := r.Dirstate()
	if err != nil {
		t.Fatalf("Dirstate: %v", err)
	}
	if _, ok := ds.Get("a.txt"); ok {
		t.Errorf("removing an added file should forget it")
	}
	if got := readWorkFile(t, r, "a.txt"); got != "a\n" {
		t.Errorf("keep should leave the file on disk")
	}
	if err := r.Remove([]string{"a.txt"}, false); !errors.Is(err, ErrNotTracked) {
		t.Errorf("Remove untracked = %v, want ErrNotTracked", err)
	}
}
