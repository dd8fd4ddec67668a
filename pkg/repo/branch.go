package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/splice/pkg/object"
)

var reservedNames = map[string]bool{"HEAD": true, NullSpec: true, ".": true}

func validBranchName(name string) error {
	switch {
	case name == "":
		return errors.New("branch name is required")
	case reservedNames[name]:
		return fmt.Errorf("%q is a reserved name", name)
	case strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/"):
		return fmt.Errorf("invalid branch name %q", name)
	case strings.Contains(name, "..") || strings.ContainsAny(name, " \t\n\\:~^?*["):
		return fmt.Errorf("invalid branch name %q", name)
	}
	return nil
}

// CreateBranch creates a new branch pointing at the given target hash.
// It writes the hash to .splice/refs/heads/<name>. Returns an error if the
// branch already exists.
func (r *Repo) CreateBranch(name string, target object.Hash) error {
	if err := validBranchName(name); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	refName := "refs/heads/" + name
	if err := r.UpdateRefCAS(refName, target, "branch: created", ""); err != nil {
		if errors.Is(err, ErrRefCASMismatch) {
			return fmt.Errorf("create branch: branch %q already exists", name)
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes the branch ref and its reflog. Returns an error if
// the branch is the current branch or does not exist.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch: cannot delete current branch %q", name)
	}

	rel := filepath.FromSlash(name)
	refPath := filepath.Join(r.Dir, "refs", "heads", rel)
	if err := os.Remove(refPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete branch: branch %q does not exist", name)
		}
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	_ = os.Remove(filepath.Join(r.Dir, "logs", "refs", "heads", rel))
	return nil
}

// ListBranches returns every branch name under .splice/refs/heads/,
// including nested ones like "feature/x", sorted alphabetically.
func (r *Repo) ListBranches() ([]string, error) {
	headsDir := filepath.Join(r.Dir, "refs", "heads")

	var names []string
	err := filepath.WalkDir(headsDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}
		rel, err := filepath.Rel(headsDir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list branches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// CurrentBranch reads HEAD and returns the branch name if HEAD is a symbolic
// ref (e.g. "ref: refs/heads/main" → "main"). If HEAD is detached (contains
// a raw hash), it returns "".
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}

	const prefix = "refs/heads/"
	if strings.HasPrefix(head, prefix) {
		return strings.TrimPrefix(head, prefix), nil
	}
	return "", nil
}
