package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/splice/pkg/object"
)

// ListRefs lists references under .splice/refs.
// Names are returned relative to refs root, e.g. "heads/main", "tags/v1".
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(r.Dir, "refs")
	dir := root
	if strings.TrimSpace(prefix) != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[name] = object.Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// NullSpec names the empty revision every history starts from.
const NullSpec = "null"

// Resolve turns a revision spec into a commit hash: "." for the working
// copy's first parent, "null" for the empty revision, HEAD, a branch name,
// a full hash, or a unique hash prefix.
func (r *Repo) Resolve(spec string) (object.Hash, error) {
	spec = strings.TrimSpace(spec)
	switch spec {
	case "", NullSpec:
		return "", nil
	case ".":
		ds, err := r.Dirstate()
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", spec, err)
		}
		return ds.P1(), nil
	case "HEAD":
		h, err := r.ResolveRef("HEAD")
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", spec, err)
		}
		return h, nil
	}

	if r.IsBranch(spec) {
		return r.ResolveRef("refs/heads/" + spec)
	}
	if len(spec) == 64 && r.Store.Has(object.Hash(spec)) {
		return object.Hash(spec), nil
	}
	h, err := r.Store.ResolvePrefix(spec)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return "", fmt.Errorf("resolve %q: unknown revision", spec)
		}
		return "", fmt.Errorf("resolve %q: %w", spec, err)
	}
	if _, err := r.Store.ReadCommit(h); err != nil {
		return "", fmt.Errorf("resolve %q: %w", spec, err)
	}
	return h, nil
}

// IsBranch reports whether name is an existing branch.
func (r *Repo) IsBranch(name string) bool {
	if name == "" || strings.Contains(name, "..") {
		return false
	}
	info, err := os.Stat(filepath.Join(r.Dir, "refs", "heads", filepath.FromSlash(name)))
	return err == nil && !info.IsDir()
}
