package repo

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/object"
)

// BuildTree converts a flat manifest into a hierarchical tree structure,
// writing TreeObj objects to the store and returning the root hash. The
// blobs the manifest names must already be stored.
func (r *Repo) BuildTree(m *manifest.Manifest) (object.Hash, error) {
	return r.buildTreeDir(m.Paths(), m, "")
}

// buildTreeDir builds the tree for the directory prefix from the sorted
// paths below it.
func (r *Repo) buildTreeDir(paths []string, m *manifest.Manifest, prefix string) (object.Hash, error) {
	var entries []object.TreeEntry
	for i := 0; i < len(paths); {
		rel := paths[i]
		if prefix != "" {
			rel = rel[len(prefix)+1:]
		}

		name, _, isDir := strings.Cut(rel, "/")
		if !isDir {
			e, _ := m.Get(paths[i])
			entries = append(entries, object.TreeEntry{
				Name:     name,
				Mode:     e.Flag.Mode(),
				BlobHash: e.Node,
			})
			i++
			continue
		}

		// Sorted paths keep a directory's files contiguous.
		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		j := i
		for j < len(paths) && strings.HasPrefix(paths[j], childPrefix+"/") {
			j++
		}
		subHash, err := r.buildTreeDir(paths[i:j], m, childPrefix)
		if err != nil {
			return "", fmt.Errorf("build tree %q: %w", childPrefix, err)
		}
		entries = append(entries, object.TreeEntry{
			Name:        name,
			IsDir:       true,
			Mode:        object.TreeModeDir,
			SubtreeHash: subHash,
		})
		i = j
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name < entries[b].Name })

	h, err := r.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

// FlattenTree walks a tree object recursively into a manifest keyed by
// forward-slash paths.
func (r *Repo) FlattenTree(h object.Hash) (*manifest.Manifest, error) {
	m := manifest.New()
	if err := r.flattenTreeRec(h, "", m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repo) flattenTreeRec(h object.Hash, prefix string, m *manifest.Manifest) error {
	treeObj, err := r.Store.ReadTree(h)
	if err != nil {
		return fmt.Errorf("flatten tree: read %s: %w", h, err)
	}

	for _, entry := range treeObj.Entries {
		fullPath := entry.Name
		if prefix != "" {
			fullPath = path.Join(prefix, entry.Name)
		}

		if entry.IsDir {
			if err := r.flattenTreeRec(entry.SubtreeHash, fullPath, m); err != nil {
				return err
			}
			continue
		}
		m.Set(fullPath, manifest.Entry{Node: entry.BlobHash, Flag: manifest.FlagFromMode(entry.Mode)})
	}
	return nil
}

// Manifest returns the file manifest of a commit, "" giving the empty
// manifest. Manifests are cached and shared: callers must not modify them.
func (r *Repo) Manifest(id object.Hash) (*manifest.Manifest, error) {
	if id == "" {
		return manifest.New(), nil
	}
	if m, ok := r.manifests.Get(id); ok {
		return m, nil
	}
	commit, err := r.Store.ReadCommit(id)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", id.Short(), err)
	}
	m, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", id.Short(), err)
	}
	r.manifests.Add(id, m)
	return m, nil
}
