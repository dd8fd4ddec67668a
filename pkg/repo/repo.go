package repo

import (
	"log/slog"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/object"
)

// DirName is the metadata directory at the root of every working copy.
const DirName = ".splice"

const manifestCacheSize = 64

// Repo represents an opened splice repository.
type Repo struct {
	RootDir string        // working directory root
	Dir     string        // .splice/ directory
	Store   *object.Store // content-addressed object store
	Logger  *slog.Logger

	cfg       *Config
	manifests *lru.Cache[object.Hash, *manifest.Manifest]

	mergeTraversalStateOnce sync.Once
	mergeTraversalState     *mergeBaseTraversalState
}

func newRepo(root string, cfg *Config) *Repo {
	dir := filepath.Join(root, DirName)
	cache, _ := lru.New[object.Hash, *manifest.Manifest](manifestCacheSize)
	return &Repo{
		RootDir:   root,
		Dir:       dir,
		Store:     object.NewStore(dir),
		Logger:    slog.Default(),
		cfg:       cfg,
		manifests: cache,
	}
}

// Config returns the repository configuration read at open time.
func (r *Repo) Config() *Config { return r.cfg }

func (r *Repo) getMergeTraversalState() *mergeBaseTraversalState {
	r.mergeTraversalStateOnce.Do(func() {
		r.mergeTraversalState = newMergeBaseTraversalState()
	})
	return r.mergeTraversalState
}

// DirstatePath is the tracking store file.
func (r *Repo) DirstatePath() string { return filepath.Join(r.Dir, "dirstate") }

// MergeStatePath is the merge conflict database.
func (r *Repo) MergeStatePath() string { return filepath.Join(r.Dir, "merge", "state.db") }

// UpdateStatePath is the interrupted-update marker.
func (r *Repo) UpdateStatePath() string { return filepath.Join(r.Dir, "updatestate") }

func (r *Repo) lockPath() string { return filepath.Join(r.Dir, "wlock") }
