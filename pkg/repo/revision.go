package repo

import (
	"fmt"
	"time"

	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/merge"
	"github.com/odvcencio/splice/pkg/object"
)

// Revision is a committed snapshot. It implements merge.Revision.
type Revision struct {
	repo   *Repo
	id     object.Hash
	commit *object.CommitObj
	mf     *manifest.Manifest
}

var _ merge.Revision = (*Revision)(nil)

// Revision loads the commit id. The empty hash is the null revision, which
// has no files and no parents.
func (r *Repo) Revision(id object.Hash) (*Revision, error) {
	rev := &Revision{repo: r, id: id, commit: &object.CommitObj{}}
	if id != "" {
		commit, err := r.Store.ReadCommit(id)
		if err != nil {
			return nil, fmt.Errorf("revision %s: %w", id.Short(), err)
		}
		rev.commit = commit
	}
	mf, err := r.Manifest(id)
	if err != nil {
		return nil, err
	}
	rev.mf = mf
	return rev, nil
}

func (v *Revision) ID() object.Hash { return v.id }

func (v *Revision) String() string {
	if v.id == "" {
		return NullSpec
	}
	return v.id.Short()
}

// Manifest is shared with the repository cache and must not be modified.
func (v *Revision) Manifest() *manifest.Manifest { return v.mf }

// Data returns the content of path. The slice is shared with the blob cache
// and must not be modified.
func (v *Revision) Data(path string) ([]byte, error) {
	e, ok := v.mf.Get(path)
	if !ok {
		return nil, fmt.Errorf("revision %s: %s: %w", v, path, object.ErrNotFound)
	}
	return v.repo.Store.BlobData(e.Node)
}

func (v *Revision) Flag(path string) manifest.Flag { return v.mf.Flag(path) }

func (v *Revision) Parents() []object.Hash { return v.commit.Parents }

func (v *Revision) Author() string { return v.commit.Author }

func (v *Revision) Message() string { return v.commit.Message }

func (v *Revision) Time() time.Time {
	if v.commit.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(v.commit.Timestamp, 0)
}
