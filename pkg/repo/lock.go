package repo

import (
	"fmt"

	"github.com/gofrs/flock"

	"github.com/odvcencio/splice/pkg/merge"
)

// Lock takes the working-copy lock without waiting. The returned function
// releases it. A lock held by another process fails with merge.ErrLocked.
func (r *Repo) Lock() (func() error, error) {
	lock := flock.New(r.lockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring working copy lock: %w", err)
	}
	if !locked {
		return nil, merge.NewStateError(merge.ErrLocked, "", "another operation is in progress")
	}
	return lock.Unlock, nil
}
