package apply

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/splice/pkg/dirstate"
	"github.com/odvcencio/splice/pkg/manifest"
	"github.com/odvcencio/splice/pkg/mergestate"
	"github.com/odvcencio/splice/pkg/object"
	"github.com/odvcencio/splice/pkg/overlay"
)

type testRev struct {
	id    object.Hash
	files map[string]string
	flags map[string]manifest.Flag
}

// newRev builds a revision from "path=content" pairs; a "*x" suffix on the
// content marks the file executable.
func newRev(id string, pairs ...string) *testRev {
	r := &testRev{id: object.Hash(id), files: map[string]string{}, flags: map[string]manifest.Flag{}}
	for _, p := range pairs {
		path, content, _ := strings.Cut(p, "=")
		if c, ok := strings.CutSuffix(content, "*x"); ok {
			content = c
			r.flags[path] = manifest.FlagExec
		}
		r.files[path] = content
	}
	return r
}

func (r *testRev) ID() object.Hash        { return r.id }
func (r *testRev) String() string         { return string(r.id) }
func (r *testRev) Parents() []object.Hash { return nil }

func (r *testRev) Manifest() *manifest.Manifest {
	m := manifest.New()
	for p, data := range r.files {
		m.Set(p, manifest.Entry{Node: object.BlobHash([]byte(data)), Flag: r.flags[p]})
	}
	return m
}

func (r *testRev) Data(p string) ([]byte, error) {
	data, ok := r.files[p]
	if !ok {
		return nil, object.ErrNotFound
	}
	return []byte(data), nil
}

func (r *testRev) Flag(p string) manifest.Flag { return r.flags[p] }

type memBlobs struct {
	mu    sync.Mutex
	blobs map[object.Hash][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{blobs: map[object.Hash][]byte{}} }

func (m *memBlobs) WriteBlob(b *object.Blob) (object.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := object.BlobHash(b.Data)
	m.blobs[h] = append([]byte(nil), b.Data...)
	return h, nil
}

func (m *memBlobs) BlobData(h object.Hash) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[h]
	if !ok {
		return nil, object.ErrNotFound
	}
	return data, nil
}

// diskTarget behaves like an on-disk working copy: it allows parallel
// writers, reports metadata and can fail removals and writes.
type diskTarget struct {
	*overlay.Overlay
	mtime      time.Time
	failRemove map[string]bool
	failWrite  map[string]bool
}

func newDiskTarget(base *testRev) *diskTarget {
	return &diskTarget{Overlay: overlay.New(base), mtime: time.Unix(1_700_000_000, 0), failRemove: map[string]bool{}, failWrite: map[string]bool{}}
}

func (d *diskTarget) InMemory() bool { return false }

func (d *diskTarget) Remove(p string) error {
	if d.failRemove[p] {
		return errors.New("permission denied")
	}
	return d.Overlay.Remove(p)
}

func (d *diskTarget) Write(p string, data []byte, flag manifest.Flag) error {
	if d.failWrite[p] {
		return errors.New("read-only file system")
	}
	return d.Overlay.Write(p, data, flag)
}

func (d *diskTarget) Stat(p string) (*dirstate.FileData, error) {
	data, err := d.Data(p)
	if err != nil {
		return nil, err
	}
	return &dirstate.FileData{Mode: 0o644, Size: int64(len(data)), MTime: d.mtime}, nil
}

func openState(t *testing.T) *mergestate.Store {
	t.Helper()
	ms, err := mergestate.Open(mergestate.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { ms.Close() })
	return ms
}

func readFile(t *testing.T, wc Target, p string) string {
	t.Helper()
	data, err := wc.Data(p)
	require.NoError(t, err, "read %s", p)
	return string(data)
}
