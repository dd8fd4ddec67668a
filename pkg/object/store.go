package object

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of decoded blobs kept in memory.
const DefaultCacheSize = 512

// ErrNotFound is returned when an object is missing from the store.
var ErrNotFound = errors.New("object not found")

// Store is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123...
//
// A Store is safe for concurrent use. Decoded blobs are shared through an
// LRU cache and must be treated as read-only by callers.
type Store struct {
	root  string
	blobs *lru.Cache[Hash, []byte]
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	cacheSize int
}

// WithCacheSize sets the blob cache capacity. Zero or less disables caching.
func WithCacheSize(n int) Option {
	return func(c *storeConfig) { c.cacheSize = n }
}

// NewStore creates a Store rooted at the given directory. The objects/
// subdirectory is created lazily on first write.
func NewStore(root string, opts ...Option) *Store {
	cfg := storeConfig{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Store{root: root}
	if cfg.cacheSize > 0 {
		cache, err := lru.New[Hash, []byte](cfg.cacheSize)
		if err == nil {
			s.blobs = cache
		}
	}
	return s
}

func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if len(h) < 3 {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores an object and returns its content hash. The envelope
// "type len\0content" is zstd-compressed and written atomically through a
// temp file and rename.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	h := HashObject(objType, data)
	if s.Has(h) {
		return h, nil
	}

	raw := append(envelopeHeader(objType, len(data)), data...)
	compressed, err := compressZstd(raw)
	if err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}
	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}
	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if len(h) < 3 {
		return "", nil, fmt.Errorf("object read %q: %w", h, ErrNotFound)
	}
	stored, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	raw, err := decodeLoose(stored)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: decompress: %w", h, err)
	}

	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("object read %s: invalid format (no NUL)", h)
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	typ, lenStr, ok := strings.Cut(header, " ")
	if !ok {
		return "", nil, fmt.Errorf("object read %s: invalid header %q", h, header)
	}
	length, err := strconv.Atoi(lenStr)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: invalid length %q: %w", h, lenStr, err)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("object read %s: length mismatch (header=%d, actual=%d)", h, length, len(content))
	}
	return ObjectType(typ), content, nil
}

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}

// WriteBlob stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, b.Data)
}

// ReadBlob reads a Blob. The returned data is a private copy.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.BlobData(h)
	if err != nil {
		return nil, err
	}
	return &Blob{Data: bytes.Clone(data)}, nil
}

// BlobData returns blob content through the cache. The slice is shared and
// must not be modified.
func (s *Store) BlobData(h Hash) ([]byte, error) {
	if s.blobs != nil {
		if data, ok := s.blobs.Get(h); ok {
			return data, nil
		}
	}
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	if s.blobs != nil {
		s.blobs.Add(h, data)
	}
	return data, nil
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	return s.Write(TypeTree, MarshalTree(tr))
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(data)
}

// ResolvePrefix expands a unique hash prefix of at least four characters.
func (s *Store) ResolvePrefix(prefix string) (Hash, error) {
	if len(prefix) < 4 {
		return "", fmt.Errorf("resolve prefix %q: too short", prefix)
	}
	prefix = strings.ToLower(prefix)
	entries, err := os.ReadDir(filepath.Join(s.root, "objects", prefix[:2]))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("resolve prefix %q: %w", prefix, ErrNotFound)
		}
		return "", fmt.Errorf("resolve prefix %q: %w", prefix, err)
	}
	var match Hash
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".tmp-") || !strings.HasPrefix(name, prefix[2:]) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("resolve prefix %q: ambiguous", prefix)
		}
		match = Hash(prefix[:2] + name)
	}
	if match == "" {
		return "", fmt.Errorf("resolve prefix %q: %w", prefix, ErrNotFound)
	}
	return match, nil
}
