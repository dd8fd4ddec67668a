package object

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestHashBytesDeterminism(t *testing.T) {
	h1 := HashBytes([]byte("hello world"))
	h2 := HashBytes([]byte("hello world"))
	if h1 != h2 {
		t.Errorf("HashBytes not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("Hash length: got %d, want 64", len(h1))
	}
}

func TestHashObjectEnvelope(t *testing.T) {
	data := []byte("hello")
	if HashObject(TypeBlob, data) == HashBytes(data) {
		t.Error("HashObject should differ from HashBytes due to envelope")
	}
	if HashObject(TypeBlob, data) == HashObject(TypeTree, data) {
		t.Error("Different types should produce different hashes")
	}
	if BlobHash(data) != HashObject(TypeBlob, data) {
		t.Error("BlobHash should match HashObject(TypeBlob)")
	}
}

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestStoreWriteRead(t *testing.T) {
	s := tempStore(t)
	data := []byte("hello world")
	h, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	gotType, gotData, err := s.Read(h)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotType != TypeBlob {
		t.Errorf("Type: got %q, want %q", gotType, TypeBlob)
	}
	if !bytes.Equal(gotData, data) {
		t.Errorf("Data: got %q, want %q", gotData, data)
	}
}

func TestStoreWritesCompressedObjects(t *testing.T) {
	s := tempStore(t)
	data := bytes.Repeat([]byte("compress me "), 200)
	h, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(s.root, "objects", string(h[:2]), string(h[2:])))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(raw, zstdMagic) {
		t.Fatalf("loose object is not zstd framed")
	}
	if len(raw) >= len(data) {
		t.Errorf("compressed size %d not smaller than input %d", len(raw), len(data))
	}
}

func TestStoreReadsLegacyRawObjects(t *testing.T) {
	s := tempStore(t)
	data := []byte("legacy")
	h := HashObject(TypeBlob, data)
	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	raw := append(envelopeHeader(TypeBlob, len(data)), data...)
	if err := os.WriteFile(filepath.Join(dir, string(h[2:])), raw, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadBlob(h)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(got.Data) != "legacy" {
		t.Errorf("Data: got %q", got.Data)
	}
}

func TestStoreReadMissing(t *testing.T) {
	s := tempStore(t)
	_, _, err := s.Read(Hash("0000000000000000000000000000000000000000000000000000000000000000"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read missing: got %v, want ErrNotFound", err)
	}
}

func TestStoreTypeMismatch(t *testing.T) {
	s := tempStore(t)
	h, err := s.WriteTree(&TreeObj{})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	if _, err := s.ReadBlob(h); err == nil {
		t.Fatal("ReadBlob of a tree should fail")
	}
}

func TestStoreBlobCacheSharedAcrossReaders(t *testing.T) {
	s := NewStore(t.TempDir(), WithCacheSize(4))
	h, err := s.WriteBlob(&Blob{Data: []byte("shared")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := s.BlobData(h)
			if err != nil {
				errs <- err
				return
			}
			if string(data) != "shared" {
				errs <- errors.New("bad blob content " + string(data))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if !s.blobs.Contains(h) {
		t.Error("blob not cached after read")
	}
}

func TestReadBlobReturnsPrivateCopy(t *testing.T) {
	s := tempStore(t)
	h, err := s.WriteBlob(&Blob{Data: []byte("abc")})
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.ReadBlob(h)
	if err != nil {
		t.Fatal(err)
	}
	b.Data[0] = 'z'
	again, err := s.ReadBlob(h)
	if err != nil {
		t.Fatal(err)
	}
	if string(again.Data) != "abc" {
		t.Errorf("cached blob mutated: %q", again.Data)
	}
}

func TestResolvePrefix(t *testing.T) {
	s := tempStore(t)
	h, err := s.WriteBlob(&Blob{Data: []byte("prefix")})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.ResolvePrefix(string(h[:10]))
	if err != nil {
		t.Fatalf("ResolvePrefix: %v", err)
	}
	if got != h {
		t.Errorf("ResolvePrefix: got %s, want %s", got, h)
	}
	if _, err := s.ResolvePrefix("ab"); err == nil {
		t.Error("short prefix should fail")
	}
}
