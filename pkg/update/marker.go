package update

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// marker is written before the executor touches the working copy and
// removed once the tracking store is saved. Finding one means an update
// died midway.
type marker struct {
	Target      string `toml:"target"`
	Operation   string `toml:"operation"`
	BranchMerge bool   `toml:"branchmerge"`
}

func readMarker(path string) (*marker, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read update marker: %w", err)
	}
	var m marker
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, fmt.Errorf("read update marker: %w", err)
	}
	return &m, nil
}

func writeMarker(path string, m marker) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("write update marker: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".updatestate-tmp-*")
	if err != nil {
		return fmt.Errorf("write update marker: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write update marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write update marker: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write update marker: %w", err)
	}
	return nil
}

func removeMarker(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove update marker: %w", err)
	}
	return nil
}
