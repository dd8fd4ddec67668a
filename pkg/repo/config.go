package repo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/splice/pkg/filemerge"
	"github.com/odvcencio/splice/pkg/match"
	"github.com/odvcencio/splice/pkg/merge"
)

// Config stores repository-local settings from .splice/config.toml.
type Config struct {
	Merge      MergeConfig      `toml:"merge"`
	Update     UpdateConfig     `toml:"update"`
	Worker     WorkerConfig     `toml:"worker"`
	UI         UIConfig         `toml:"ui"`
	Narrow     NarrowConfig     `toml:"narrow"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

type MergeConfig struct {
	CheckUnknown       string `toml:"checkunknown"`
	CheckIgnored       string `toml:"checkignored"`
	FollowCopies       bool   `toml:"followcopies"`
	PreferAncestor     string `toml:"preferancestor"`
	CheckPathConflicts bool   `toml:"checkpathconflicts"`
	Tool               string `toml:"tool"`
	OnFailure          string `toml:"on-failure"`
}

type UpdateConfig struct {
	Check string `toml:"check"`
}

type WorkerConfig struct {
	Enabled bool `toml:"enabled"`
	// Workers is the pool size; zero means one per CPU.
	Workers int `toml:"workers"`
}

type UIConfig struct {
	Username string `toml:"username"`
}

// NarrowConfig limits the working copy to matching paths. Empty include
// means everything.
type NarrowConfig struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

type FilesystemConfig struct {
	// CaseSensitive is auto, true or false.
	CaseSensitive string `toml:"casesensitive"`
}

// DefaultConfig is the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Merge: MergeConfig{
			CheckUnknown:       string(merge.PolicyAbort),
			CheckIgnored:       string(merge.PolicyAbort),
			FollowCopies:       true,
			PreferAncestor:     "*",
			CheckPathConflicts: true,
			Tool:               "merge",
			OnFailure:          "continue",
		},
		Update:     UpdateConfig{Check: "linear"},
		Worker:     WorkerConfig{Enabled: true},
		Filesystem: FilesystemConfig{CaseSensitive: "auto"},
	}
}

func (r *Repo) configPath() string {
	return filepath.Join(r.Dir, "config.toml")
}

// ReadConfig reads .splice/config.toml over the defaults. A missing file
// yields the defaults.
func ReadConfig(dir string) (*Config, error) {
	cfg := DefaultConfig()
	_, err := toml.DecodeFile(filepath.Join(dir, "config.toml"), cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

// Validate checks every enumerated setting.
func (c *Config) Validate() error {
	if _, err := merge.ParsePolicy(c.Merge.CheckUnknown); err != nil {
		return fmt.Errorf("merge.checkunknown: %w", err)
	}
	if _, err := merge.ParsePolicy(c.Merge.CheckIgnored); err != nil {
		return fmt.Errorf("merge.checkignored: %w", err)
	}
	if _, err := filemerge.Tool(c.Merge.Tool); err != nil {
		return fmt.Errorf("merge.tool: %w", err)
	}
	if err := oneOf("merge.on-failure", c.Merge.OnFailure, "continue", "halt"); err != nil {
		return err
	}
	if err := oneOf("update.check", c.Update.Check, "none", "linear", "noconflict"); err != nil {
		return err
	}
	if err := oneOf("filesystem.casesensitive", c.Filesystem.CaseSensitive, "auto", "true", "false"); err != nil {
		return err
	}
	if c.Worker.Workers < 0 {
		return fmt.Errorf("worker.workers: must not be negative, got %d", c.Worker.Workers)
	}
	if _, err := c.NarrowMatcher(); err != nil {
		return fmt.Errorf("narrow: %w", err)
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s: invalid value %q (want %s)", key, value, strings.Join(allowed, ", "))
}

// NarrowMatcher returns the narrow scope, or nil when the working copy is
// not narrowed.
func (c *Config) NarrowMatcher() (match.Matcher, error) {
	if len(c.Narrow.Include) == 0 && len(c.Narrow.Exclude) == 0 {
		return nil, nil
	}
	return match.Patterns(c.Narrow.Include, c.Narrow.Exclude)
}

// WriteConfig atomically writes .splice/config.toml and makes cfg the
// active configuration.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(r.Dir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	r.cfg = cfg
	return nil
}

// CaseSensitive reports whether the working copy's filesystem tells paths
// differing only in case apart.
func (r *Repo) CaseSensitive() bool {
	switch r.cfg.Filesystem.CaseSensitive {
	case "true":
		return true
	case "false":
		return false
	}
	return probeCaseSensitive(r.Dir)
}

func probeCaseSensitive(dir string) bool {
	f, err := os.CreateTemp(dir, ".caseprobe-")
	if err != nil {
		return true
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	base := filepath.Base(name)
	folded := strings.ToUpper(base)
	if folded == base {
		folded = strings.ToLower(base)
	}
	_, err = os.Lstat(filepath.Join(dir, folded))
	return err != nil
}
