package repo

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFile lists patterns of untracked files the merge may treat as
// ignored.
const IgnoreFile = ".spliceignore"

// IgnoreChecker determines if a path should be ignored.
type IgnoreChecker struct {
	patterns []ignorePattern

	// Pattern indexes grouped by how IsIgnored can find them.
	exactBasePatterns   map[string][]int
	exactPathPatterns   map[string][]int
	wildcardBasePattern []int
	wildcardPathPattern []int
}

type ignorePattern struct {
	pattern  string
	negated  bool
	dirOnly  bool
	hasSlash bool // anchored: match against the full path
}

// NewIgnoreChecker creates an IgnoreChecker for the given repository root.
// It always ignores .splice/ and .git/. Patterns from .spliceignore, if
// present, follow.
func NewIgnoreChecker(repoRoot string) *IgnoreChecker {
	lines := []string{DirName + "/", ".git/"}
	if f, err := os.Open(filepath.Join(repoRoot, IgnoreFile)); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		f.Close()
	}
	return newIgnoreChecker(lines)
}

func newIgnoreChecker(lines []string) *IgnoreChecker {
	ic := &IgnoreChecker{}
	for _, line := range lines {
		if p := parseLine(line); p != nil {
			ic.patterns = append(ic.patterns, *p)
		}
	}
	ic.compile()
	return ic
}

// parseLine parses one ignore-file line. Returns nil for blank lines and
// comments.
func parseLine(line string) *ignorePattern {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	p := &ignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		line = strings.TrimLeft(line, "/")
		p.hasSlash = true
	}
	p.hasSlash = p.hasSlash || strings.Contains(line, "/")
	if line == "" || !doublestar.ValidatePattern(line) {
		return nil
	}
	p.pattern = line
	return p
}

// IsIgnored checks whether a slash-separated file path relative to the
// root is ignored. The last matching pattern wins, so negations can
// re-include.
func (ic *IgnoreChecker) IsIgnored(p string) bool { return ic.ignored(p, false) }

// IsIgnoredDir is IsIgnored for a directory, which directory-only patterns
// also match.
func (ic *IgnoreChecker) IsIgnoredDir(p string) bool { return ic.ignored(p, true) }

func (ic *IgnoreChecker) ignored(p string, isDir bool) bool {
	p = filepath.ToSlash(p)

	lastMatch := -1
	ignored := false
	apply := func(idx int) {
		if idx > lastMatch {
			lastMatch = idx
			ignored = !ic.patterns[idx].negated
		}
	}
	applyAll := func(idxs []int) {
		for _, idx := range idxs {
			apply(idx)
		}
	}

	// Anchored literals match the path itself or any ancestor.
	applyAll(ic.exactPathPatterns[p])
	for _, dir := range parentDirs(p) {
		applyAll(ic.exactPathPatterns[dir])
	}
	// Bare literals match any path segment; directory-only ones skip the
	// last segment.
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		for _, idx := range ic.exactBasePatterns[seg] {
			if i < len(segments)-1 || isDir || !ic.patterns[idx].dirOnly {
				apply(idx)
			}
		}
	}

	for _, idx := range ic.wildcardPathPattern {
		if ic.patterns[idx].matchUnder(p, isDir) {
			apply(idx)
		}
	}
	for _, idx := range ic.wildcardBasePattern {
		if ic.patterns[idx].matchAnySegment(p, isDir) {
			apply(idx)
		}
	}
	return ignored
}

func (ic *IgnoreChecker) compile() {
	ic.exactBasePatterns = make(map[string][]int)
	ic.exactPathPatterns = make(map[string][]int)

	for idx, p := range ic.patterns {
		literal := !strings.ContainsAny(p.pattern, "*?[{\\")
		switch {
		case literal && p.hasSlash:
			ic.exactPathPatterns[p.pattern] = append(ic.exactPathPatterns[p.pattern], idx)
		case literal:
			ic.exactBasePatterns[p.pattern] = append(ic.exactBasePatterns[p.pattern], idx)
		case p.hasSlash:
			ic.wildcardPathPattern = append(ic.wildcardPathPattern, idx)
		default:
			ic.wildcardBasePattern = append(ic.wildcardBasePattern, idx)
		}
	}
}

// matchUnder matches an anchored pattern against p or any of its parent
// directories.
func (ip *ignorePattern) matchUnder(p string, isDir bool) bool {
	if isDir || !ip.dirOnly {
		if ok, _ := doublestar.Match(ip.pattern, p); ok {
			return true
		}
	}
	for _, dir := range parentDirs(p) {
		if ok, _ := doublestar.Match(ip.pattern, dir); ok {
			return true
		}
	}
	return false
}

// matchAnySegment matches an unanchored pattern against the base name of p
// and, for directory matches, against each parent directory's name.
func (ip *ignorePattern) matchAnySegment(p string, isDir bool) bool {
	segments := strings.Split(p, "/")
	last := len(segments) - 1
	for i, seg := range segments {
		if i == last && ip.dirOnly && !isDir {
			break
		}
		if ok, _ := doublestar.Match(ip.pattern, seg); ok {
			return true
		}
	}
	return false
}

func parentDirs(p string) []string {
	var dirs []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			dirs = append(dirs, p[:i])
		}
	}
	return dirs
}
