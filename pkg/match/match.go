// Package match provides path predicates used to restrict merges and to
// describe narrow working copies.
package match

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher decides whether a repository path is in scope.
type Matcher interface {
	Match(path string) bool
	// Always reports whether the matcher accepts every path.
	Always() bool
}

type always struct{}

func (always) Match(string) bool { return true }
func (always) Always() bool      { return true }

type never struct{}

func (never) Match(string) bool { return false }
func (never) Always() bool      { return false }

// Always matches every path.
func Always() Matcher { return always{} }

// Never matches nothing.
func Never() Matcher { return never{} }

// IsAlways reports whether m is nil or accepts every path.
func IsAlways(m Matcher) bool {
	return m == nil || m.Always()
}

type exact map[string]struct{}

func (e exact) Match(p string) bool {
	_, ok := e[p]
	return ok
}

func (exact) Always() bool { return false }

// Exact matches the listed paths only.
func Exact(paths ...string) Matcher {
	e := make(exact, len(paths))
	for _, p := range paths {
		e[p] = struct{}{}
	}
	return e
}

type patterns struct {
	include []string
	exclude []string
}

// Patterns builds a matcher from doublestar include and exclude patterns.
// An empty include list accepts every path not excluded. A pattern without
// glob metacharacters also matches everything below it, so "docs" covers
// "docs/a.md".
func Patterns(include, exclude []string) (Matcher, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("match: invalid pattern %q", p)
		}
	}
	if len(include) == 0 && len(exclude) == 0 {
		return Always(), nil
	}
	return &patterns{include: clean(include), exclude: clean(exclude)}, nil
}

func clean(pats []string) []string {
	out := make([]string, 0, len(pats))
	for _, p := range pats {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (m *patterns) Always() bool { return false }

func (m *patterns) Match(p string) bool {
	if matchAny(m.exclude, p) {
		return false
	}
	return len(m.include) == 0 || matchAny(m.include, p)
}

func matchAny(pats []string, p string) bool {
	for _, pat := range pats {
		if ok, _ := doublestar.Match(pat, p); ok {
			return true
		}
		if !strings.ContainsAny(pat, "*?[{") && strings.HasPrefix(p, pat+"/") {
			return true
		}
		if ok, _ := doublestar.Match(pat+"/**", p); ok {
			return true
		}
	}
	return false
}

type intersect struct{ a, b Matcher }

func (m intersect) Match(p string) bool { return m.a.Match(p) && m.b.Match(p) }
func (m intersect) Always() bool        { return m.a.Always() && m.b.Always() }

// Intersect accepts paths accepted by both matchers. Nil arguments are
// treated as Always.
func Intersect(a, b Matcher) Matcher {
	switch {
	case IsAlways(a) && b != nil:
		return b
	case IsAlways(b) && a != nil:
		return a
	case a == nil && b == nil:
		return Always()
	}
	return intersect{a: a, b: b}
}
