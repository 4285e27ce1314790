// Package ignore implements a two-class ignore set: a "full ignore" class
// (path and descendants never reported) and a "vcs grandchild ignore" class
// (the directory entry itself is reported, its contents are not).
// Membership and prefix queries are backed by a byte trie (trie.go) for
// O(path length) lookups.
package ignore

import (
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/docker/pkg/fileutils"
	"github.com/pkg/errors"
)

// Set is a root's ignore configuration: the full-ignore and vcs sets, plus
// any configured glob-style name patterns (e.g. "*.pyc") that should also be
// treated as full ignores wherever they match a path component.
type Set struct {
	mu   sync.RWMutex
	root *trieNode

	// fullOrder/vcsOrder preserve insertion order, capped, for platforms that
	// expose a kernel-level exclusion list (FSEvents).
	fullOrder []string
	vcsOrder  []string

	patterns *fileutils.PatternMatcher
}

// MaxKernelExclusions is the cap applied to the insertion-order list
// returned for kernel-level exclusion (FSEvents has a hard limit on the
// number of paths it will exclude natively).
const MaxKernelExclusions = 8 * 1024

// New creates an empty ignore set.
func New() *Set {
	return &Set{root: newTrieNode()}
}

// AddIgnoreDir marks path (and everything under it) as fully ignored.
func (s *Set) AddIgnoreDir(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root.insert(path, true, false)
	if len(s.fullOrder) < MaxKernelExclusions {
		s.fullOrder = append(s.fullOrder, path)
	}
}

// AddIgnoreVCS marks path as a vcs metadata directory: the directory entry
// itself is still reported, but its contents are not.
func (s *Set) AddIgnoreVCS(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root.insert(path, false, true)
	if len(s.vcsOrder) < MaxKernelExclusions {
		s.vcsOrder = append(s.vcsOrder, path)
	}
}

// CompileNamePatterns validates a set of gitignore-style name patterns (for
// example ".git", "*.pyc"), using doublestar for glob-syntax validation and
// docker/docker's fileutils PatternMatcher for the actual per-component
// matching engine.
func (s *Set) CompileNamePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := doublestar.Match(p, "probe"); err != nil {
			return errors.Wrapf(err, "invalid ignore pattern %q", p)
		}
	}
	matcher, err := fileutils.NewPatternMatcher(patterns)
	if err != nil {
		return errors.Wrap(err, "unable to compile ignore patterns")
	}
	s.mu.Lock()
	s.patterns = matcher
	s.mu.Unlock()
	return nil
}

// matchesPattern reports whether any configured name pattern matches the
// base name of path.
func (s *Set) matchesPattern(path string) bool {
	if s.patterns == nil {
		return false
	}
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	matched, err := s.patterns.Matches(base)
	return err == nil && matched
}

// IsIgnored reports whether path is fully ignored: it equals or descends
// from a full-ignore entry, or it strictly descends from (but is not itself)
// a vcs entry.
func (s *Set) IsIgnored(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.matchesPattern(path) {
		return true
	}

	fullLen, fullFound := s.root.prefixMatch(path, func(n *trieNode) bool { return n.full })
	if fullFound {
		_ = fullLen
		return true
	}

	vcsLen, vcsFound := s.root.prefixMatch(path, func(n *trieNode) bool { return n.vcs })
	if vcsFound && vcsLen < len(path) {
		return true
	}
	return false
}

// IsIgnoreVCS reports whether path is itself registered as a vcs metadata
// directory (exact membership test, not a prefix query).
func (s *Set) IsIgnoreVCS(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.root.walk(path)
	return ok && n.vcs
}

// IsIgnoreDir reports whether path is itself registered as a full-ignore
// directory (exact membership test).
func (s *Set) IsIgnoreDir(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.root.walk(path)
	return ok && n.full
}

// KernelExclusions returns the full-ignore and vcs-ignore paths in original
// insertion order, capped at MaxKernelExclusions, for watcher drivers that
// can push exclusions down into the kernel (FSEvents).
func (s *Set) KernelExclusions() (full []string, vcs []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	full = append([]string(nil), s.fullOrder...)
	vcs = append([]string(nil), s.vcsOrder...)
	return full, vcs
}
