package rules

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrPatternSyntax is returned when an exclusion pattern is malformed.
var ErrPatternSyntax = errors.New("pattern syntax error")

// Rules is a compiled, de-duplicated set of exclusion patterns.
// The zero value and a nil *Rules exclude nothing.
type Rules struct {
	// patterns are normalized glob patterns in first-seen order.
	patterns []string
}

// Defaults returns the exclusions used for Python plugins: compiled bytecode,
// interpreter caches, version-control metadata and the scratch directory.
func Defaults() []string {
	return []string{"*.pyc", "__pycache__/*", "*.git*", "tmp/*"}
}

// Compile validates the patterns and returns the rule set.
// No file is touched, so syntax errors surface before any I/O starts.
func Compile(patterns []string) (*Rules, error) {
	r := &Rules{
		patterns: make([]string, 0, len(patterns)),
	}

	seen := make(map[string]struct{}, len(patterns))

	for _, raw := range patterns {
		pattern, err := normalize(raw)
		if err != nil {
			return nil, err
		}

		if _, dup := seen[pattern]; dup {
			continue
		}

		seen[pattern] = struct{}{}
		r.patterns = append(r.patterns, pattern)
	}

	return r, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and constants.
func MustCompile(patterns ...string) *Rules {
	r, err := Compile(patterns)
	if err != nil {
		panic(err)
	}

	return r
}

// Patterns returns a copy of the compiled patterns.
func (r *Rules) Patterns() []string {
	if r == nil {
		return []string{}
	}

	return append([]string{}, r.patterns...)
}

// Len reports the number of distinct patterns.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}

	return len(r.patterns)
}

// Excluded reports whether rel matches at least one pattern.
func (r *Rules) Excluded(rel string) bool {
	_, ok := r.Match(rel)

	return ok
}

// Match returns the first pattern that excludes rel.
// rel may use either separator and is interpreted relative to the tree root.
func (r *Rules) Match(rel string) (string, bool) {
	if r == nil || len(r.patterns) == 0 {
		return "", false
	}

	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return "", false
	}

	segments := strings.Split(rel, "/")

	for _, pattern := range r.patterns {
		if matchAnyWindow(pattern, segments) {
			return pattern, true
		}
	}

	return "", false
}

// matchAnyWindow tests the pattern against every contiguous run of segments.
func matchAnyWindow(pattern string, segments []string) bool {
	for start := range segments {
		for end := start + 1; end <= len(segments); end++ {
			// Patterns were validated in Compile, so the error is always nil.
			if ok, _ := path.Match(pattern, strings.Join(segments[start:end], "/")); ok {
				return true
			}
		}
	}

	return false
}

// normalize cleans a raw pattern and checks its syntax.
func normalize(raw string) (string, error) {
	pattern := strings.TrimSpace(filepath.ToSlash(raw))
	pattern = strings.TrimPrefix(pattern, "./")
	pattern = strings.TrimSuffix(pattern, "/")

	if pattern == "" {
		return "", fmt.Errorf("%w: empty pattern %q", ErrPatternSyntax, raw)
	}

	if _, err := path.Match(pattern, ""); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrPatternSyntax, raw, err)
	}

	return pattern, nil
}
