package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestExcluded_DefaultPatterns checks the documented plugin exclusions against typical paths.
func TestExcluded_DefaultPatterns(t *testing.T) {
	t.Parallel()

	r, err := Compile(Defaults())
	require.NoError(t, err)

	cases := map[string]bool{
		"plugin.py":                  false,
		"__init__.py":                false,
		"gui/dialog.py":              false,
		"README.md":                  false,
		"mod.pyc":                    true,
		"gui/mod.pyc":                true,
		"__pycache__/mod.pyc":        true,
		"__pycache__/mod.cpython.so": true,
		"gui/__pycache__/x.txt":      true,
		".git/HEAD":                  true,
		".git/refs/heads/main":       true,
		".gitignore":                 true,
		"sub/.gitattributes":         true,
		"tmp/scratch.txt":            true,
		"tmp/nested/scratch.txt":     true,
		"gui/tmp/scratch.txt":        true,
		"tmpfile.txt":                false,
		"templates/tmp.html":         false,
	}

	for rel, want := range cases {
		require.Equal(t, want, r.Excluded(rel), rel)
	}
}

// TestMatch_ReturnsPattern ensures the matching pattern is reported for messages.
func TestMatch_ReturnsPattern(t *testing.T) {
	t.Parallel()

	r := MustCompile("*.log", "build/*")

	pattern, ok := r.Match("build/out/plugin.zip")
	require.True(t, ok)
	require.Equal(t, "build/*", pattern)

	_, ok = r.Match("src/plugin.py")
	require.False(t, ok)

	_, ok = r.Match("")
	require.False(t, ok)
}

// TestExcluded_OrderIndependent verifies set semantics: reordering patterns never changes a decision.
func TestExcluded_OrderIndependent(t *testing.T) {
	t.Parallel()

	forward := MustCompile("*.pyc", "tmp/*", "*.git*", "docs")
	backward := MustCompile("docs", "*.git*", "tmp/*", "*.pyc")

	paths := []string{
		"a.pyc", "tmp/a", "docs/index.md", "docs", ".git/HEAD", "plugin.py", "lib/docs/x.md",
	}

	for _, p := range paths {
		require.Equal(t, forward.Excluded(p), backward.Excluded(p), p)
	}
}

// TestCompile_SyntaxErrors asserts malformed patterns are rejected with ErrPatternSyntax.
func TestCompile_SyntaxErrors(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"[abc", "", "   ", "/", "a\\"} {
		_, err := Compile([]string{"*.pyc", bad})
		require.ErrorIs(t, err, ErrPatternSyntax, "pattern %q", bad)
	}
}

// TestCompile_Normalizes trims and de-duplicates patterns.
func TestCompile_Normalizes(t *testing.T) {
	t.Parallel()

	r, err := Compile([]string{" *.pyc ", "./tmp/*", "*.pyc", "cache/"})
	require.NoError(t, err)
	require.Equal(t, []string{"*.pyc", "tmp/*", "cache"}, r.Patterns())
	require.Equal(t, 3, r.Len())
	require.True(t, r.Excluded("cache/data.bin"))
}

// TestNilRules checks that a nil rule set excludes nothing.
func TestNilRules(t *testing.T) {
	t.Parallel()

	var r *Rules

	require.False(t, r.Excluded("anything.pyc"))
	require.Zero(t, r.Len())
	require.Empty(t, r.Patterns())
}
