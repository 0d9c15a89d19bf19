package tree

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/plugin-packager/internal/domain/plugin"
	"github.com/oshokin/plugin-packager/internal/rules"
)

// makeTree creates empty-content files for every relative path.
func makeTree(t *testing.T, paths ...string) string {
	t.Helper()

	root := t.TempDir()

	for _, rel := range paths {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(rel), 0o644))
	}

	return root
}

// TestScan_AppliesRules splits files into members and excluded paths.
func TestScan_AppliesRules(t *testing.T) {
	t.Parallel()

	root := makeTree(t,
		"plugin.py",
		"gui/dialog.py",
		"gui/__pycache__/dialog.cpython-311.pyc",
		".git/HEAD",
		"tmp/scratch.txt",
	)

	res, err := Scan(context.Background(), root, rules.MustCompile(rules.Defaults()...), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"gui/dialog.py", "plugin.py"}, domain.Paths(res.Tree.Members))
	require.ElementsMatch(t, []string{".git/", "gui/__pycache__/dialog.cpython-311.pyc", "tmp/scratch.txt"}, res.Excluded)
	require.EqualValues(t, len("plugin.py"), res.Tree.Members[1].Size)
}

// TestScan_SkipFunc ignores paths rejected by the skip callback.
func TestScan_SkipFunc(t *testing.T) {
	t.Parallel()

	root := makeTree(t, "plugin.py", "dist.zip")
	out := filepath.Join(root, "dist.zip")

	res, err := Scan(context.Background(), root, nil, func(abs string) bool { return abs == out })
	require.NoError(t, err)
	require.Equal(t, []string{"plugin.py"}, domain.Paths(res.Tree.Members))
	require.Empty(t, res.Excluded)
}

// TestScan_Symlinks skips symbolic links.
func TestScan_Symlinks(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	root := makeTree(t, "plugin.py")
	require.NoError(t, os.Symlink(filepath.Join(root, "plugin.py"), filepath.Join(root, "link.py")))

	res, err := Scan(context.Background(), root, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"plugin.py"}, domain.Paths(res.Tree.Members))
	require.Equal(t, []string{"link.py"}, res.Skipped)
}

// TestScan_RootErrors reports missing roots and files used as roots.
func TestScan_RootErrors(t *testing.T) {
	t.Parallel()

	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, nil)
	require.ErrorIs(t, err, os.ErrNotExist)

	root := makeTree(t, "plugin.py")
	_, err = Scan(context.Background(), filepath.Join(root, "plugin.py"), nil, nil)
	require.ErrorIs(t, err, ErrNotDirectory)
}

// TestScan_Cancelled stops walking once the context is done.
func TestScan_Cancelled(t *testing.T) {
	t.Parallel()

	root := makeTree(t, "a.py", "b.py")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scan(ctx, root, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}
