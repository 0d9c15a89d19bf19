package watcher

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oshokin/plugin-packager/internal/config"
	"github.com/oshokin/plugin-packager/internal/service/packager"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type build struct {
	result *packager.Result
	err    error
}

// entries returns the sorted member names of a zip file.
func entries(t *testing.T, path string) []string {
	t.Helper()

	r, err := zip.OpenReader(path)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, r.Close())
	}()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}

	sort.Strings(names)

	return names
}

// waitBuild returns the next build notification.
func waitBuild(t *testing.T, builds <-chan build) build {
	t.Helper()

	select {
	case b := <-builds:
		return b
	case <-time.After(10 * time.Second):
		require.FailNow(t, "timed out waiting for a build")
	}

	return build{}
}

// TestRun_RebuildsOnChange packages once and again after a source edit.
func TestRun_RebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "plugin.py"), []byte("a"), 0o644))

	// The archive lives inside the watched tree to prove it does not retrigger itself.
	out := filepath.Join(root, "dist.zip")

	builds := make(chan build, 16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- Run(ctx, &Options{
			Root:        root,
			Destination: out,
			Settings: &config.Config{
				Exclude:  []string{"*.pyc"},
				Debounce: 50 * time.Millisecond,
			},
			OnBuild: func(result *packager.Result, err error) {
				builds <- build{result: result, err: err}
			},
		})
	}()

	first := waitBuild(t, builds)
	require.NoError(t, first.err)
	require.Equal(t, []string{"plugin.py"}, entries(t, out))

	// Ignored files do not trigger a build.
	require.NoError(t, os.WriteFile(filepath.Join(root, "plugin.pyc"), []byte("bytecode"), 0o644))

	require.NoError(t, os.Mkdir(filepath.Join(root, "gui"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "gui", "dialog.py"), []byte("b"), 0o644))

	require.Eventually(t, func() bool {
		select {
		case b := <-builds:
			return b.err == nil && len(b.result.Archive.Members) == 2
		default:
			return false
		}
	}, 10*time.Second, 20*time.Millisecond)

	require.Equal(t, []string{"gui/dialog.py", "plugin.py"}, entries(t, out))

	cancel()
	require.NoError(t, <-done)
}

// TestRun_MissingRoot fails instead of watching nothing.
func TestRun_MissingRoot(t *testing.T) {
	err := Run(context.Background(), &Options{
		Root:        filepath.Join(t.TempDir(), "missing"),
		Destination: filepath.Join(t.TempDir(), "out.zip"),
	})
	require.ErrorIs(t, err, packager.ErrSourceNotFound)
}

// TestRun_PatternSyntax rejects bad patterns before watching.
func TestRun_PatternSyntax(t *testing.T) {
	err := Run(context.Background(), &Options{
		Root:        t.TempDir(),
		Destination: filepath.Join(t.TempDir(), "out.zip"),
		Settings:    &config.Config{Exclude: []string{"[abc"}},
	})
	require.ErrorIs(t, err, packager.ErrPatternSyntax)
}
