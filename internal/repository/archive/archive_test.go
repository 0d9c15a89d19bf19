package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/plugin-packager/internal/domain/plugin"
)

// writeFile creates a file with content below dir and returns its path.
func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// TestWriter_CommitAndRead writes two members, commits and reads them back.
func TestWriter_CommitAndRead(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "dist", "plugin.zip")

	w, err := Create(out, WriterOptions{})
	require.NoError(t, err)

	// Nothing at the destination before Commit.
	_, err = os.Stat(out)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.True(t, IsTemporary(out, w.TempPath()))

	require.NoError(t, w.Add(domain.Member{Path: "__init__.py", Mode: 0o644},
		writeFile(t, src, "__init__.py", "__version__ = \"1.1\"\n")))
	require.NoError(t, w.Add(domain.Member{Path: "gui/dialog.py", Mode: 0o644},
		writeFile(t, src, "gui/dialog.py", "class Dialog: pass\n")))

	archive, err := w.Commit()
	require.NoError(t, err)
	require.Equal(t, out, archive.Path)
	require.Len(t, archive.Members, 2)
	require.Positive(t, archive.Size)

	// Temp file is gone.
	_, err = os.Stat(w.TempPath())
	require.ErrorIs(t, err, os.ErrNotExist)

	r, err := Open(out)
	require.NoError(t, err)

	defer func() {
		_ = r.Close()
	}()

	require.Equal(t, []string{"__init__.py", "gui/dialog.py"}, domain.Paths(r.Members()))

	sums, err := r.Checksums()
	require.NoError(t, err)

	want, err := Checksum(bytes.NewReader([]byte("class Dialog: pass\n")))
	require.NoError(t, err)
	require.Equal(t, want, sums["gui/dialog.py"])
	require.Equal(t, w.Checksums(), sums)
}

// TestWriter_Prefix stores members under the configured directory.
func TestWriter_Prefix(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "plugin.zip")

	w, err := Create(out, WriterOptions{Prefix: "threedecision"})
	require.NoError(t, err)
	require.NoError(t, w.Add(domain.Member{Path: "__init__.py"}, writeFile(t, src, "__init__.py", "x")))

	archive, err := w.Commit()
	require.NoError(t, err)
	require.Equal(t, []string{"threedecision/__init__.py"}, domain.Paths(archive.Members))
}

// TestWriter_Abort leaves nothing behind.
func TestWriter_Abort(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dir := t.TempDir()
	out := filepath.Join(dir, "plugin.zip")

	w, err := Create(out, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Add(domain.Member{Path: "a.py"}, writeFile(t, src, "a.py", "a")))

	w.Abort()
	w.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = w.Commit()
	require.ErrorIs(t, err, ErrWriterClosed)
	require.ErrorIs(t, w.Add(domain.Member{Path: "b.py"}, "b.py"), ErrWriterClosed)
}

// TestWriter_ReadFailure reports a vanished source file as ErrReadMember.
func TestWriter_ReadFailure(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "plugin.zip")

	w, err := Create(out, WriterOptions{})
	require.NoError(t, err)

	defer w.Abort()

	err = w.Add(domain.Member{Path: "gone.py"}, filepath.Join(t.TempDir(), "gone.py"))
	require.ErrorIs(t, err, ErrReadMember)
}

// TestCreate_OverwritePolicy refuses an existing destination unless overwrite is set.
func TestCreate_OverwritePolicy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := writeFile(t, dir, "plugin.zip", "old")

	_, err := Create(out, WriterOptions{})
	require.ErrorIs(t, err, ErrDestinationExists)

	w, err := Create(out, WriterOptions{Overwrite: true})
	require.NoError(t, err)

	_, err = w.Commit()
	require.NoError(t, err)

	r, err := Open(out)
	require.NoError(t, err)
	require.Empty(t, r.Members())
	require.NoError(t, r.Close())
}

// TestCreate_UncreatableParent fails when a path component is a regular file.
func TestCreate_UncreatableParent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := writeFile(t, dir, "blocker", "not a directory")

	_, err := Create(filepath.Join(blocker, "sub", "plugin.zip"), WriterOptions{})
	require.Error(t, err)
}

// TestWriter_Reproducible yields identical bytes for identical input.
func TestWriter_Reproducible(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	file := writeFile(t, src, "plugin.py", "print('hello')\n")

	build := func(out string) []byte {
		w, err := Create(out, WriterOptions{Reproducible: true})
		require.NoError(t, err)
		require.NoError(t, w.Add(domain.Member{Path: "plugin.py", Mode: 0o644}, file))

		_, err = w.Commit()
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)

		return data
	}

	dir := t.TempDir()
	require.Equal(t, build(filepath.Join(dir, "a.zip")), build(filepath.Join(dir, "b.zip")))
}

// TestReader_Extract round-trips content through an archive.
func TestReader_Extract(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "plugin.zip")

	w, err := Create(out, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Add(domain.Member{Path: "lib/util.py", Mode: 0o644}, writeFile(t, src, "lib/util.py", "util")))

	_, err = w.Commit()
	require.NoError(t, err)

	r, err := Open(out)
	require.NoError(t, err)

	defer func() {
		_ = r.Close()
	}()

	dst := t.TempDir()
	require.NoError(t, r.Extract(dst))

	data, err := os.ReadFile(filepath.Join(dst, "lib", "util.py"))
	require.NoError(t, err)
	require.Equal(t, "util", string(data))
}

// TestOpen_NotAnArchive rejects files that are not ZIPs.
func TestOpen_NotAnArchive(t *testing.T) {
	t.Parallel()

	_, err := Open(writeFile(t, t.TempDir(), "plugin.zip", "plain text"))
	require.Error(t, err)
}

// TestCleanPrefix normalizes relative prefixes and rejects ones leaving the root.
func TestCleanPrefix(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"":                 "",
		"threedecision":    "threedecision",
		"./threedecision/": "threedecision",
		"a//b/../c":        "a/c",
	}

	for prefix, want := range valid {
		got, err := CleanPrefix(prefix)
		require.NoError(t, err, prefix)
		require.Equal(t, want, got, prefix)
	}

	for _, prefix := range []string{"..", "../x", "a/../../b", "/abs", "."} {
		_, err := CleanPrefix(prefix)
		require.ErrorIs(t, err, ErrInvalidPrefix, prefix)
	}
}

// TestCreate_InvalidPrefix refuses to start an archive whose entries would escape its root.
func TestCreate_InvalidPrefix(t *testing.T) {
	t.Parallel()

	outDir := filepath.Join(t.TempDir(), "dist")

	_, err := Create(filepath.Join(outDir, "plugin.zip"), WriterOptions{Prefix: "../x"})
	require.ErrorIs(t, err, ErrInvalidPrefix)

	_, err = os.Stat(outDir)
	require.ErrorIs(t, err, os.ErrNotExist)
}
