package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	domain "github.com/oshokin/plugin-packager/internal/domain/plugin"
)

// errUnsafeEntry is returned when an entry would escape the extraction directory.
var errUnsafeEntry = errors.New("unsafe archive entry")

// Reader gives read access to an existing archive.
type Reader struct {
	// path is the archive location.
	path string
	// rc is the open ZIP file.
	rc *zip.ReadCloser
}

// Open opens the archive at path.
func Open(path string) (*Reader, error) {
	rc, err := zip.OpenReader(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}

	return &Reader{
		path: filepath.Clean(path),
		rc:   rc,
	}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.rc.Close()
}

// Members lists file entries in stored order. Directory entries are skipped.
func (r *Reader) Members() []domain.Member {
	members := make([]domain.Member, 0, len(r.rc.File))

	for _, f := range r.rc.File {
		if isDirEntry(f) {
			continue
		}

		members = append(members, domain.Member{
			Path:    f.Name,
			Size:    int64(f.UncompressedSize64), //nolint:gosec // Sizes of plugin files fit in int64.
			Mode:    f.Mode().Perm(),
			ModTime: f.Modified,
		})
	}

	return members
}

// Checksums returns the checksum of every file entry keyed by entry name.
func (r *Reader) Checksums() (map[string][]byte, error) {
	result := make(map[string][]byte, len(r.rc.File))

	for _, f := range r.rc.File {
		if isDirEntry(f) {
			continue
		}

		sum, err := entryChecksum(f)
		if err != nil {
			return nil, err
		}

		result[f.Name] = sum
	}

	return result, nil
}

// Extract writes every file entry below dir, recreating relative paths.
func (r *Reader) Extract(dir string) error {
	for _, f := range r.rc.File {
		if isDirEntry(f) {
			continue
		}

		name := filepath.FromSlash(f.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("%w: %s", errUnsafeEntry, f.Name)
		}

		if err := extractEntry(f, filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	return nil
}

// extractEntry copies one entry to target.
func extractEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), DefaultDirPermissions); err != nil {
		return fmt.Errorf("create directory for %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o200)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	if _, err = io.Copy(dst, src); err != nil { //nolint:gosec // Archives are produced by this tool.
		_ = dst.Close()

		return fmt.Errorf("extract %s: %w", f.Name, err)
	}

	return dst.Close()
}

// entryChecksum hashes the decompressed content of an entry.
func entryChecksum(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}

	defer func() {
		_ = rc.Close()
	}()

	return Checksum(rc)
}

func isDirEntry(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.Mode().IsDir()
}
