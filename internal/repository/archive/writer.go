package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/oshokin/plugin-packager/internal/domain/plugin"
)

const (
	// DefaultFileMode is applied to committed archives.
	DefaultFileMode os.FileMode = 0o644

	// DefaultDirPermissions is used when creating the destination directory.
	DefaultDirPermissions os.FileMode = 0o755

	// tempSuffix marks in-progress archives.
	tempSuffix = ".tmp"
)

var (
	// ErrDestinationExists is returned when the destination exists and overwrite is disabled.
	ErrDestinationExists = errors.New("destination already exists")
	// ErrReadMember is returned when a source file cannot be read while archiving.
	ErrReadMember = errors.New("read member")
	// ErrWriterClosed is returned when the writer is used after Commit or Abort.
	ErrWriterClosed = errors.New("archive writer is closed")
	// ErrInvalidPrefix is returned when a prefix would place entries outside the archive root.
	ErrInvalidPrefix = errors.New("prefix must be a relative path inside the archive")

	// ReproducibleTime is the timestamp stored for every member in reproducible mode.
	// It is the earliest time the ZIP DOS date format can represent.
	//nolint:gochecknoglobals // Fixed value, exported for tests and manifests.
	ReproducibleTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// WriterOptions control how members are stored.
type WriterOptions struct {
	// Prefix is prepended to every member name.
	Prefix string
	// Reproducible replaces modification times with ReproducibleTime.
	Reproducible bool
	// Overwrite allows replacing an existing destination on Commit.
	Overwrite bool
}

// Writer writes a ZIP archive atomically.
type Writer struct {
	// dest is the final archive path.
	dest string
	// tmp is the in-progress archive file in the destination directory.
	tmp *os.File
	// zw encodes members into tmp.
	zw *zip.Writer
	// opts are the storage options.
	opts WriterOptions
	// members records stored members in write order.
	members []domain.Member
	// checksums maps stored member names to their checksums.
	checksums map[string][]byte
	// closed is set after Commit or Abort.
	closed bool
}

// Create prepares a writer for dest. The destination directory is created
// when missing; the archive itself only appears on Commit.
func Create(dest string, opts WriterOptions) (*Writer, error) {
	dest = filepath.Clean(dest)

	prefix, err := CleanPrefix(opts.Prefix)
	if err != nil {
		return nil, err
	}

	opts.Prefix = prefix

	if !opts.Overwrite {
		if _, err := os.Lstat(dest); err == nil {
			return nil, fmt.Errorf("%s: %w", dest, ErrDestinationExists)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat destination: %w", err)
		}
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*"+tempSuffix)
	if err != nil {
		return nil, fmt.Errorf("create temporary archive: %w", err)
	}

	return &Writer{
		dest:      dest,
		tmp:       tmp,
		zw:        zip.NewWriter(tmp),
		opts:      opts,
		checksums: make(map[string][]byte),
	}, nil
}

// CleanPrefix normalizes an entry prefix to a clean slash path. An empty
// prefix stays empty; absolute paths and paths leaving the root are rejected.
func CleanPrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", nil
	}

	clean := path.Clean(filepath.ToSlash(prefix))
	if filepath.IsAbs(prefix) || path.IsAbs(clean) ||
		clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}

	return clean, nil
}

// IsTemporary reports whether name looks like an in-progress archive for dest.
func IsTemporary(dest, name string) bool {
	base := filepath.Base(name)

	return filepath.Dir(filepath.Clean(name)) == filepath.Dir(filepath.Clean(dest)) &&
		strings.HasPrefix(base, "."+filepath.Base(dest)+".") &&
		strings.HasSuffix(base, tempSuffix)
}

// TempPath returns the location of the in-progress archive.
func (w *Writer) TempPath() string {
	return w.tmp.Name()
}

// Destination returns the final archive path.
func (w *Writer) Destination() string {
	return w.dest
}

// Add stores the file at src as member. The member size is taken from the
// bytes actually copied.
func (w *Writer) Add(member domain.Member, src string) error {
	if w.closed {
		return ErrWriterClosed
	}

	f, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrReadMember, member.Path, err)
	}

	defer func() {
		_ = f.Close()
	}()

	header := &zip.FileHeader{
		Name:     w.entryName(member.Path),
		Method:   zip.Deflate,
		Modified: member.ModTime,
	}

	if w.opts.Reproducible || header.Modified.IsZero() {
		header.Modified = ReproducibleTime
	}

	header.SetMode(member.Mode.Perm())

	entry, err := w.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", header.Name, err)
	}

	hasher := DefaultChecksumFunction.New()

	written, err := io.Copy(io.MultiWriter(entry, hasher), &readErrorMarker{r: f})
	if err != nil {
		if errors.Is(err, errMarkedRead) {
			return fmt.Errorf("%w %s: %w", ErrReadMember, member.Path, err)
		}

		return fmt.Errorf("write entry %s: %w", header.Name, err)
	}

	member.Path = header.Name
	member.Size = written
	member.ModTime = header.Modified

	w.members = append(w.members, member)
	w.checksums[header.Name] = hasher.Sum(nil)

	return nil
}

// Members returns the members stored so far.
func (w *Writer) Members() []domain.Member {
	return append([]domain.Member(nil), w.members...)
}

// Checksums returns checksums of the members stored so far, keyed by entry name.
func (w *Writer) Checksums() map[string][]byte {
	result := make(map[string][]byte, len(w.checksums))
	for name, sum := range w.checksums {
		result[name] = sum
	}

	return result
}

// Commit finalizes the archive and moves it to the destination.
// On failure the temporary file is removed and nothing is left at dest.
func (w *Writer) Commit() (*domain.Archive, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}

	if err := w.finish(); err != nil {
		w.Abort()

		return nil, err
	}

	if !w.opts.Overwrite {
		// The destination may have appeared while members were written.
		if _, err := os.Lstat(w.dest); err == nil {
			w.Abort()

			return nil, fmt.Errorf("%s: %w", w.dest, ErrDestinationExists)
		}
	}

	if err := os.Rename(w.tmp.Name(), w.dest); err != nil {
		w.Abort()

		return nil, fmt.Errorf("move archive into place: %w", err)
	}

	w.closed = true

	info, err := os.Stat(w.dest)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	return &domain.Archive{
		Path:    w.dest,
		Members: w.Members(),
		Size:    info.Size(),
	}, nil
}

// Abort discards the in-progress archive. It is safe to call more than once.
func (w *Writer) Abort() {
	if w.closed {
		return
	}

	w.closed = true

	_ = w.zw.Close()
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
}

// finish flushes the ZIP directory and the file to disk.
func (w *Writer) finish() error {
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	if err := w.tmp.Sync(); err != nil {
		return fmt.Errorf("sync archive: %w", err)
	}

	if err := w.tmp.Chmod(DefaultFileMode); err != nil {
		return fmt.Errorf("chmod archive: %w", err)
	}

	if err := w.tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	return nil
}

// entryName builds the stored name of a member.
func (w *Writer) entryName(rel string) string {
	rel = filepath.ToSlash(rel)
	if w.opts.Prefix == "" {
		return rel
	}

	return path.Join(w.opts.Prefix, rel)
}

// errMarkedRead tags errors that came from the source side of a copy.
var errMarkedRead = errors.New("source read failed")

// readErrorMarker wraps a reader so source failures can be told apart from
// archive write failures after io.Copy returns.
type readErrorMarker struct {
	r io.Reader
}

func (m *readErrorMarker) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: %w", errMarkedRead, err)
	}

	return n, err
}
