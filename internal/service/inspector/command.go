package inspector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/plugin-packager/internal/config"
	domain "github.com/oshokin/plugin-packager/internal/domain/plugin"
	"github.com/oshokin/plugin-packager/internal/logger"
	"github.com/oshokin/plugin-packager/internal/repository/archive"
	"github.com/oshokin/plugin-packager/internal/repository/tree"
	"github.com/oshokin/plugin-packager/internal/rules"
	"github.com/oshokin/plugin-packager/internal/service/packager"
)

// ErrArchiveMismatch indicates that an archive differs from its source tree or manifest.
var ErrArchiveMismatch = errors.New("archive does not match source")

// Options contains inputs for the inspector entry points.
type Options struct {
	// ArchivePath is the archive to inspect.
	ArchivePath string
	// Root is the plugin source directory to compare with (verify only).
	Root string
	// Settings holds exclusions and prefix used when the archive was built.
	Settings *config.Config
	// Out receives human-readable output.
	Out io.Writer
}

// Report lists the differences found by Verify.
type Report struct {
	// Members is the number of file entries in the archive.
	Members int
	// Missing are expected entries absent from the archive.
	Missing []string
	// Unexpected are archive entries that the source tree would not produce.
	Unexpected []string
	// Modified are entries whose content differs from the source file.
	Modified []string
	// ManifestMismatch are entries whose checksum differs from the sidecar manifest.
	ManifestMismatch []string
}

// Clean reports whether no difference was found.
func (r *Report) Clean() bool {
	return len(r.Missing) == 0 &&
		len(r.Unexpected) == 0 &&
		len(r.Modified) == 0 &&
		len(r.ManifestMismatch) == 0
}

// List prints the members of an archive, one per line.
func List(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "list")

	reader, err := archive.Open(opts.ArchivePath)
	if err != nil {
		return err
	}

	defer func() {
		_ = reader.Close()
	}()

	members := reader.Members()

	tw := tabwriter.NewWriter(opts.Out, 0, 0, 2, ' ', 0)
	for _, m := range members {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n",
			humanize.IBytes(uint64(m.Size)), //nolint:gosec // Sizes are never negative.
			m.ModTime.UTC().Format(time.DateTime),
			m.Path,
		)
	}

	if err = tw.Flush(); err != nil {
		return fmt.Errorf("write listing: %w", err)
	}

	logger.DebugKV(ctx, "Listed archive", "path", opts.ArchivePath, "members", len(members))

	return nil
}

// Run verifies an archive and prints the report. A mismatch is returned as ErrArchiveMismatch.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "verify")

	report, err := Verify(ctx, opts)
	if err != nil {
		return err
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	printReport(out, report)

	if !report.Clean() {
		return fmt.Errorf("%s: %w", opts.ArchivePath, ErrArchiveMismatch)
	}

	logger.InfoKV(ctx, "Archive matches source", "path", opts.ArchivePath, "members", report.Members)

	return nil
}

// Verify compares an archive with the filtered source tree and, when present,
// with its manifest.
func Verify(ctx context.Context, opts *Options) (*Report, error) {
	settings := opts.Settings
	if settings == nil {
		settings = new(config.Config)
	}

	ruleSet, err := rules.Compile(settings.Exclude)
	if err != nil {
		return nil, err
	}

	archivePath, err := filepath.Abs(opts.ArchivePath)
	if err != nil {
		return nil, err
	}

	reader, err := archive.Open(archivePath)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = reader.Close()
	}()

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", packager.ErrSourceNotFound, opts.Root, err)
	}

	scanned, err := tree.Scan(ctx, root, ruleSet, func(abs string) bool {
		return abs == archivePath || abs == packager.ManifestPath(archivePath)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", packager.ErrSourceNotFound, opts.Root, err)
	}

	stored, err := reader.Checksums()
	if err != nil {
		return nil, err
	}

	expected := make(map[string]string, len(scanned.Tree.Members))
	for _, m := range scanned.Tree.Members {
		expected[entryName(settings.Prefix, m.Path)] = filepath.Join(scanned.Tree.Root, filepath.FromSlash(m.Path))
	}

	report := &Report{
		Members: len(stored),
	}

	report.Missing, report.Unexpected = domain.Diff(keys(expected), keys(stored))

	report.Modified, err = compareContents(ctx, expected, stored)
	if err != nil {
		return nil, err
	}

	report.ManifestMismatch, err = compareManifest(ctx, archivePath, stored)
	if err != nil {
		return nil, err
	}

	return report, nil
}

// compareContents checksums the source files present in both sets, in parallel,
// and returns the sorted entry names whose contents differ.
func compareContents(ctx context.Context, expected map[string]string, stored map[string][]byte) ([]string, error) {
	var (
		mu       sync.Mutex
		modified []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for name, abs := range expected {
		sum, ok := stored[name]
		if !ok {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			local, err := archive.FileChecksum(abs)
			if err != nil {
				return fmt.Errorf("%w: %w", packager.ErrSourceNotFound, err)
			}

			if !bytes.Equal(sum, local) {
				mu.Lock()
				modified = append(modified, name)
				mu.Unlock()
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(modified)

	return modified, nil
}

// compareManifest checks the sidecar manifest, if one exists, against the archive.
func compareManifest(ctx context.Context, archivePath string, stored map[string][]byte) ([]string, error) {
	manifestPath := packager.ManifestPath(archivePath)

	manifest, err := packager.LoadManifest(manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	logger.DebugKV(ctx, "Comparing with manifest", "path", manifestPath, "files", len(manifest.Files))

	var mismatched []string

	for name, sum := range stored {
		if manifest.Files[name] != archive.EncodeChecksum(sum) {
			mismatched = append(mismatched, name)
		}
	}

	for name := range manifest.Files {
		if _, ok := stored[name]; !ok {
			mismatched = append(mismatched, name)
		}
	}

	sort.Strings(mismatched)

	return mismatched, nil
}

// printReport writes the differences in a stable order.
func printReport(out io.Writer, report *Report) {
	sections := []struct {
		title string
		paths []string
	}{
		{"missing", report.Missing},
		{"unexpected", report.Unexpected},
		{"modified", report.Modified},
		{"manifest mismatch", report.ManifestMismatch},
	}

	for _, section := range sections {
		for _, p := range section.paths {
			_, _ = fmt.Fprintf(out, "%s: %s\n", section.title, p)
		}
	}
}

func entryName(prefix, rel string) string {
	if prefix == "" {
		return rel
	}

	return path.Join(filepath.ToSlash(prefix), rel)
}

func keys[V any](m map[string]V) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}

	return result
}
