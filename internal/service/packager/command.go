package packager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/plugin-packager/internal/config"
	domain "github.com/oshokin/plugin-packager/internal/domain/plugin"
	"github.com/oshokin/plugin-packager/internal/logger"
	"github.com/oshokin/plugin-packager/internal/repository/archive"
	"github.com/oshokin/plugin-packager/internal/repository/tree"
	"github.com/oshokin/plugin-packager/internal/rules"
	"github.com/oshokin/plugin-packager/internal/service/common"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// Root is the plugin source directory.
	Root string
	// Destination is the archive path to produce.
	Destination string
	// Settings holds the merged configuration file and flag values.
	Settings *config.Config
}

// Request describes a single packaging run.
type Request struct {
	// Root is the plugin source directory.
	Root string
	// Destination is the archive path to produce.
	Destination string
	// Exclusions are glob patterns of paths to leave out.
	Exclusions []string
	// Require lists relative paths that must be archived.
	Require []string
	// Prefix is the directory members are stored under inside the archive.
	Prefix string
	// Overwrite allows replacing an existing archive.
	Overwrite bool
	// Reproducible stores members with a fixed timestamp.
	Reproducible bool
	// Manifest enables the checksum sidecar.
	Manifest bool
	// LockTimeout is the age after which a destination lock is stale.
	LockTimeout time.Duration
}

// Result summarizes a successful run.
type Result struct {
	// Archive is the committed archive.
	Archive *domain.Archive
	// Excluded lists the excluded relative paths.
	Excluded []string
	// ManifestPath is set when a manifest was written.
	ManifestPath string
	// PluginVersion is the detected __version__ of the plugin, if any.
	PluginVersion string
	// Duration is the wall time of the run.
	Duration time.Duration
}

// NewRequest builds a request from CLI options.
func NewRequest(opts *Options) *Request {
	settings := opts.Settings
	if settings == nil {
		settings = new(config.Config)
	}

	return &Request{
		Root:         opts.Root,
		Destination:  opts.Destination,
		Exclusions:   slices.Clone(settings.Exclude),
		Require:      slices.Clone(settings.Require),
		Prefix:       settings.Prefix,
		Overwrite:    settings.Overwrite,
		Reproducible: settings.Reproducible,
		Manifest:     settings.Manifest,
		LockTimeout:  settings.LockTimeout,
	}
}

// Run executes the packaging workflow and logs a summary.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "package")

	result, err := Package(ctx, NewRequest(opts))
	if err != nil {
		return err
	}

	LogSummary(ctx, result)

	return nil
}

// Package produces the archive described by req. Either the archive is fully
// written and in place, or nothing new is left at the destination.
func Package(ctx context.Context, req *Request) (*Result, error) {
	started := time.Now()

	// Patterns and prefix first: request errors must surface before any file I/O.
	ruleSet, err := rules.Compile(req.Exclusions)
	if err != nil {
		return nil, err
	}

	prefix, err := archive.CleanPrefix(req.Prefix)
	if err != nil {
		return nil, err
	}

	if prefix != req.Prefix {
		normalized := *req
		normalized.Prefix = prefix
		req = &normalized
	}

	root, dest, err := resolvePaths(req)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithKV(ctx, "destination", dest)

	logger.InfoKV(ctx, "Scanning plugin sources", "root", root, "patterns", ruleSet.Len())

	scanned, err := tree.Scan(ctx, root, ruleSet, artifactFilter(dest))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrSourceNotFound, root, err)
	}

	if err = checkRequired(scanned.Tree, req.Require); err != nil {
		return nil, err
	}

	lock, err := common.AcquireLock(ctx, dest, req.LockTimeout)
	if err != nil {
		if errors.Is(err, common.ErrLocked) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, dest, err)
	}

	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to release destination lock", "error", releaseErr)
		}
	}()

	result, err := write(ctx, req, scanned.Tree, dest, ruleSet)
	if err != nil {
		return nil, err
	}

	result.Excluded = scanned.Excluded
	result.Duration = time.Since(started)

	return result, nil
}

// LogSummary reports what a run produced.
func LogSummary(ctx context.Context, result *Result) {
	members := result.Archive.Members

	//nolint:gosec // Sizes are never negative.
	contentSize, archiveSize := uint64(domain.TotalSize(members)), uint64(result.Archive.Size)

	logger.InfoKV(ctx, "Archive written",
		"path", result.Archive.Path,
		"members", len(members),
		"excluded", len(result.Excluded),
		"content", humanize.Bytes(contentSize),
		"archive_size", humanize.Bytes(archiveSize),
		"took", result.Duration.Round(time.Millisecond),
	)

	if result.PluginVersion != "" {
		logger.InfoKV(ctx, "Detected plugin version", "version", result.PluginVersion)
	}

	if result.ManifestPath != "" {
		logger.InfoKV(ctx, "Manifest written", "path", result.ManifestPath)
	}
}

// write streams the members into the archive and commits it.
func write(
	ctx context.Context,
	req *Request,
	source *domain.SourceTree,
	dest string,
	ruleSet *rules.Rules,
) (*Result, error) {
	writer, err := archive.Create(dest, archive.WriterOptions{
		Prefix:       req.Prefix,
		Reproducible: req.Reproducible,
		Overwrite:    req.Overwrite,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, dest, err)
	}

	// Abort is a no-op after a successful Commit.
	defer writer.Abort()

	for _, member := range source.Members {
		// Members already written are complete; stop before starting the next one.
		if err = ctx.Err(); err != nil {
			logger.WarnKV(ctx, "Packaging cancelled", "written", len(writer.Members()))

			return nil, err
		}

		abs := filepath.Join(source.Root, filepath.FromSlash(member.Path))
		if err = writer.Add(member, abs); err != nil {
			if errors.Is(err, archive.ErrReadMember) {
				return nil, fmt.Errorf("%w: %w", ErrSourceNotFound, err)
			}

			return nil, fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, dest, err)
		}

		logger.DebugKV(ctx, "Added member", "path", member.Path)
	}

	result := &Result{
		PluginVersion: detectPluginVersion(source.Root),
	}

	var manifest *domain.Manifest
	if req.Manifest {
		manifest = buildManifest(ctx, req, source.Root, result.PluginVersion, ruleSet, writer.Checksums())
	}

	result.Archive, err = writer.Commit()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, dest, err)
	}

	if manifest != nil {
		manifest.CreatedAt = time.Now().UTC()

		result.ManifestPath, err = saveManifest(dest, manifest)
		if err != nil {
			// Keep the all-or-nothing contract: the archive goes with its manifest.
			discardArchive(ctx, dest)

			return nil, fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, ManifestPath(dest), err)
		}
	}

	return result, nil
}

// resolvePaths validates and absolutizes root and destination.
func resolvePaths(req *Request) (string, string, error) {
	if req.Root == "" {
		return "", "", fmt.Errorf("%w: %w", ErrSourceNotFound, errRootRequired)
	}

	if req.Destination == "" {
		return "", "", fmt.Errorf("%w: %w", ErrDestinationUnwritable, errDestinationRequired)
	}

	root, err := filepath.Abs(req.Root)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %w", ErrSourceNotFound, req.Root, err)
	}

	dest, err := filepath.Abs(req.Destination)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %w", ErrDestinationUnwritable, req.Destination, err)
	}

	return root, dest, nil
}

// artifactFilter skips files the packager itself creates next to dest,
// which matters when the destination lives inside the source tree.
func artifactFilter(dest string) tree.SkipFunc {
	lockPath := common.LockPath(dest)
	manifestPath := ManifestPath(dest)

	return func(abs string) bool {
		return abs == dest ||
			abs == lockPath ||
			abs == manifestPath ||
			archive.IsTemporary(dest, abs)
	}
}

// checkRequired ensures every required path survived the exclusions.
func checkRequired(source *domain.SourceTree, required []string) error {
	if len(required) == 0 {
		return nil
	}

	present := make(map[string]struct{}, len(source.Members))
	for _, m := range source.Members {
		present[m.Path] = struct{}{}
	}

	var missing []string

	for _, rel := range required {
		rel = filepath.ToSlash(filepath.Clean(rel))
		if _, ok := present[rel]; !ok {
			missing = append(missing, rel)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrRequiredFileMissing, missing)
	}

	return nil
}
