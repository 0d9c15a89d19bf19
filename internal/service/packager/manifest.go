package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	domain "github.com/oshokin/plugin-packager/internal/domain/plugin"
	"github.com/oshokin/plugin-packager/internal/logger"
	"github.com/oshokin/plugin-packager/internal/repository/archive"
	"github.com/oshokin/plugin-packager/internal/rules"
	"github.com/oshokin/plugin-packager/internal/service/common"
	"github.com/oshokin/plugin-packager/internal/version"
)

const (
	// manifestSuffix is appended to the archive path to form the manifest path.
	manifestSuffix = ".manifest.yaml"

	// entryPointFilename is the plugin module declaring __version__.
	entryPointFilename = "__init__.py"

	// manifestFileMode is applied to written manifests.
	manifestFileMode os.FileMode = 0o644
)

// versionPattern finds a top-level `__version__ = "x.y"` assignment.
var versionPattern = regexp.MustCompile(`(?m)^__version__\s*=\s*["']([^"']+)["']`)

// ManifestPath returns the sidecar location for an archive.
func ManifestPath(dest string) string {
	return filepath.Clean(dest) + manifestSuffix
}

// LoadManifest reads a manifest written by a previous run.
func LoadManifest(path string) (*domain.Manifest, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	manifest := new(domain.Manifest)
	if err = yaml.Unmarshal(contents, manifest); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	return manifest, nil
}

// buildManifest assembles the sidecar document from the writer checksums.
func buildManifest(
	ctx context.Context,
	req *Request,
	root, pluginVersion string,
	ruleSet *rules.Rules,
	checksums map[string][]byte,
) *domain.Manifest {
	name := filepath.Base(root)
	if req.Prefix != "" {
		name = filepath.Base(req.Prefix)
	}

	manifest := domain.NewManifest(name)
	manifest.BuildID = uuid.NewString()
	manifest.PluginVersion = pluginVersion
	manifest.PackagerVersion = version.Short()
	manifest.Prefix = req.Prefix
	manifest.Exclusions = ruleSet.Patterns()

	actor, err := common.DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Unable to detect packaging actor", "error", err)
	} else {
		manifest.PackagedBy = actor
	}

	for entry, sum := range checksums {
		manifest.Files[entry] = archive.EncodeChecksum(sum)
	}

	return manifest
}

// saveManifest writes the manifest next to dest through a temporary file.
func saveManifest(dest string, manifest *domain.Manifest) (string, error) {
	contents, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	path := ManifestPath(dest)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create manifest: %w", err)
	}

	_, writeErr := tmp.Write(contents)
	closeErr := tmp.Close()

	if err = errors.Join(writeErr, closeErr, os.Chmod(tmp.Name(), manifestFileMode)); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("write manifest: %w", err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("move manifest into place: %w", err)
	}

	return path, nil
}

// discardArchive removes a committed archive after a later step failed.
func discardArchive(ctx context.Context, dest string) {
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.ErrorKV(ctx, "Unable to remove archive", "path", dest, "error", err)
	}
}

// detectPluginVersion reads __version__ from the plugin entry point.
func detectPluginVersion(root string) string {
	contents, err := os.ReadFile(filepath.Join(root, entryPointFilename))
	if err != nil {
		return ""
	}

	match := versionPattern.FindSubmatch(contents)
	if match == nil {
		return ""
	}

	return string(match[1])
}
