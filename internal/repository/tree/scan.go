// Package tree reads plugin source trees from disk.
package tree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	domain "github.com/oshokin/plugin-packager/internal/domain/plugin"
	"github.com/oshokin/plugin-packager/internal/logger"
	"github.com/oshokin/plugin-packager/internal/rules"
)

// ErrNotDirectory is returned when the root exists but is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// SkipFunc reports whether an absolute path must be ignored regardless of rules.
type SkipFunc func(abs string) bool

// Result is the outcome of a scan.
type Result struct {
	// Tree holds the included members.
	Tree *domain.SourceTree
	// Excluded lists excluded relative paths; pruned directories end with "/".
	Excluded []string
	// Skipped lists relative paths ignored for not being regular files.
	Skipped []string
}

// Scan walks root in lexical order and splits its regular files into
// included members and excluded paths. An excluded directory is pruned,
// since every path below it would match the same pattern.
func Scan(ctx context.Context, root string, r *rules.Rules, skip SkipFunc) (*Result, error) {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	result := &Result{
		Tree: &domain.SourceTree{
			Root:    root,
			Members: []domain.Member{},
		},
	}

	walkErr := filepath.WalkDir(root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if abs == root {
			return nil
		}

		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		if skip != nil && skip(abs) {
			logger.DebugKV(ctx, "Skipping packager artifact", "path", rel)

			return nil
		}

		if pattern, excluded := r.Match(rel); excluded {
			return result.exclude(ctx, d, rel, pattern)
		}

		if d.IsDir() {
			return nil
		}

		if !d.Type().IsRegular() {
			logger.DebugKV(ctx, "Skipping non-regular file", "path", rel, "type", d.Type().String())
			result.Skipped = append(result.Skipped, rel)

			return nil
		}

		fileInfo, err := d.Info()
		if err != nil {
			return err
		}

		result.Tree.Members = append(result.Tree.Members, domain.Member{
			Path:    rel,
			Size:    fileInfo.Size(),
			Mode:    fileInfo.Mode().Perm(),
			ModTime: fileInfo.ModTime(),
		})

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return result, nil
}

// exclude records an excluded entry and prunes directories.
func (r *Result) exclude(ctx context.Context, d fs.DirEntry, rel, pattern string) error {
	if d.IsDir() {
		logger.DebugKV(ctx, "Excluding directory", "path", rel, "pattern", pattern)
		r.Excluded = append(r.Excluded, rel+"/")

		return filepath.SkipDir
	}

	logger.DebugKV(ctx, "Excluding file", "path", rel, "pattern", pattern)
	r.Excluded = append(r.Excluded, rel)

	return nil
}
