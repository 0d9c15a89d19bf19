package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/plugin-packager/internal/config"
	"github.com/oshokin/plugin-packager/internal/logger"
	"github.com/oshokin/plugin-packager/internal/repository/archive"
	"github.com/oshokin/plugin-packager/internal/rules"
	"github.com/oshokin/plugin-packager/internal/service/common"
	"github.com/oshokin/plugin-packager/internal/service/packager"
)

// Options contains inputs for the watch loop.
type Options struct {
	// Root is the plugin source directory.
	Root string
	// Destination is the archive path rebuilt on every change.
	Destination string
	// Settings holds the merged configuration file and flag values.
	Settings *config.Config
	// OnBuild, when set, is called after every packaging attempt.
	OnBuild func(result *packager.Result, err error)
}

// loop holds the state of one watch session.
type loop struct {
	// fsw delivers filesystem events.
	fsw *fsnotify.Watcher
	// req is the packaging request replayed on every change.
	req *packager.Request
	// rules filter events for excluded paths.
	rules *rules.Rules
	// root and dest are absolute paths.
	root, dest string
	// debounce is the quiet period before a rebuild.
	debounce time.Duration
	// onBuild is the optional build callback.
	onBuild func(*packager.Result, error)
}

// Run packages once, then repackages after every settled batch of changes
// until ctx is cancelled. Build errors inside the loop are logged, not returned.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "watch")

	req := packager.NewRequest(&packager.Options{
		Root:        opts.Root,
		Destination: opts.Destination,
		Settings:    opts.Settings,
	})

	// Every rebuild replaces the previous archive.
	req.Overwrite = true

	ruleSet, err := rules.Compile(req.Exclusions)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(req.Root)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", packager.ErrSourceNotFound, req.Root, err)
	}

	dest, err := filepath.Abs(req.Destination)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", packager.ErrDestinationUnwritable, req.Destination, err)
	}

	req.Root, req.Destination = root, dest

	debounce := config.DefaultDebounce
	if opts.Settings != nil && opts.Settings.Debounce > 0 {
		debounce = opts.Settings.Debounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer func() {
		if closeErr := fsw.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Unable to close watcher", "error", closeErr)
		}
	}()

	l := &loop{
		fsw:      fsw,
		req:      req,
		rules:    ruleSet,
		root:     root,
		dest:     dest,
		debounce: debounce,
		onBuild:  opts.OnBuild,
	}

	if err = l.watchTree(ctx, root); err != nil {
		return fmt.Errorf("%w: %s: %w", packager.ErrSourceNotFound, root, err)
	}

	// The first build also validates the source tree.
	if err = l.build(ctx); err != nil && errors.Is(err, packager.ErrSourceNotFound) {
		return err
	}

	logger.InfoKV(ctx, "Watching for changes", "root", root, "debounce", debounce)

	return l.run(ctx)
}

// run is the main event loop.
func (l *loop) run(ctx context.Context) error {
	timer := time.NewTimer(l.debounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Watcher stopped")

			return nil

		case event, ok := <-l.fsw.Events:
			if !ok {
				return nil
			}

			if l.handleEvent(ctx, event) {
				timer.Reset(l.debounce)
			}

		case err, ok := <-l.fsw.Errors:
			if !ok {
				return nil
			}

			logger.ErrorKV(ctx, "Watcher error", "error", err)

		case <-timer.C:
			_ = l.build(ctx)
		}
	}
}

// handleEvent reports whether the event should trigger a rebuild.
func (l *loop) handleEvent(ctx context.Context, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod || l.isArtifact(event.Name) {
		return false
	}

	rel, err := filepath.Rel(l.root, event.Name)
	if err != nil || l.rules.Excluded(rel) {
		return false
	}

	logger.DebugKV(ctx, "Source changed", "path", filepath.ToSlash(rel), "op", event.Op.String())

	if event.Has(fsnotify.Create) {
		// New directories need their own watch; errors here mean it vanished already.
		_ = l.watchTree(ctx, event.Name)
	}

	return true
}

// build runs one packaging attempt.
func (l *loop) build(ctx context.Context) error {
	result, err := packager.Package(ctx, l.req)
	if err != nil {
		if ctx.Err() == nil {
			logger.ErrorKV(ctx, "Packaging failed", "error", err)
		}
	} else {
		packager.LogSummary(ctx, result)
	}

	if l.onBuild != nil {
		l.onBuild(result, err)
	}

	return err
}

// watchTree adds dir and every non-excluded directory below it.
func (l *loop) watchTree(ctx context.Context, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != l.root {
			if rel, relErr := filepath.Rel(l.root, path); relErr == nil && l.rules.Excluded(rel) {
				return filepath.SkipDir
			}
		}

		if addErr := l.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch %s: %w", path, addErr)
		}

		logger.DebugKV(ctx, "Watching directory", "path", path)

		return nil
	})
}

// isArtifact reports whether path is produced by the packager itself.
func (l *loop) isArtifact(path string) bool {
	return path == l.dest ||
		path == common.LockPath(l.dest) ||
		path == packager.ManifestPath(l.dest) ||
		archive.IsTemporary(l.dest, path)
}
