// Package watch triggers additive rescans when files change under a watched
// root, debouncing bursts of filesystem events into a single scan request.
//
// Grounded on the teacher's watchIssues debounce-timer loop
// (cmd/bd/list.go), adapted from "redisplay the issue list" to "kick the
// scanner supervisor", and on its recursive-watch registration.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/telemetry"
)

// Starter describes a scan starter that takes ScanOptions. Watcher does not
// use it: it calls the trigger function it was built with. *scanner.Supervisor
// does not satisfy it, since its Start takes scanner.Options.
type Starter interface {
	Start(ctx context.Context, opts ScanOptions) bool
}

// ScanOptions mirrors a subset of scanner.Options' fields; it is defined here
// rather than importing scanner.Options, so this package does not import
// scanner.
type ScanOptions struct {
	Roots             []model.Root
	EnrichTargetLevel model.EnrichmentLevel
	OwnerID           string
}

// Watcher watches a set of root directories and calls a scan trigger after a
// debounce window once changes quiet down.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	roots    map[string]model.Root
	trigger  func(ctx context.Context, roots []model.Root)
	stop     chan struct{}
}

// New creates a Watcher. trigger is called (at most once per debounce window)
// with the distinct roots that changed.
func New(debounce time.Duration, trigger func(ctx context.Context, roots []model.Root)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		roots:    map[string]model.Root{},
		trigger:  trigger,
		stop:     make(chan struct{}),
	}, nil
}

// AddRoot registers a root directory (and every existing subdirectory, since
// fsnotify watches are not recursive) for change notifications.
func (w *Watcher) AddRoot(root model.Root, dir string) error {
	w.roots[dir] = root
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

// Run processes events until ctx is cancelled or Close is called. Intended to
// run in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	pending := map[model.Root]bool{}
	var debounceTimer *time.Timer
	flush := func() {
		if len(pending) == 0 {
			return
		}
		roots := make([]model.Root, 0, len(pending))
		for r := range pending {
			roots = append(roots, r)
		}
		pending = map[model.Root]bool{}
		w.trigger(ctx, roots)
	}
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case <-w.stop:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			root, known := w.rootFor(event.Name)
			if !known {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(event.Name)
				}
			}
			pending[root] = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, flush)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			telemetry.L(ctx).Warn().Err(err).Msg("watch: fsnotify error")
		}
	}
}

func (w *Watcher) rootFor(path string) (model.Root, bool) {
	var best string
	var bestRoot model.Root
	for dir, root := range w.roots {
		if isUnderDir(path, dir) && len(dir) > len(best) {
			best = dir
			bestRoot = root
		}
	}
	return bestRoot, best != ""
}

func isUnderDir(path, dir string) bool {
	if path == dir {
		return true
	}
	if len(path) <= len(dir) {
		return false
	}
	return path[:len(dir)] == dir && path[len(dir)] == os.PathSeparator
}

// Close stops Run and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.fsw.Close()
}
