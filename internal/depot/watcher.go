package depot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// DepotRemoval reports that a depot's directory disappeared from the
// install root outside the app's control.
type DepotRemoval struct {
	AppID   int64
	DepotID int64
}

// removalBuf bounds the removal channel; the consumer drains continuously
// so the buffer only absorbs bursts (e.g. a whole app directory deleted).
const removalBuf = 256

// LibraryWatcher watches the install root for depot directories removed
// behind the app's back. Layout is <root>/<appID>/<depotID>; a removed
// depot directory is reported so the caller can drop it from the persisted
// install state. fsnotify is non-recursive, so app directories are added
// to the watch as they appear.
type LibraryWatcher struct {
	root     string
	logger   *slog.Logger
	removals chan DepotRemoval
}

// NewLibraryWatcher creates a watcher for the given install root.
func NewLibraryWatcher(root string, logger *slog.Logger) *LibraryWatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &LibraryWatcher{
		root:     root,
		logger:   logger,
		removals: make(chan DepotRemoval, removalBuf),
	}
}

// Removals is the channel of reported depot removals.
func (w *LibraryWatcher) Removals() <-chan DepotRemoval {
	return w.removals
}

// Run watches until ctx is cancelled. The removals channel is closed on
// return.
func (w *LibraryWatcher) Run(ctx context.Context) error {
	defer close(w.removals)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("depot: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.root); err != nil {
		return fmt.Errorf("depot: watching %s: %w", w.root, err)
	}

	if err := w.addAppDirs(watcher); err != nil {
		return err
	}

	w.logger.Info("library watcher started", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("library watcher stopped")
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			w.handleEvent(watcher, event)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("library watcher error", "error", watchErr)
		}
	}
}

// addAppDirs registers a watch on every existing app directory.
func (w *LibraryWatcher) addAppDirs(watcher *fsnotify.Watcher) error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("depot: listing %s: %w", w.root, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, err := strconv.ParseInt(entry.Name(), 10, 64); err != nil {
			continue
		}

		if err := watcher.Add(filepath.Join(w.root, entry.Name())); err != nil {
			w.logger.Warn("could not watch app dir", "dir", entry.Name(), "error", err)
		}
	}

	return nil
}

// handleEvent classifies one fsnotify event. Chmod-only events carry no
// structural change and are dropped.
func (w *LibraryWatcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	appID, depotID, depth, ok := w.parsePath(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Has(fsnotify.Create) && depth == 1:
		// New app directory — watch it for depot removals.
		if err := watcher.Add(event.Name); err != nil {
			w.logger.Warn("could not watch new app dir", "dir", event.Name, "error", err)
		}

	case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && depth == 2:
		w.logger.Info("depot directory removed externally",
			"app_id", appID, "depot_id", depotID)

		select {
		case w.removals <- DepotRemoval{AppID: appID, DepotID: depotID}:
		default:
			w.logger.Warn("removal channel full, dropping event",
				"app_id", appID, "depot_id", depotID)
		}
	}
}

// parsePath extracts (appID, depotID) from a path under the install root.
// depth is 1 for <root>/<app>, 2 for <root>/<app>/<depot>; ok is false for
// anything that is not a numeric id path.
func (w *LibraryWatcher) parsePath(path string) (appID, depotID int64, depth int, ok bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return 0, 0, 0, false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")

	switch len(parts) {
	case 1:
		appID, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, 0, 0, false
		}

		return appID, 0, 1, true

	case 2:
		appID, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, 0, 0, false
		}

		depotID, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, false
		}

		return appID, depotID, 2, true

	default:
		return 0, 0, 0, false
	}
}
