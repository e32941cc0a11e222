package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind, area, path string)

// Watch starts an fsnotify watcher on every area root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful index mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass of the affected area.
func Watch(ctx context.Context, db *DB, areas []Area, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, a := range areas {
		root := a.Scanner.Store().Root()
		if err := os.MkdirAll(root, 0o755); err != nil {
			return err
		}
		if err := addDirsRecursive(w, root); err != nil {
			return err
		}
		logger.Info("watcher: started", slog.String("area", a.Name), slog.String("root", root))
	}

	// reconcileTimer debounces rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	pending := map[string]Area{}

	scheduleReconcile := func(a Area) {
		pending[a.Name] = a
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			for name, a := range pending {
				reconcile(db, a, logger, cb)
				delete(pending, name)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			a, rel, found := locate(areas, ev.Name)
			if !found {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may already be inside the new directory.
					scheduleReconcile(a)
					continue
				}
			}

			if !a.Scanner.Covers(rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if idxErr := indexFile(db, a, rel); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("watcher: indexed", slog.String("area", a.Name), slog.String("path", rel), slog.String("op", kind))
				if cb != nil {
					cb(kind, a.Name, rel)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path only; the new path arrives as
				// a Create when it stays inside a watched dir.
				if delErr := db.Delete(a.Name, rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("area", a.Name), slog.String("path", rel))
				if cb != nil {
					cb("deleted", a.Name, rel)
				}
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile(a)
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// locate maps an absolute event path to its area and area-relative path.
func locate(areas []Area, abs string) (Area, string, bool) {
	for _, a := range areas {
		root := a.Scanner.Store().Root()
		if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return Area{}, "", false
		}
		return a, filepath.ToSlash(rel), true
	}
	return Area{}, "", false
}

// reconcile re-syncs one area and reports the difference through cb.
func reconcile(db *DB, a Area, logger *slog.Logger, cb EventCallback) {
	before, err := db.AllChecksums(a.Name)
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	if _, err := syncArea(db, a, logger); err != nil {
		logger.Warn("reconcile: sync failed", slog.String("area", a.Name), slog.String("error", err.Error()))
		return
	}
	if cb == nil {
		return
	}
	after, err := db.AllChecksums(a.Name)
	if err != nil {
		return
	}
	for p := range before {
		if _, ok := after[p]; !ok {
			cb("deleted", a.Name, p)
		}
	}
	for p, cs := range after {
		old, ok := before[p]
		switch {
		case !ok:
			cb("created", a.Name, p)
		case old != cs:
			cb("updated", a.Name, p)
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
