package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/CTAG07/Nepenthes/pkg/store"
	"github.com/fsnotify/fsnotify"
)

const (
	templateExt      = ".ejs"
	watcherDebounce  = 100 * time.Millisecond
	templateNameJoin = "."
)

// TemplateWatcher imports *.ejs files from a directory into the store and
// keeps them in sync while watching. Removing a file from disk does not
// delete the stored template.
type TemplateWatcher struct {
	store   *store.Store
	cache   *ejs.Cache
	dir     string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewTemplateWatcher creates a watcher for dir. Imported templates evict
// their cached revisions from cache.
func NewTemplateWatcher(st *store.Store, cache *ejs.Cache, dir string, logger *slog.Logger) (*TemplateWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &TemplateWatcher{
		store:   st,
		cache:   cache,
		dir:     dir,
		logger:  logger.With("component", "template_watcher"),
		watcher: w,
		pending: make(map[string]struct{}),
	}, nil
}

// templateName maps a file below dir to a store name: the relative path
// without extension, with directory separators replaced by dots.
func templateName(dir, path string) (string, error) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), templateExt)
	name := strings.ReplaceAll(rel, "/", templateNameJoin)
	if err = store.ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: %q", err, rel)
	}
	return name, nil
}

func isTemplateFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, templateExt) && !strings.HasPrefix(base, ".")
}

// ImportAll imports every template file below the directory and returns how
// many stored templates changed. A missing directory imports nothing.
func (w *TemplateWatcher) ImportAll(ctx context.Context) (int, error) {
	changed := 0
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == w.dir {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if path != w.dir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !isTemplateFile(path) {
			return nil
		}
		ok, err := w.importFile(ctx, path)
		if err != nil {
			w.logger.Warn("Skipping template file", "path", path, "error", err)
			return nil
		}
		if ok {
			changed++
		}
		return nil
	})
	return changed, err
}

// importFile stores the file's content and reports whether it produced a new
// revision.
func (w *TemplateWatcher) importFile(ctx context.Context, path string) (bool, error) {
	name, err := templateName(w.dir, path)
	if err != nil {
		return false, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read template file: %w", err)
	}

	prev, err := w.store.Get(ctx, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	info, err := storeTemplate(ctx, w.store, w.cache, name, string(src))
	if err != nil {
		return false, err
	}
	if prev != nil && prev.Revision == info.Revision {
		return false, nil
	}
	w.logger.Info("Imported template", "name", name, "revision", info.Revision, "path", path)
	return true, nil
}

// Watch processes file events until ctx is cancelled or the watcher is
// closed. Bursts of events are coalesced before importing.
func (w *TemplateWatcher) Watch(ctx context.Context) error {
	if err := w.addDirs(); err != nil {
		return fmt.Errorf("failed to watch template directory: %w", err)
	}
	w.logger.Info("Template watcher started", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Template watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Template watcher error", "error", err)
		}
	}
}

func (w *TemplateWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err = w.watcher.Add(event.Name); err != nil {
				w.logger.Error("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isTemplateFile(event.Name) {
		return
	}
	w.logger.Debug("Template file event", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[event.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watcherDebounce, func() { w.flush(ctx) })
}

func (w *TemplateWatcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for path := range paths {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.importFile(ctx, path); err != nil {
			w.logger.Error("Failed to import template file", "path", path, "error", err)
		}
	}
}

func (w *TemplateWatcher) addDirs() error {
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Close stops watching and cancels pending imports.
func (w *TemplateWatcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
