// Package watch keeps the Layered Analysis Pipeline's caches coherent
// with the filesystem: a changed or deleted file must not leave stale
// bloom entries, cached search hits, parsed ASTs, or cached Results
// behind, and a deleted file's concept-graph representations are
// removed. Representations of a modified file are not touched.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"layeredquery/internal/logging"
	"layeredquery/internal/services"
)

// EventKind classifies a settled filesystem change.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventModify EventKind = "modify"
	EventDelete EventKind = "delete"
)

// Event is a single debounced, settled filesystem change.
type Event struct {
	Kind EventKind
	Path string
}

// Watcher watches a workspace root for source file changes and
// invalidates every layer's caches that might hold stale data for the
// changed path, debouncing rapid successive writes to the same file
// the way editors and build tools tend to produce them.
type Watcher struct {
	mu sync.RWMutex

	root    string
	ignore  []string
	fsw     *fsnotify.Watcher
	svc     *services.SharedServices
	debounce time.Duration

	pending map[string]time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	running bool
}

// New creates a Watcher rooted at root, wired to invalidate the caches
// held by svc. ignoreDirs are directory names skipped entirely (e.g.
// ".git", "node_modules", "vendor").
func New(root string, svc *services.SharedServices, ignoreDirs []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     root,
		ignore:   ignoreDirs,
		fsw:      fsw,
		svc:      svc,
		debounce: 300 * time.Millisecond,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start walks root adding every non-ignored directory to the watch set
// and begins the debounced event loop in a goroutine. Start returns
// once the initial walk completes; the loop itself runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	err := filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if w.isIgnored(path) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			logging.WatchWarn("failed to watch %s: %v", path, addErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop halts the watch loop and releases the underlying fsnotify
// handle. Safe to call even if Start was never called.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.fsw.Close(); err != nil {
		logging.WatchError("error closing watcher: %v", err)
	}
}

func (w *Watcher) isIgnored(path string) bool {
	for _, dir := range w.ignore {
		if strings.Contains(path, string(os.PathSeparator)+dir+string(os.PathSeparator)) ||
			strings.HasSuffix(path, string(os.PathSeparator)+dir) {
			return true
		}
	}
	return false
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.record(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.WatchError("fsnotify error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) record(event fsnotify.Event) {
	if event.Op&fsnotify.Chmod != 0 && event.Op == fsnotify.Chmod {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()

	// A newly created directory needs to be watched too, since
	// fsnotify doesn't recurse on its own.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.isIgnored(event.Name) {
			if err := w.fsw.Add(event.Name); err != nil {
				logging.WatchWarn("failed to watch new directory %s: %v", event.Name, err)
			}
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	now := time.Now()
	settled := make([]string, 0)
	for path, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.invalidate(path)
	}
}

// invalidate drops every cached artifact that might reference path:
// the L1 lexical bloom/search cache, the L2 AST cache, the L3 concept
// graph's symbol representations for the file when the file no longer
// exists (a modified file's representations are left in place), and
// any orchestrator Result cached for this workspace (the response cache's fingerprint
// doesn't carry a file path, so a changed file conservatively
// invalidates every cached Result for the workspace rather than
// risking a stale one surviving).
func (w *Watcher) invalidate(path string) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}

	kind := EventModify
	if _, err := os.Stat(path); os.IsNotExist(err) {
		kind = EventDelete
	}

	w.svc.Lexical.InvalidateScope(path)
	w.svc.AST.Invalidate(path)

	if kind == EventDelete {
		if err := w.svc.Graph.ReplaceRepresentationsForFile(rel, nil); err != nil {
			logging.WatchWarn("failed to clear representations for %s: %v", rel, err)
		}
	}

	removed := w.svc.ResponseCache.RemoveMatching(func(fp string) bool {
		return strings.Contains(fp, w.root)
	})

	logging.WatchDebug("invalidated caches for %s (%s), %d cached result(s) evicted", rel, kind, removed)
}
