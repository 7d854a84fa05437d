package manifestingester

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// eventChannelBuffer is the size of the watch event channel.
const eventChannelBuffer = 100

// ManifestEvent is a manifest file ready for ingestion.
type ManifestEvent struct {
	// Path is the file path relative to the drop directory.
	Path string

	// AbsPath is the absolute file path.
	AbsPath string
}

// ManifestWatcher watches the drop directory for manifest files matching the
// configured pattern. Events are debounced so a manifest still being written
// is picked up once, after it settles, and a rewritten manifest with
// unchanged content is not re-emitted.
type ManifestWatcher struct {
	dropDir  string
	pattern  string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]struct{}

	// Hash-based change detection
	hashMu sync.RWMutex
	hashes map[string]string

	// Output channel
	events chan ManifestEvent

	// Metrics
	droppedEvents atomic.Int64
}

// NewManifestWatcher creates a watcher over the given drop directory.
func NewManifestWatcher(dropDir, pattern string, debounce time.Duration, logger *slog.Logger) (*ManifestWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ManifestWatcher{
		dropDir:  dropDir,
		pattern:  pattern,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]struct{}),
		hashes:   make(map[string]string),
		events:   make(chan ManifestEvent, eventChannelBuffer),
	}, nil
}

// Events returns the channel of manifest events.
func (w *ManifestWatcher) Events() <-chan ManifestEvent {
	return w.events
}

// Start begins watching the drop directory for manifests.
func (w *ManifestWatcher) Start(ctx context.Context) error {
	// Create the drop directory if it doesn't exist
	if err := os.MkdirAll(w.dropDir, 0755); err != nil {
		return err
	}

	if err := w.addWatchesRecursive(w.dropDir); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Manifest watcher started",
		"drop_dir", w.dropDir,
		"pattern", w.pattern,
		"debounce", w.debounce)

	return nil
}

// Stop stops the watcher.
// The events channel is closed by processEvents when it exits.
func (w *ManifestWatcher) Stop() error {
	return w.watcher.Close()
}

// accepts reports whether a relative path matches the manifest pattern.
func (w *ManifestWatcher) accepts(relPath string) bool {
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(relPath))
	return err == nil && ok
}

// addWatchesRecursive adds watches to all directories under root.
func (w *ManifestWatcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}

		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && base != "." {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}
		return nil
	})
}

// processEvents handles fsnotify events with debouncing.
func (w *ManifestWatcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent processes a single fsnotify event.
func (w *ManifestWatcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	// Watch newly created subdirectories.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}

	// Removals need no processing; a deleted manifest was either already
	// ingested or never will be.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return
	}

	relPath, err := filepath.Rel(w.dropDir, path)
	if err != nil || !w.accepts(relPath) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = struct{}{}
	w.pendingMu.Unlock()

	w.logger.Debug("Manifest change detected", "path", relPath, "op", event.Op.String())
}

// handleNewDirectory adds a watch to a newly created directory.
func (w *ManifestWatcher) handleNewDirectory(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return
	}

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
	} else {
		w.logger.Debug("Added watch for new directory", "path", path)
	}
}

// flushPending emits events for accumulated manifest changes.
func (w *ManifestWatcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}

	toProcess := make([]string, 0, len(w.pending))
	for path := range w.pending {
		toProcess = append(toProcess, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	for _, path := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPath, _ := filepath.Rel(w.dropDir, path)

		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				w.logger.Warn("Failed to read manifest", "path", relPath, "error", err)
			}
			continue
		}

		newHash := contentHash(content)
		w.hashMu.RLock()
		oldHash, seen := w.hashes[relPath]
		w.hashMu.RUnlock()
		if seen && oldHash == newHash {
			continue
		}
		w.hashMu.Lock()
		w.hashes[relPath] = newHash
		w.hashMu.Unlock()

		w.sendEvent(ManifestEvent{Path: relPath, AbsPath: path})
	}
}

// sendEvent sends an event to the output channel.
func (w *ManifestWatcher) sendEvent(event ManifestEvent) {
	select {
	case w.events <- event:
		w.logger.Debug("Sent manifest event", "path", event.Path)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping manifest event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}

// DroppedEvents returns the number of events dropped due to channel overflow.
func (w *ManifestWatcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

// contentHash returns the hex SHA-256 of content.
func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
