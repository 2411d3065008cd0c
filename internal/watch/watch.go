// Package watch re-runs the sync when the blacklist file is edited and,
// optionally, on a fixed interval.
package watch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// RunFunc performs one sync.
type RunFunc func(ctx context.Context) error

// Watcher triggers RunFunc on blacklist edits and ticks. Runs never overlap.
type Watcher struct {
	path     string
	interval time.Duration
	debounce time.Duration
	run      RunFunc
	logger   *log.Logger

	mu       sync.Mutex
	lastHash [sha256.Size]byte
	trigger  chan string
}

// New returns a Watcher for path. interval 0 disables periodic runs.
func New(path string, interval time.Duration, run RunFunc, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		path:     path,
		interval: interval,
		debounce: defaultDebounce,
		run:      run,
		logger:   logger.WithPrefix("watch"),
		trigger:  make(chan string, 1),
	}
}

// Run performs an initial sync, then waits for triggers until ctx is
// cancelled. Run errors are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	// The blacklist is replaced by rename, so watch its directory.
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.execute(ctx, "startup")

	var ticks <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticks:
			w.execute(ctx, "interval")

		case reason := <-w.trigger:
			w.execute(ctx, reason)

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, func() {
				if !w.changed() {
					return
				}
				select {
				case w.trigger <- "file changed":
				default:
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) execute(ctx context.Context, reason string) {
	w.logger.Info("sync triggered", "reason", reason)
	if err := w.run(ctx); err != nil {
		w.logger.Error("sync failed", "reason", reason, "error", err)
	}
	w.remember()
}

// remember stores the hash of the file as this process left it, so the
// write of our own run does not trigger another one.
func (w *Watcher) remember() {
	sum, _ := hashFile(w.path)
	w.mu.Lock()
	w.lastHash = sum
	w.mu.Unlock()
}

func (w *Watcher) changed() bool {
	sum, err := hashFile(w.path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return sum != w.lastHash
}

func hashFile(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
