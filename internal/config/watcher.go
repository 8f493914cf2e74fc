package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 500 * time.Millisecond

// Watcher watches for configuration changes.
type Watcher struct {
	path     string
	onReload func(*Config, error)
	current  *Config
	fsw      *fsnotify.Watcher
	done     chan struct{}
	mu       sync.RWMutex
	reloads  atomic.Uint32
	closeMu  sync.Once
}

// NewWatcher loads the config at path and starts watching it.
// onReload is called after every debounced change with the new config or the load error.
func NewWatcher(path string, onReload func(*Config, error)) (*Watcher, error) {
	cfg, err := LoadAndValidate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors often replace the file instead of writing it.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	watcher := &Watcher{
		path:     filepath.Clean(path),
		onReload: onReload,
		current:  cfg,
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	go watcher.watch()

	return watcher, nil
}

// watch watches for configuration changes.
func (cw *Watcher) watch() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.fsw.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != cw.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if timer != nil {
					timer.Stop()
				}

				timer = time.AfterFunc(debounce, cw.reload)
			}

		case err, ok := <-cw.fsw.Errors:
			if !ok {
				return
			}

			slog.Error("Watcher error", "error", err)
		}
	}
}

// reload reloads the config file.
func (cw *Watcher) reload() {
	select {
	case <-cw.done:
		return
	default:
	}

	count := cw.reloads.Add(1)
	slog.Info("Reloading config file", "path", cw.path, "count", count)

	cfg, err := LoadAndValidate(cw.path)
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		if cw.onReload != nil {
			cw.onReload(nil, err)
		}
		return
	}

	cw.mu.Lock()
	cw.current = cfg
	cw.mu.Unlock()

	slog.Info("Config reloaded successfully", "count", count)
	if cw.onReload != nil {
		cw.onReload(cfg, nil)
	}
}

// Snapshot returns the current config snapshot (thread-safe).
func (cw *Watcher) Snapshot() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	return cw.current
}

// ReloadCount returns the number of times the config has been reloaded.
func (cw *Watcher) ReloadCount() uint32 {
	return cw.reloads.Load()
}

// Close stops watching.
func (cw *Watcher) Close() error {
	var err error
	cw.closeMu.Do(func() {
		close(cw.done)
		err = cw.fsw.Close()
	})
	return err
}
