package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"mcphub/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the configuration directory and reports reloaded
// configurations on a channel. Rapid successive writes (editors often
// write twice) are debounced into one reload.
type Watcher struct {
	configPath       string
	debounceInterval time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	running bool
	stopCh  chan struct{}
}

// NewWatcher creates a watcher for the given configuration directory.
func NewWatcher(configPath string, debounceInterval time.Duration) *Watcher {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}
	return &Watcher{
		configPath:       configPath,
		debounceInterval: debounceInterval,
	}
}

// Start begins watching. Reloaded configurations are delivered on the
// returned channel; the channel is closed when the watcher stops.
func (w *Watcher) Start(ctx context.Context) (<-chan Config, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, fmt.Errorf("config watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if err := watcher.Add(w.configPath); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return nil, err
	}

	w.watcher = watcher
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	reloads := make(chan Config, 1)
	go w.processEvents(ctx, reloads)

	logging.Info("ConfigWatcher", "Watching %s for configuration changes", w.configPath)
	return reloads, nil
}

// Stop terminates the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	w.watcher.Close()
	w.running = false
}

func (w *Watcher) processEvents(ctx context.Context, reloads chan<- Config) {
	defer close(reloads)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(w.debounceInterval)
			} else {
				debounce.Reset(w.debounceInterval)
			}
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			cfg, err := LoadConfig(w.configPath)
			if err != nil {
				logging.Error("ConfigWatcher", err, "Ignoring invalid configuration update")
				continue
			}
			select {
			case reloads <- cfg:
			default:
				// A reload is already pending; the consumer will pick
				// up the latest file content when it loads.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "Filesystem watcher error")
		}
	}
}
