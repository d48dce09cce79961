package appconfig

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/corevox/noia/internal/bus"
)

// debounce absorbs editors that write-then-rename, producing several fsnotify
// events for one logical save.
const debounce = 100 * time.Millisecond

// Watcher reloads the App Configuration on disk writes and publishes
// ConfigChanged when the reloaded value differs from the last loaded one.
type Watcher struct {
	path string
	bus  *bus.Bus
	log  *logrus.Logger

	mu      sync.RWMutex
	current *AppConfig
}

// NewWatcher builds a Watcher seeded with the already-loaded initial config.
func NewWatcher(path string, initial *AppConfig, b *bus.Bus, log *logrus.Logger) *Watcher {
	if log == nil {
		log = logrus.New()
	}
	return &Watcher{path: path, current: initial, bus: b, log: log}
}

// Current returns the most recently accepted configuration.
func (w *Watcher) Current() *AppConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run watches the config file until ctx is cancelled. Validation failures on
// reload are logged and the previous configuration remains active.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.path); err != nil {
		return err
	}

	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithFields(logrus.Fields{"component": "appconfig"}).WithError(err).Warn("watch error")
		case <-reload:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.log.WithFields(logrus.Fields{"component": "appconfig"}).WithError(err).
			Warn("config reload failed, keeping previous configuration")
		return
	}

	w.mu.Lock()
	unchanged := w.current != nil && w.current.Equal(next)
	w.current = next
	w.mu.Unlock()

	if unchanged {
		return
	}

	w.log.WithFields(logrus.Fields{"component": "appconfig"}).Info("configuration changed")
	if w.bus != nil {
		w.bus.PublishFrom(bus.KindConfigChanged, "appconfig")
	}
}
