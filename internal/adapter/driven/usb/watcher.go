package usb

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// ErrWatcherRunning is returned by Start when the watcher is already active.
var ErrWatcherRunning = errors.New("device watcher already running")

// Compile-time interface satisfaction checks.
var (
	_ driven.DeviceWatcher = (*VolumeWatcher)(nil)
	_ driven.DeviceWatcher = (*NoopWatcher)(nil)
)

// VolumeWatcher reports changes to the set of directories under a mount root
// using fsnotify. Bursts of filesystem events are coalesced into a single
// notification.
type VolumeWatcher struct {
	root   string
	logger *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewVolumeWatcher creates a VolumeWatcher for root.
func NewVolumeWatcher(root string, logger *slog.Logger) *VolumeWatcher {
	return &VolumeWatcher{root: root, logger: logger}
}

// Start begins watching and returns the notification channel. The channel is
// closed once Stop has completed.
func (w *VolumeWatcher) Start() (<-chan struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil, ErrWatcherRunning
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := watcher.Add(w.root); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", w.root, err)
	}

	notify := make(chan struct{}, 1)
	done := make(chan struct{})
	w.watcher = watcher
	w.done = done

	go w.loop(watcher, notify, done)

	w.logger.Info("device watcher started", "root", w.root)
	return notify, nil
}

func (w *VolumeWatcher) loop(watcher *fsnotify.Watcher, notify chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(notify)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("mount root changed", "path", event.Name, "op", event.Op.String())
			select {
			case notify <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("device watcher error", "error", err)
		}
	}
}

// Stop ends watching and waits for the notification channel to close.
// Stopping an inactive watcher is a no-op.
func (w *VolumeWatcher) Stop() error {
	w.mu.Lock()
	watcher, done := w.watcher, w.done
	w.watcher, w.done = nil, nil
	w.mu.Unlock()

	if watcher == nil {
		return nil
	}

	err := watcher.Close()
	<-done

	w.logger.Info("device watcher stopped", "root", w.root)
	if err != nil {
		return fmt.Errorf("closing fsnotify watcher: %w", err)
	}
	return nil
}

// NoopWatcher never reports a change. It pairs with MockEnumerator.
type NoopWatcher struct {
	mu     sync.Mutex
	notify chan struct{}
}

// Start returns a channel that stays silent until Stop.
func (w *NoopWatcher) Start() (<-chan struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.notify != nil {
		return nil, ErrWatcherRunning
	}
	w.notify = make(chan struct{})
	return w.notify, nil
}

// Stop closes the channel returned by Start.
func (w *NoopWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.notify != nil {
		close(w.notify)
		w.notify = nil
	}
	return nil
}
