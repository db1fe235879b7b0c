package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// enumerateTimeout bounds a re-enumeration triggered by a change notification.
const enumerateTimeout = 10 * time.Second

// DeviceMonitor fans device-set changes out to subscribers. The underlying
// watcher runs only while at least one subscriber is registered: the first
// Subscribe starts it and the last unsubscribe stops it.
type DeviceMonitor struct {
	enumerator driven.DeviceEnumerator
	watcher    driven.DeviceWatcher
	logger     *slog.Logger

	mu          sync.Mutex
	subscribers map[uint64]func([]model.Device)
	nextID      uint64
	loopDone    chan struct{}
}

// NewDeviceMonitor creates a DeviceMonitor.
func NewDeviceMonitor(enumerator driven.DeviceEnumerator, watcher driven.DeviceWatcher, logger *slog.Logger) *DeviceMonitor {
	return &DeviceMonitor{
		enumerator:  enumerator,
		watcher:     watcher,
		logger:      logger,
		subscribers: make(map[uint64]func([]model.Device)),
	}
}

// Enumerate returns the devices currently connected.
func (m *DeviceMonitor) Enumerate(ctx context.Context) ([]model.Device, error) {
	devices, err := m.enumerator.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	return devices, nil
}

// FindDevice returns the connected device with the given ID.
func (m *DeviceMonitor) FindDevice(ctx context.Context, id string) (model.Device, bool, error) {
	devices, err := m.Enumerate(ctx)
	if err != nil {
		return model.Device{}, false, err
	}
	for _, d := range devices {
		if d.ID == id {
			return d, true, nil
		}
	}
	return model.Device{}, false, nil
}

// Subscribers returns the number of registered subscribers.
func (m *DeviceMonitor) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

// Subscribe registers fn to receive the fresh device list after every change.
// fn is called from the monitor's goroutine, must not block for long, and
// must not call the unsubscribe function itself. The returned function
// unregisters fn and is safe to call more than once.
func (m *DeviceMonitor) Subscribe(fn func([]model.Device)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.subscribers) == 0 {
		events, err := m.watcher.Start()
		if err != nil {
			return nil, fmt.Errorf("starting device watcher: %w", err)
		}
		done := make(chan struct{})
		m.loopDone = done
		go m.loop(events, done)
		m.logger.Debug("device monitoring started")
	}

	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(id) })
	}, nil
}

func (m *DeviceMonitor) unsubscribe(id uint64) {
	m.mu.Lock()
	delete(m.subscribers, id)
	if len(m.subscribers) > 0 {
		m.mu.Unlock()
		return
	}

	if err := m.watcher.Stop(); err != nil {
		m.logger.Warn("failed to stop device watcher", "error", err)
	}
	done := m.loopDone
	m.loopDone = nil
	m.mu.Unlock()

	if done != nil {
		<-done
	}
	m.logger.Debug("device monitoring stopped")
}

// loop re-enumerates on every notification until the watcher closes events.
func (m *DeviceMonitor) loop(events <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for range events {
		ctx, cancel := context.WithTimeout(context.Background(), enumerateTimeout)
		devices, err := m.enumerator.Enumerate(ctx)
		cancel()
		if err != nil {
			m.logger.Warn("device enumeration failed", "error", err)
			continue
		}

		m.mu.Lock()
		fns := make([]func([]model.Device), 0, len(m.subscribers))
		for _, fn := range m.subscribers {
			fns = append(fns, fn)
		}
		m.mu.Unlock()

		for _, fn := range fns {
			fn(devices)
		}
	}
}
