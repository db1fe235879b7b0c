package driven

import (
	"context"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// DeviceEnumerator defines the driven port for one-shot device detection.
type DeviceEnumerator interface {
	Enumerate(ctx context.Context) ([]model.Device, error)
}

// DeviceWatcher defines the driven port for "device set changed"
// notifications. Start activates the underlying mechanism and returns a
// channel that receives a value per change; Stop deactivates it and closes
// that channel.
type DeviceWatcher interface {
	Start() (<-chan struct{}, error)
	Stop() error
}
