package driven

import (
	"context"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// Flasher defines the driven port that writes a firmware image to a device.
// The returned channel delivers progress events and is closed after the
// terminal event (success or error). Cancelling ctx aborts the operation and
// yields a terminal error event.
type Flasher interface {
	Flash(ctx context.Context, device model.Device, firmware model.Firmware) (<-chan model.FlashProgress, error)
}
