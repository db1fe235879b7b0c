package usb

import (
	"context"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DeviceEnumerator = (*MockEnumerator)(nil)

type mockDevice struct {
	vid, pid uint16
	name     string
	side     model.DeviceSide
}

var mockDevices = []mockDevice{
	{vid: 0xFEED, pid: 0x1234, name: "Corne Keyboard", side: model.SideLeft},
	{vid: 0xFEED, pid: 0x1235, name: "Corne Keyboard", side: model.SideRight},
	{vid: 0xFEED, pid: 0x4567, name: "Kyria Keyboard", side: model.SideNone},
}

// MockEnumerator reports a Corne split pair and a Kyria.
type MockEnumerator struct{}

// NewMockEnumerator creates a MockEnumerator.
func NewMockEnumerator() *MockEnumerator {
	return &MockEnumerator{}
}

// Enumerate returns the fixed device set.
func (e *MockEnumerator) Enumerate(ctx context.Context) ([]model.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices := make([]model.Device, 0, len(mockDevices))
	for i, d := range mockDevices {
		devices = append(devices, model.Device{
			ID:   FormatDeviceID(d.vid, d.pid, i),
			Name: d.name,
			Side: d.side,
			VID:  FormatUSBID(d.vid),
			PID:  FormatUSBID(d.pid),
		})
	}
	return devices, nil
}
