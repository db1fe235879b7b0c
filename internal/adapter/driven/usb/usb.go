// Package usb detects keyboards in bootloader mode. MockEnumerator returns a
// fixed device set; VolumeEnumerator and VolumeWatcher find UF2 bootloader
// drives mounted under a directory.
package usb

import (
	"fmt"
	"strings"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// FormatUSBID renders a vendor or product ID as "0xFEED".
func FormatUSBID(id uint16) string {
	return fmt.Sprintf("0x%04X", id)
}

// FormatDeviceID builds a device identifier of the form "feed:1234_0". The
// index is the device's position in one enumeration and keeps two identical
// boards apart.
func FormatDeviceID(vid, pid uint16, index int) string {
	return fmt.Sprintf("%04x:%04x_%d", vid, pid, index)
}

// SideFromName infers the keyboard half from a product or model name.
// "left" takes precedence over "right".
func SideFromName(name string) model.DeviceSide {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "left"):
		return model.SideLeft
	case strings.Contains(lower, "right"):
		return model.SideRight
	default:
		return model.SideNone
	}
}
