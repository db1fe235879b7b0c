package application

import (
	"strings"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// CheckCompatibility decides whether fw may be written to device. Either
// being nil yields CompatibilityUnknown. A device without a side accepts any
// firmware. A left half needs "left" in the firmware name; a right half
// accepts anything whose name lacks "left", so firmware of unknown side is
// treated as right-hand firmware.
func CheckCompatibility(device *model.Device, fw *model.Firmware) model.Compatibility {
	if device == nil || fw == nil {
		return model.CompatibilityUnknown
	}

	isLeftFirmware := strings.Contains(fw.Name, "left")
	switch device.Side {
	case model.SideLeft:
		return compatibleIf(isLeftFirmware)
	case model.SideRight:
		return compatibleIf(!isLeftFirmware)
	default:
		return model.Compatible
	}
}

func compatibleIf(ok bool) model.Compatibility {
	if ok {
		return model.Compatible
	}
	return model.Incompatible
}
