package model

// DeviceSide identifies which half of a split keyboard a device is.
type DeviceSide string

const (
	SideNone  DeviceSide = ""
	SideLeft  DeviceSide = "left"
	SideRight DeviceSide = "right"
)

// Device is a detected keyboard in bootloader mode. All fields are supplied by
// device detection and never edited by the application.
type Device struct {
	ID           string
	Name         string
	Side         DeviceSide
	VID          string // "0xFEED" style; empty when not known.
	PID          string
	Manufacturer string
	BoardID      string
	MountPath    string // Set for mass-storage bootloaders.
}

// Compatibility is the tri-state result of matching a device with a firmware.
// CompatibilityUnknown is distinct from both outcomes and means one side of
// the pair is missing.
type Compatibility int

const (
	CompatibilityUnknown Compatibility = iota
	Compatible
	Incompatible
)

// String returns a human-readable name for the compatibility result.
func (c Compatibility) String() string {
	switch c {
	case Compatible:
		return "compatible"
	case Incompatible:
		return "incompatible"
	default:
		return "unknown"
	}
}

// Bool returns nil for CompatibilityUnknown and a pointer to the outcome otherwise.
func (c Compatibility) Bool() *bool {
	if c == CompatibilityUnknown {
		return nil
	}
	v := c == Compatible
	return &v
}
