package model

import "time"

// FlashStatus represents the state of a flash operation.
type FlashStatus string

const (
	FlashStatusIdle     FlashStatus = "idle"
	FlashStatusFlashing FlashStatus = "flashing"
	FlashStatusSuccess  FlashStatus = "success"
	FlashStatusError    FlashStatus = "error"
)

// IsTerminal reports whether no further progress follows this status.
func (s FlashStatus) IsTerminal() bool {
	return s == FlashStatusSuccess || s == FlashStatusError
}

// FlashProgress is one event in the progress stream of a flash operation.
type FlashProgress struct {
	Percentage   int // 0..100, non-decreasing while flashing.
	BytesWritten int64
	TotalBytes   int64
	Status       FlashStatus
	Message      string
}

// FlashRecord is the persisted outcome of a single flash attempt.
type FlashRecord struct {
	ID           string
	DeviceID     string
	DeviceName   string
	FirmwareID   string
	FirmwareName string
	Status       FlashStatus
	Message      string
	StartedAt    time.Time
	FinishedAt   time.Time // Zero while the operation is running.
}
