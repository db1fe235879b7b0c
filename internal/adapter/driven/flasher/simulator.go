// Package flasher provides Flasher implementations. Simulator stands in for a
// real bootloader transport and reports progress on a timer.
package flasher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// DefaultStep is the delay between progress events.
const DefaultStep = 500 * time.Millisecond

// percentStep is the progress increment per event.
const percentStep = 10

// ErrInvalidTarget is returned when the device or firmware has no identity.
var ErrInvalidTarget = errors.New("flash target incomplete")

// Compile-time interface satisfaction check.
var _ driven.Flasher = (*Simulator)(nil)

// Simulator walks progress from 0 to 100 percent in steps of ten, pausing
// Step between events, then reports success after a verification pause.
type Simulator struct {
	Step time.Duration

	// FailAt makes the run fail when progress reaches this percentage.
	// Zero disables failure injection.
	FailAt int
}

// NewSimulator creates a Simulator with the given step delay. A non-positive
// step selects DefaultStep.
func NewSimulator(step time.Duration) *Simulator {
	if step <= 0 {
		step = DefaultStep
	}
	return &Simulator{Step: step}
}

// Flash starts the simulated write and returns its progress stream. The
// stream is buffered for every event of a run so the producer never blocks on
// a slow consumer.
func (s *Simulator) Flash(ctx context.Context, device model.Device, firmware model.Firmware) (<-chan model.FlashProgress, error) {
	if device.ID == "" || firmware.ID == "" {
		return nil, fmt.Errorf("%w: device %q firmware %q", ErrInvalidTarget, device.ID, firmware.ID)
	}

	out := make(chan model.FlashProgress, 100/percentStep+3)
	go s.run(ctx, firmware.Size, out)
	return out, nil
}

func (s *Simulator) run(ctx context.Context, total int64, out chan<- model.FlashProgress) {
	defer close(out)

	out <- model.FlashProgress{
		TotalBytes: total,
		Status:     model.FlashStatusFlashing,
		Message:    "Preparing to flash...",
	}

	for pct := 0; pct <= 100; pct += percentStep {
		if !s.wait(ctx, s.Step) {
			out <- cancelled(pct, total)
			return
		}
		if s.FailAt > 0 && pct >= s.FailAt {
			out <- model.FlashProgress{
				Percentage:   pct,
				BytesWritten: total * int64(pct) / 100,
				TotalBytes:   total,
				Status:       model.FlashStatusError,
				Message:      fmt.Sprintf("Flash failed: write error at %d%%", pct),
			}
			return
		}

		msg := fmt.Sprintf("Flashing firmware... %d%%", pct)
		if pct == 100 {
			msg = "Verifying firmware..."
		}
		out <- model.FlashProgress{
			Percentage:   pct,
			BytesWritten: total * int64(pct) / 100,
			TotalBytes:   total,
			Status:       model.FlashStatusFlashing,
			Message:      msg,
		}
	}

	if !s.wait(ctx, 2*s.Step) {
		out <- cancelled(100, total)
		return
	}

	out <- model.FlashProgress{
		Percentage:   100,
		BytesWritten: total,
		TotalBytes:   total,
		Status:       model.FlashStatusSuccess,
		Message:      "Firmware successfully flashed!",
	}
}

// wait sleeps for d and reports false if ctx ended first.
func (s *Simulator) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func cancelled(pct int, total int64) model.FlashProgress {
	return model.FlashProgress{
		Percentage:   pct,
		BytesWritten: total * int64(pct) / 100,
		TotalBytes:   total,
		Status:       model.FlashStatusError,
		Message:      "Flash failed: cancelled",
	}
}
