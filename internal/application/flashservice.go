package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// progressBuffer is the capacity of the relayed progress channel.
const progressBuffer = 16

// FlashSession is a started flash operation.
type FlashSession struct {
	ID       string
	Device   model.Device
	Firmware model.Firmware

	// Progress delivers every event of the operation and is closed after the
	// terminal one.
	Progress <-chan model.FlashProgress
}

// FlashService guards and records flash operations. It refuses any pair that
// is not affirmatively compatible, allows one operation per device at a time,
// and writes every attempt to the flash history. Retrying means calling Start
// again; a failed write is never resumed.
type FlashService struct {
	flasher driven.Flasher
	history driven.FlashHistoryStore
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	active map[string]string // device ID -> operation ID
}

// NewFlashService creates a FlashService. history may be nil to skip recording.
func NewFlashService(flasher driven.Flasher, history driven.FlashHistoryStore, logger *slog.Logger) *FlashService {
	return &FlashService{
		flasher: flasher,
		history: history,
		logger:  logger,
		now:     time.Now,
		active:  make(map[string]string),
	}
}

// Check reports whether Start would accept the pair right now, without
// starting anything or touching the history.
func (s *FlashService) Check(device *model.Device, fw *model.Firmware) error {
	if err := validatePair(device, fw); err != nil {
		return err
	}

	s.mu.Lock()
	_, busy := s.active[device.ID]
	s.mu.Unlock()
	if busy {
		return fmt.Errorf("%w: %s", ErrFlashInProgress, device.ID)
	}
	return nil
}

// Start validates the pair and begins flashing. Cancelling ctx aborts the
// write; the abort is reported as the terminal error event.
func (s *FlashService) Start(ctx context.Context, device *model.Device, fw *model.Firmware) (*FlashSession, error) {
	if err := validatePair(device, fw); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if !s.claim(device.ID, id) {
		return nil, fmt.Errorf("%w: %s", ErrFlashInProgress, device.ID)
	}

	record := model.FlashRecord{
		ID:           id,
		DeviceID:     device.ID,
		DeviceName:   device.Name,
		FirmwareID:   fw.ID,
		FirmwareName: fw.Name,
		Status:       model.FlashStatusFlashing,
		StartedAt:    s.now(),
	}
	s.record(ctx, record)

	events, err := s.flasher.Flash(ctx, *device, *fw)
	if err != nil {
		record.Status = model.FlashStatusError
		record.Message = err.Error()
		record.FinishedAt = s.now()
		s.record(ctx, record)
		s.release(device.ID, id)
		return nil, fmt.Errorf("starting flash: %w", err)
	}

	s.logger.InfoContext(ctx, "flash started",
		"operation_id", id,
		"device", device.ID,
		"firmware", fw.ID,
	)

	out := make(chan model.FlashProgress, progressBuffer)
	go s.relay(ctx, record, events, out)

	return &FlashSession{
		ID:       id,
		Device:   *device,
		Firmware: *fw,
		Progress: out,
	}, nil
}

// History returns the most recent flash attempts, newest first.
func (s *FlashService) History(ctx context.Context, limit int) ([]model.FlashRecord, error) {
	if s.history == nil {
		return []model.FlashRecord{}, nil
	}
	records, err := s.history.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing flash history: %w", err)
	}
	return records, nil
}

// relay forwards progress from the flasher, holding the percentage
// non-decreasing while flashing, and records the outcome. Once ctx is done,
// events are no longer forwarded but the stream is still drained so the
// outcome is recorded.
func (s *FlashService) relay(ctx context.Context, record model.FlashRecord, in <-chan model.FlashProgress, out chan<- model.FlashProgress) {
	defer close(out)
	defer s.release(record.DeviceID, record.ID)

	highest := 0
	var last model.FlashProgress
	terminal := false

	for ev := range in {
		if ev.Status == model.FlashStatusFlashing {
			if ev.Percentage < highest {
				s.logger.Debug("clamping regressing progress",
					"operation_id", record.ID,
					"reported", ev.Percentage,
					"highest", highest,
				)
				ev.Percentage = highest
			}
			highest = ev.Percentage
		}
		last = ev
		terminal = ev.Status.IsTerminal()

		select {
		case out <- ev:
		case <-ctx.Done():
		}

		if terminal {
			break
		}
	}

	if !terminal {
		last = model.FlashProgress{
			Percentage: highest,
			TotalBytes: last.TotalBytes,
			Status:     model.FlashStatusError,
			Message:    "Flash failed: operation ended without a result",
		}
		select {
		case out <- last:
		case <-ctx.Done():
		}
	}

	record.Status = last.Status
	record.Message = last.Message
	record.FinishedAt = s.now()
	s.record(context.WithoutCancel(ctx), record)

	if last.Status == model.FlashStatusSuccess {
		s.logger.Info("flash finished", "operation_id", record.ID, "device", record.DeviceID)
	} else {
		s.logger.Warn("flash failed", "operation_id", record.ID, "device", record.DeviceID, "message", last.Message)
	}
}

func (s *FlashService) record(ctx context.Context, record model.FlashRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Warn("failed to record flash", "operation_id", record.ID, "error", err)
	}
}

func validatePair(device *model.Device, fw *model.Firmware) error {
	if device == nil {
		return ErrNoDeviceSelected
	}
	if fw == nil {
		return ErrNoFirmwareSelected
	}
	if CheckCompatibility(device, fw) != model.Compatible {
		return fmt.Errorf("%w: %s on %s", ErrIncompatibleFirmware, fw.Name, device.Name)
	}
	return nil
}

func (s *FlashService) claim(deviceID, opID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[deviceID]; busy {
		return false
	}
	s.active[deviceID] = opID
	return true
}

func (s *FlashService) release(deviceID, opID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[deviceID] == opID {
		delete(s.active, deviceID)
	}
}
