package flasher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyflash/internal/adapter/driven/flasher"
	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

var (
	testDevice   = model.Device{ID: "feed:1234_0", Name: "Corne Keyboard", Side: model.SideLeft}
	testFirmware = model.Firmware{ID: "github-artifact-201", Name: "corne_left.uf2", Size: 245760}
)

func collect(t *testing.T, ch <-chan model.FlashProgress) []model.FlashProgress {
	t.Helper()
	var events []model.FlashProgress
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("progress stream did not close")
		}
	}
}

func TestSimulator_Success(t *testing.T) {
	sim := &flasher.Simulator{Step: time.Millisecond}

	ch, err := sim.Flash(context.Background(), testDevice, testFirmware)
	require.NoError(t, err)

	events := collect(t, ch)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, model.FlashStatusSuccess, last.Status)
	assert.Equal(t, 100, last.Percentage)
	assert.Equal(t, int64(245760), last.BytesWritten)

	prev := -1
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, model.FlashStatusFlashing, ev.Status)
		assert.GreaterOrEqual(t, ev.Percentage, prev, "percentage must not decrease")
		assert.Equal(t, int64(245760), ev.TotalBytes)
		prev = ev.Percentage
	}
	assert.Equal(t, 13, len(events), "prepare + 11 steps + success")
}

func TestSimulator_Cancelled(t *testing.T) {
	sim := &flasher.Simulator{Step: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := sim.Flash(ctx, testDevice, testFirmware)
	require.NoError(t, err)
	cancel()

	events := collect(t, ch)
	last := events[len(events)-1]
	assert.Equal(t, model.FlashStatusError, last.Status)
	assert.Contains(t, last.Message, "cancelled")
}

func TestSimulator_FailAt(t *testing.T) {
	sim := &flasher.Simulator{Step: time.Millisecond, FailAt: 50}

	ch, err := sim.Flash(context.Background(), testDevice, testFirmware)
	require.NoError(t, err)

	events := collect(t, ch)
	last := events[len(events)-1]
	assert.Equal(t, model.FlashStatusError, last.Status)
	assert.Equal(t, 50, last.Percentage)
}

func TestSimulator_InvalidTarget(t *testing.T) {
	sim := flasher.NewSimulator(0)
	assert.Equal(t, flasher.DefaultStep, sim.Step)

	_, err := sim.Flash(context.Background(), model.Device{}, testFirmware)
	assert.ErrorIs(t, err, flasher.ErrInvalidTarget)
}
