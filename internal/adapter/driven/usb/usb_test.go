package usb_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyflash/internal/adapter/driven/usb"
	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatIDs(t *testing.T) {
	assert.Equal(t, "0xFEED", usb.FormatUSBID(0xFEED))
	assert.Equal(t, "0x0045", usb.FormatUSBID(0x45))
	assert.Equal(t, "1d50:615e_2", usb.FormatDeviceID(0x1d50, 0x615e, 2))
}

func TestSideFromName(t *testing.T) {
	tests := []struct {
		name string
		want model.DeviceSide
	}{
		{name: "Corne Left", want: model.SideLeft},
		{name: "corne_RIGHT", want: model.SideRight},
		{name: "Kyria", want: model.SideNone},
		{name: "left and right", want: model.SideLeft},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, usb.SideFromName(tc.name))
		})
	}
}

func TestMockEnumerator(t *testing.T) {
	devices, err := usb.NewMockEnumerator().Enumerate(context.Background())

	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, "feed:1234_0", devices[0].ID)
	assert.Equal(t, model.SideLeft, devices[0].Side)
	assert.Equal(t, "0xFEED", devices[0].VID)
	assert.Equal(t, "0x1234", devices[0].PID)

	assert.Equal(t, model.SideRight, devices[1].Side)
	assert.Equal(t, "0x1235", devices[1].PID)

	assert.Equal(t, "Kyria Keyboard", devices[2].Name)
	assert.Equal(t, model.SideNone, devices[2].Side)
	assert.Equal(t, "0x4567", devices[2].PID)
}

func writeVolume(t *testing.T, root, name, info string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if info != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, usb.InfoFileName), []byte(info), 0o644))
	}
}

func TestVolumeEnumerator(t *testing.T) {
	root := t.TempDir()
	writeVolume(t, root, "NICENANO", "UF2 Bootloader 0.6.0\nModel: Corne Left\nBoard-ID: nRF52840-nicenano\n")
	writeVolume(t, root, "USBSTICK", "")
	writeVolume(t, root, "XIAO", "Board-ID: nRF52840-xiao\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	devices, err := usb.NewVolumeEnumerator(root, discardLogger()).Enumerate(context.Background())

	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, "Corne Left", devices[0].Name)
	assert.Equal(t, model.SideLeft, devices[0].Side)
	assert.Equal(t, "nRF52840-nicenano", devices[0].BoardID)
	assert.Equal(t, filepath.Join(root, "NICENANO"), devices[0].MountPath)
	assert.Equal(t, "uf2:NICENANO_0", devices[0].ID)

	assert.Equal(t, "XIAO", devices[1].Name, "falls back to the volume name")
	assert.Equal(t, model.SideNone, devices[1].Side)
	assert.Equal(t, "uf2:XIAO_1", devices[1].ID)
}

func TestVolumeEnumerator_MissingRoot(t *testing.T) {
	devices, err := usb.NewVolumeEnumerator(filepath.Join(t.TempDir(), "nope"), discardLogger()).Enumerate(context.Background())

	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestVolumeWatcher_NotifiesOnNewVolume(t *testing.T) {
	root := t.TempDir()
	w := usb.NewVolumeWatcher(root, discardLogger())

	events, err := w.Start()
	require.NoError(t, err)

	_, err = w.Start()
	assert.ErrorIs(t, err, usb.ErrWatcherRunning)

	require.NoError(t, os.Mkdir(filepath.Join(root, "NICENANO"), 0o755))

	select {
	case _, ok := <-events:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}

	require.NoError(t, w.Stop())
	for range events {
		// drain until closed
	}
	require.NoError(t, w.Stop(), "second stop is a no-op")
}

func TestNoopWatcher(t *testing.T) {
	var w usb.NoopWatcher

	events, err := w.Start()
	require.NoError(t, err)

	select {
	case <-events:
		t.Fatal("noop watcher should not notify")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, w.Stop())
	_, ok := <-events
	assert.False(t, ok)
}
