package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyflash/internal/adapter/driven/flasher"
	"github.com/ericfisherdev/keyflash/internal/application"
	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

var (
	leftDevice = &model.Device{ID: "feed:1234_0", Name: "Corne Keyboard", Side: model.SideLeft}
	leftFw     = &model.Firmware{ID: "github-artifact-201", Name: "corne_left.uf2", Size: 1000}
	rightFw    = &model.Firmware{ID: "github-artifact-202", Name: "corne_right.uf2", Size: 1000}
)

func drain(t *testing.T, ch <-chan model.FlashProgress) []model.FlashProgress {
	t.Helper()
	var out []model.FlashProgress
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("progress channel not closed")
		}
	}
}

// waitRecord polls the history until the record reaches a terminal status.
func waitRecord(t *testing.T, h *fakeHistory, id string) model.FlashRecord {
	t.Helper()
	var rec model.FlashRecord
	require.Eventually(t, func() bool {
		var ok bool
		rec, ok = h.Get(id)
		return ok && rec.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return rec
}

func TestFlashService_Refusals(t *testing.T) {
	svc := application.NewFlashService(&scriptedFlasher{}, nil, discardLogger())
	ctx := context.Background()

	_, err := svc.Start(ctx, nil, leftFw)
	assert.ErrorIs(t, err, application.ErrNoDeviceSelected)

	_, err = svc.Start(ctx, leftDevice, nil)
	assert.ErrorIs(t, err, application.ErrNoFirmwareSelected)

	_, err = svc.Start(ctx, leftDevice, rightFw)
	assert.ErrorIs(t, err, application.ErrIncompatibleFirmware)
}

func TestFlashService_Check(t *testing.T) {
	history := newFakeHistory()
	svc := application.NewFlashService(&flasher.Simulator{Step: time.Hour}, history, discardLogger())

	assert.ErrorIs(t, svc.Check(nil, leftFw), application.ErrNoDeviceSelected)
	assert.ErrorIs(t, svc.Check(leftDevice, nil), application.ErrNoFirmwareSelected)
	assert.ErrorIs(t, svc.Check(leftDevice, rightFw), application.ErrIncompatibleFirmware)

	require.NoError(t, svc.Check(leftDevice, leftFw))
	records, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records, "checking starts nothing")

	ctx, cancel := context.WithCancel(context.Background())
	session, err := svc.Start(ctx, leftDevice, leftFw)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Check(leftDevice, leftFw), application.ErrFlashInProgress)

	cancel()
	drain(t, session.Progress)
}

func TestFlashService_SuccessWithSimulator(t *testing.T) {
	history := newFakeHistory()
	svc := application.NewFlashService(&flasher.Simulator{Step: time.Millisecond}, history, discardLogger())

	session, err := svc.Start(context.Background(), leftDevice, leftFw)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)

	events := drain(t, session.Progress)
	last := events[len(events)-1]
	assert.Equal(t, model.FlashStatusSuccess, last.Status)
	assert.Equal(t, 100, last.Percentage)

	rec := waitRecord(t, history, session.ID)
	assert.Equal(t, model.FlashStatusSuccess, rec.Status)
	assert.Equal(t, leftDevice.ID, rec.DeviceID)
	assert.Equal(t, leftFw.ID, rec.FirmwareID)
	assert.False(t, rec.FinishedAt.IsZero())

	records, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFlashService_OneOperationPerDevice(t *testing.T) {
	svc := application.NewFlashService(&flasher.Simulator{Step: time.Hour}, nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := svc.Start(ctx, leftDevice, leftFw)
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), leftDevice, leftFw)
	assert.ErrorIs(t, err, application.ErrFlashInProgress)

	cancel()
	events := drain(t, session.Progress)
	assert.Equal(t, model.FlashStatusError, events[len(events)-1].Status)

	retryCtx, retryCancel := context.WithCancel(context.Background())
	retry, err := svc.Start(retryCtx, leftDevice, &model.Firmware{ID: "x", Name: "left.uf2"})
	require.NoError(t, err, "retry starts from the beginning once the device is free")
	retryCancel()
	drain(t, retry.Progress)
}

func TestFlashService_ClampsRegressingProgress(t *testing.T) {
	f := &scriptedFlasher{events: []model.FlashProgress{
		{Percentage: 10, Status: model.FlashStatusFlashing},
		{Percentage: 40, Status: model.FlashStatusFlashing},
		{Percentage: 30, Status: model.FlashStatusFlashing},
		{Percentage: 100, Status: model.FlashStatusSuccess},
	}}
	svc := application.NewFlashService(f, nil, discardLogger())

	session, err := svc.Start(context.Background(), leftDevice, leftFw)
	require.NoError(t, err)

	events := drain(t, session.Progress)
	require.Len(t, events, 4)
	assert.Equal(t, 40, events[2].Percentage)
}

func TestFlashService_StreamEndsWithoutResult(t *testing.T) {
	history := newFakeHistory()
	f := &scriptedFlasher{events: []model.FlashProgress{
		{Percentage: 20, Status: model.FlashStatusFlashing},
	}}
	svc := application.NewFlashService(f, history, discardLogger())

	session, err := svc.Start(context.Background(), leftDevice, leftFw)
	require.NoError(t, err)

	events := drain(t, session.Progress)
	last := events[len(events)-1]
	assert.Equal(t, model.FlashStatusError, last.Status)
	assert.NotEmpty(t, last.Message)

	rec := waitRecord(t, history, session.ID)
	assert.Equal(t, model.FlashStatusError, rec.Status)
}

func TestFlashService_FlasherRefuses(t *testing.T) {
	history := newFakeHistory()
	svc := application.NewFlashService(&scriptedFlasher{err: errors.New("no bootloader")}, history, discardLogger())

	_, err := svc.Start(context.Background(), leftDevice, leftFw)
	require.Error(t, err)

	records, err := svc.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.FlashStatusError, records[0].Status)
	assert.Contains(t, records[0].Message, "no bootloader")

	_, err = svc.Start(context.Background(), leftDevice, leftFw)
	assert.NotErrorIs(t, err, application.ErrFlashInProgress, "device is released after a failed start")
}
