package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

func TestFlashRepo_RecordAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFlashRepo(db)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := model.FlashRecord{
		ID:           "op-1",
		DeviceID:     "0xFEED:0x1234_0",
		DeviceName:   "Corne Left",
		FirmwareID:   "github-artifact-201",
		FirmwareName: "corne_left.uf2",
		Status:       model.FlashStatusFlashing,
		StartedAt:    started,
	}
	require.NoError(t, repo.Record(ctx, rec))

	got, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.FlashStatusFlashing, got[0].Status)
	assert.True(t, got[0].FinishedAt.IsZero())

	rec.Status = model.FlashStatusSuccess
	rec.Message = "done"
	rec.FinishedAt = started.Add(5 * time.Second)
	require.NoError(t, repo.Record(ctx, rec))

	got, err = repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.FlashStatusSuccess, got[0].Status)
	assert.Equal(t, "done", got[0].Message)
	assert.Equal(t, started, got[0].StartedAt)
	assert.Equal(t, started.Add(5*time.Second), got[0].FinishedAt)
}

func TestFlashRepo_ListRecent_NewestFirstWithLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFlashRepo(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Record(ctx, model.FlashRecord{
			ID:         id,
			DeviceID:   "dev",
			FirmwareID: "fw",
			Status:     model.FlashStatusError,
			StartedAt:  base.Add(time.Duration(i) * 500 * time.Millisecond),
		}))
	}

	got, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
