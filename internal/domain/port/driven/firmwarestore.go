package driven

import (
	"context"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// FirmwareStore defines the driven port for the per-repository firmware
// catalog. AddAll keeps the first record stored for an ID and silently drops
// later ones; it returns the number of newly stored records.
type FirmwareStore interface {
	AddAll(ctx context.Context, repoURL string, firmwares []model.Firmware) (int, error)
	ListByRepository(ctx context.Context, repoURL string) ([]model.Firmware, error)
	DeleteByRepository(ctx context.Context, repoURL string) error
}
