package driven

import (
	"context"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

// FlashHistoryStore defines the driven port for recording flash attempts.
// Record inserts a new record or updates status, message and finish time of
// an existing one with the same ID.
type FlashHistoryStore interface {
	Record(ctx context.Context, record model.FlashRecord) error
	ListRecent(ctx context.Context, limit int) ([]model.FlashRecord, error)
}
