package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// defaultHistoryLimit caps ListRecent when the caller passes a non-positive limit.
const defaultHistoryLimit = 50

// Compile-time interface satisfaction check.
var _ driven.FlashHistoryStore = (*FlashRepo)(nil)

// FlashRepo is the SQLite implementation of the FlashHistoryStore port interface.
type FlashRepo struct {
	db *DB
}

// NewFlashRepo creates a new FlashRepo backed by the given DB.
func NewFlashRepo(db *DB) *FlashRepo {
	return &FlashRepo{db: db}
}

// Record inserts a flash record, or updates the outcome of an existing one.
func (r *FlashRepo) Record(ctx context.Context, record model.FlashRecord) error {
	const query = `
		INSERT INTO flash_history (
			id, device_id, device_name, firmware_id, firmware_name,
			status, message, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status      = excluded.status,
			message     = excluded.message,
			finished_at = excluded.finished_at`

	var finishedAt sql.NullString
	if !record.FinishedAt.IsZero() {
		finishedAt = sql.NullString{String: formatTime(record.FinishedAt), Valid: true}
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		record.ID, record.DeviceID, record.DeviceName, record.FirmwareID, record.FirmwareName,
		string(record.Status), record.Message, formatTime(record.StartedAt), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("record flash %s: %w", record.ID, err)
	}
	return nil
}

// ListRecent returns up to limit flash records, newest first.
func (r *FlashRepo) ListRecent(ctx context.Context, limit int) ([]model.FlashRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	const query = `
		SELECT id, device_id, device_name, firmware_id, firmware_name,
		       status, message, started_at, finished_at
		FROM flash_history
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list flash history: %w", err)
	}
	defer rows.Close()

	result := []model.FlashRecord{}
	for rows.Next() {
		var rec model.FlashRecord
		var status, startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.DeviceID, &rec.DeviceName, &rec.FirmwareID, &rec.FirmwareName,
			&status, &rec.Message, &startedAt, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan flash record: %w", err)
		}
		rec.Status = model.FlashStatus(status)

		rec.StartedAt, err = parseTime(startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at for flash %s: %w", rec.ID, err)
		}
		if finishedAt.Valid {
			rec.FinishedAt, err = parseTime(finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at for flash %s: %w", rec.ID, err)
			}
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flash history: %w", err)
	}
	return result, nil
}
