package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.FirmwareStore = (*FirmwareRepo)(nil)

// FirmwareRepo is the SQLite implementation of the FirmwareStore port interface.
type FirmwareRepo struct {
	db *DB
}

// NewFirmwareRepo creates a new FirmwareRepo backed by the given DB.
func NewFirmwareRepo(db *DB) *FirmwareRepo {
	return &FirmwareRepo{db: db}
}

// AddAll stores firmwares for a repository in order. A firmware whose ID is
// already catalogued for the repository is skipped, keeping the first record.
// Returns the number of rows actually inserted.
func (r *FirmwareRepo) AddAll(ctx context.Context, repoURL string, firmwares []model.Firmware) (int, error) {
	if len(firmwares) == 0 {
		return 0, nil
	}

	const query = `
		INSERT OR IGNORE INTO firmware_catalog (
			repository_url, firmware_id, name, path, build_date, branch,
			commit_message, board_id, family_id, size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin firmware insert for %s: %w", repoURL, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare firmware insert: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, fw := range firmwares {
		res, err := stmt.ExecContext(ctx,
			repoURL, fw.ID, fw.Name, fw.Path, formatTime(fw.BuildDate), fw.Branch,
			fw.CommitMessage, fw.BoardID, fw.FamilyID, fw.Size,
		)
		if err != nil {
			return 0, fmt.Errorf("insert firmware %s: %w", fw.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected for firmware %s: %w", fw.ID, err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit firmware insert for %s: %w", repoURL, err)
	}

	return added, nil
}

// ListByRepository returns the catalogued firmwares for a repository in
// insertion order.
func (r *FirmwareRepo) ListByRepository(ctx context.Context, repoURL string) ([]model.Firmware, error) {
	const query = `
		SELECT firmware_id, name, path, build_date, branch, commit_message, board_id, family_id, size
		FROM firmware_catalog
		WHERE repository_url = ?
		ORDER BY seq`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoURL)
	if err != nil {
		return nil, fmt.Errorf("list firmware for %s: %w", repoURL, err)
	}
	defer rows.Close()

	result := []model.Firmware{}
	for rows.Next() {
		var fw model.Firmware
		var buildDate string
		if err := rows.Scan(
			&fw.ID, &fw.Name, &fw.Path, &buildDate, &fw.Branch,
			&fw.CommitMessage, &fw.BoardID, &fw.FamilyID, &fw.Size,
		); err != nil {
			return nil, fmt.Errorf("scan firmware: %w", err)
		}
		fw.BuildDate, err = parseTime(buildDate)
		if err != nil {
			return nil, fmt.Errorf("parse build_date for firmware %s: %w", fw.ID, err)
		}
		result = append(result, fw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firmware: %w", err)
	}
	return result, nil
}

// DeleteByRepository removes every catalogued firmware of a repository.
// No-op if nothing is stored.
func (r *FirmwareRepo) DeleteByRepository(ctx context.Context, repoURL string) error {
	const query = `DELETE FROM firmware_catalog WHERE repository_url = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, repoURL); err != nil {
		return fmt.Errorf("delete firmware for %s: %w", repoURL, err)
	}
	return nil
}
