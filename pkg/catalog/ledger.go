package catalog

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// StageNeeded reports whether stage must run for fileID.
//
// True when the ledger row is absent, pending, or failed with attempts below
// maxAttempts. A stored stage version older than version also returns true
// and resets the row so the stage reruns with fresh attempt accounting.
func (s *Store) StageNeeded(fileID, stage string, version, maxAttempts int) (bool, error) {
	var row WorkLedger
	err := s.db.First(&row, "file_id = ? AND stage = ?", fileID, stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read ledger for %s/%s: %w", fileID, stage, err)
	}

	if row.StageVersion < version {
		// Algorithm changed: invalidate regardless of status.
		err := s.db.Model(&WorkLedger{}).
			Where("file_id = ? AND stage = ?", fileID, stage).
			Updates(map[string]any{
				"status":        StatusPending,
				"stage_version": version,
				"attempts":      0,
				"last_error":    "",
				"completed_at":  nil,
			}).Error
		if err != nil {
			return false, fmt.Errorf("failed to invalidate ledger row: %w", err)
		}
		return true, nil
	}

	switch row.Status {
	case StatusPending, StatusInFlight:
		// in_flight rows only survive a crash; the startup sweep demotes
		// them, and a row seen here counts as runnable either way.
		return true, nil
	case StatusFailed:
		return row.Attempts < maxAttempts, nil
	default:
		return false, nil
	}
}

// MarkStageInFlight transitions the ledger row to in_flight, creating it if
// absent, and bumps the attempt counter.
func (s *Store) MarkStageInFlight(fileID, stage string, version int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row WorkLedger
		err := tx.First(&row, "file_id = ? AND stage = ?", fileID, stage).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&WorkLedger{
				FileID:       fileID,
				Stage:        stage,
				Status:       StatusInFlight,
				StageVersion: version,
				Attempts:     1,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&WorkLedger{}).
			Where("file_id = ? AND stage = ?", fileID, stage).
			Updates(map[string]any{
				"status":        StatusInFlight,
				"stage_version": version,
				"attempts":      row.Attempts + 1,
			}).Error
	})
}

// MarkStage records a terminal (or pending, on cancellation) status for the
// (fileID, stage) pair. errMsg is stored for failed and skipped rows.
func (s *Store) MarkStage(fileID, stage string, status StageStatus, errMsg string) error {
	updates := map[string]any{
		"status":     status,
		"last_error": errMsg,
	}
	if status.Terminal() {
		now := time.Now()
		updates["completed_at"] = &now
	} else {
		updates["completed_at"] = nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var row WorkLedger
		err := tx.First(&row, "file_id = ? AND stage = ?", fileID, stage).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created := WorkLedger{
				FileID: fileID,
				Stage:  stage,
				Status: status,
			}
			if status.Terminal() {
				now := time.Now()
				created.CompletedAt = &now
			}
			created.LastError = errMsg
			return tx.Create(&created).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&WorkLedger{}).
			Where("file_id = ? AND stage = ?", fileID, stage).
			Updates(updates).Error
	})
}

// markStageDoneTx marks a stage done inside an existing transaction. Result
// writers use it so data and ledger commit atomically.
func markStageDoneTx(tx *gorm.DB, fileID, stage string, version int) error {
	now := time.Now()
	var row WorkLedger
	err := tx.First(&row, "file_id = ? AND stage = ?", fileID, stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&WorkLedger{
			FileID:       fileID,
			Stage:        stage,
			Status:       StatusDone,
			StageVersion: version,
			CompletedAt:  &now,
		}).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&WorkLedger{}).
		Where("file_id = ? AND stage = ?", fileID, stage).
		Updates(map[string]any{
			"status":        StatusDone,
			"stage_version": version,
			"last_error":    "",
			"completed_at":  &now,
		}).Error
}

// LedgerRow returns the ledger row for (fileID, stage), or ErrNotFound.
func (s *Store) LedgerRow(fileID, stage string) (*WorkLedger, error) {
	var row WorkLedger
	err := s.db.First(&row, "file_id = ? AND stage = ?", fileID, stage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// StageCounts returns how many ledger rows each status holds for stage.
func (s *Store) StageCounts(stage string) (map[StageStatus]int64, error) {
	type result struct {
		Status StageStatus
		N      int64
	}
	var rows []result
	err := s.db.Model(&WorkLedger{}).
		Select("status, count(*) as n").
		Where("stage = ?", stage).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[StageStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// FailedItems lists failed ledger rows for display, newest first.
func (s *Store) FailedItems(limit int) ([]WorkLedger, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []WorkLedger
	err := s.db.Where("status = ?", StatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// AllStagesDone reports whether every stage in stages has a terminal ledger
// row for fileID. Discovery uses it to avoid re-enqueueing settled photos.
func (s *Store) AllStagesDone(fileID string, stages []string) (bool, error) {
	var n int64
	err := s.db.Model(&WorkLedger{}).
		Where("file_id = ? AND stage IN ? AND status IN ?", fileID, stages,
			[]StageStatus{StatusDone, StatusFailed, StatusSkipped}).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n == int64(len(stages)), nil
}
