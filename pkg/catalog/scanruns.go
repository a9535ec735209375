package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateScanRun records the start of a scan and returns its run ID.
func (s *Store) CreateScanRun() (string, error) {
	run := ScanRun{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	if err := s.db.Create(&run).Error; err != nil {
		return "", fmt.Errorf("failed to create scan run: %w", err)
	}
	return run.RunID, nil
}

// UpdateScanRun applies partial counter updates to a running scan.
func (s *Store) UpdateScanRun(runID string, updates map[string]any) error {
	return s.db.Model(&ScanRun{}).Where("run_id = ?", runID).Updates(updates).Error
}

// FinishScanRun closes a scan run with its final counters.
func (s *Store) FinishScanRun(runID string, cancelled bool, discovered, newFiles, hashed, errCount int) error {
	now := time.Now()
	res := s.db.Model(&ScanRun{}).Where("run_id = ?", runID).Updates(map[string]any{
		"finished_at": &now,
		"cancelled":   cancelled,
		"discovered":  discovered,
		"new_files":   newFiles,
		"hashed":      hashed,
		"errors":      errCount,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to finish scan run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveScanRun returns the unfinished scan run if one exists, else nil.
func (s *Store) ActiveScanRun() (*ScanRun, error) {
	var run ScanRun
	err := s.db.Where("finished_at IS NULL").Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LastScanRun returns the most recent scan run, or ErrNotFound.
func (s *Store) LastScanRun() (*ScanRun, error) {
	var run ScanRun
	err := s.db.Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// AbortStaleScanRuns closes scan runs left open by a crashed process.
// Runs at startup alongside the ledger sweep.
func (s *Store) AbortStaleScanRuns() (int64, error) {
	now := time.Now()
	res := s.db.Model(&ScanRun{}).Where("finished_at IS NULL").Updates(map[string]any{
		"finished_at": &now,
		"cancelled":   true,
	})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to abort stale scan runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
