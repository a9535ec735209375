// Package catalog implements the durable photo catalog: photo rows, derived
// metadata, and the per-stage work ledger that makes the pipeline idempotent
// and resumable.
//
// The store is backed by a single SQLite database in WAL mode. All mutation
// goes through this package; pipeline workers never touch gorm directly.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mbianchi/photarc/internal/logger"
)

// Store wraps the catalog database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the catalog database at path and runs
// auto-migration.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL for concurrent readers with a single writer; busy_timeout so
	// short write contention waits instead of failing.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}

	logger.Info("catalog opened", "path", path)
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory catalog. Used by tests.
func OpenInMemory() (*Store, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory catalog: %w", err)
	}
	// Every pooled connection to a plain ":memory:" DSN opens its own empty
	// database; a single connection keeps all goroutines on the same one.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access in-memory catalog: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartupSweep demotes ledger rows left in_flight by a previous process to
// pending. Runs once at startup, before any worker starts.
func (s *Store) StartupSweep() (int64, error) {
	res := s.db.Model(&WorkLedger{}).
		Where("status = ?", StatusInFlight).
		Updates(map[string]any{"status": StatusPending, "last_error": ""})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep in-flight ledger rows: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logger.Info("demoted interrupted ledger rows to pending", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Reconcile marks photos whose primary path no longer exists on disk.
// It never hashes and never reprocesses; a later scan may heal the path from
// a secondary PhotoPath row.
func (s *Store) Reconcile(photosRoot string) (int, error) {
	var photos []Photo
	if err := s.db.Select("file_id", "file_path", "missing").Find(&photos).Error; err != nil {
		return 0, fmt.Errorf("failed to list photos for reconcile: %w", err)
	}

	marked := 0
	for _, p := range photos {
		_, statErr := os.Stat(filepath.Join(photosRoot, p.FilePath))
		missing := statErr != nil
		if missing == p.Missing {
			continue
		}
		if err := s.db.Model(&Photo{}).Where("file_id = ?", p.FileID).
			Update("missing", missing).Error; err != nil {
			return marked, fmt.Errorf("failed to update missing flag for %s: %w", p.FileID, err)
		}
		if missing {
			marked++
		}
	}
	if marked > 0 {
		logger.Info("reconcile marked photos missing", "count", marked)
	}
	return marked, nil
}

// ClearIndex truncates every derived table: ledger rows, hashes, duplicate
// groups, faces, persons, tags, captions, events, thumbnails bookkeeping,
// and the photo rows themselves. The photo root is untouched. The next scan
// starts from scratch.
func (s *Store) ClearIndex() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&EventPhoto{}, &Event{},
			&PhotoTag{}, &Tag{}, &Caption{},
			&Face{}, &Person{},
			&DuplicateMember{}, &DuplicateGroup{}, &PerceptualHash{},
			&WorkLedger{}, &PhotoPath{}, &Photo{}, &ScanRun{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to clear table: %w", err)
			}
		}
		return nil
	})
}

// touch updates a photo's UpdatedAt without changing anything else. Used by
// idempotent writers that detected a no-op.
func (s *Store) touch(tx *gorm.DB, fileID string) error {
	return tx.Model(&Photo{}).Where("file_id = ?", fileID).
		Update("updated_at", time.Now()).Error
}
