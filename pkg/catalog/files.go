package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"
)

// UpsertResult reports what UpsertFile found or created.
type UpsertResult struct {
	FileID  string
	Created bool // a new Photo row was inserted
	Hashed  bool // the file's bytes were read and hashed
}

// ErrNotFound is returned by lookups for unknown photos.
var ErrNotFound = errors.New("catalog: not found")

// UpsertFile resolves the identity of the file at relPath (relative to the
// photo root) with the given size and mtime.
//
// Identity is probed first by (path, size, mtime): if a known path carries
// the same size and an mtime within one second, the existing identifier is
// returned without reading the file. Only on a miss is hashFn invoked to
// compute the content hash, and the photo is then either matched to an
// existing row by hash (content seen under another path) or inserted fresh.
// This probe is what makes repeat scans of an unchanged tree cheap.
func (s *Store) UpsertFile(relPath string, size int64, mtime time.Time, hashFn func() (string, error)) (UpsertResult, error) {
	var out UpsertResult

	// Probe by path triple.
	var pp PhotoPath
	err := s.db.Where("file_path = ?", relPath).First(&pp).Error
	if err == nil {
		var photo Photo
		if err := s.db.First(&photo, "file_id = ?", pp.FileID).Error; err == nil {
			sameSize := photo.FileSize == size
			// 1s tolerance for filesystem timestamp precision.
			sameMtime := !photo.FileModified.IsZero() &&
				absDuration(photo.FileModified.Sub(mtime)) < time.Second
			if sameSize && sameMtime {
				out.FileID = photo.FileID
				if photo.Missing {
					s.db.Model(&Photo{}).Where("file_id = ?", photo.FileID).
						Update("missing", false)
				}
				return out, nil
			}
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return out, fmt.Errorf("failed to probe path %s: %w", relPath, err)
	}

	// Probe missed: hash the content.
	fileID, err := hashFn()
	if err != nil {
		return out, fmt.Errorf("failed to hash %s: %w", relPath, err)
	}
	out.FileID = fileID
	out.Hashed = true

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var existing Photo
		findErr := tx.First(&existing, "file_id = ?", fileID).Error
		switch {
		case findErr == nil:
			// Content already known; track the new path and refresh the
			// stored triple so the next scan probe hits.
			if err := tx.Where(PhotoPath{FileID: fileID, FilePath: relPath}).
				FirstOrCreate(&PhotoPath{FileID: fileID, FilePath: relPath}).Error; err != nil {
				return err
			}
			updates := map[string]any{
				"file_size":     size,
				"file_modified": mtime,
				"missing":       false,
			}
			if existing.FilePath == relPath || existing.Missing {
				// Heal the primary path when the old one is gone.
				updates["file_path"] = relPath
				updates["file_name"] = filepath.Base(relPath)
			}
			return tx.Model(&Photo{}).Where("file_id = ?", fileID).Updates(updates).Error

		case errors.Is(findErr, gorm.ErrRecordNotFound):
			photo := Photo{
				FileID:       fileID,
				FilePath:     relPath,
				FileName:     filepath.Base(relPath),
				FileSize:     size,
				FileModified: mtime,
				MimeType:     mimeTypeForExt(filepath.Ext(relPath)),
			}
			if err := tx.Create(&photo).Error; err != nil {
				return err
			}
			out.Created = true
			return tx.Create(&PhotoPath{FileID: fileID, FilePath: relPath}).Error

		default:
			return findErr
		}
	})
	if err != nil {
		return out, fmt.Errorf("failed to upsert %s: %w", relPath, err)
	}
	return out, nil
}

// GetPhoto returns the photo row for fileID.
func (s *Store) GetPhoto(fileID string) (*Photo, error) {
	var photo Photo
	if err := s.db.First(&photo, "file_id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &photo, nil
}

// SetFavorite sets the favorite flag.
func (s *Store) SetFavorite(fileID string, fav bool) error {
	res := s.db.Model(&Photo{}).Where("file_id = ?", fileID).Update("is_favorite", fav)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Store) ToggleFavorite(fileID string) (bool, error) {
	photo, err := s.GetPhoto(fileID)
	if err != nil {
		return false, err
	}
	next := !photo.IsFavorite
	if err := s.SetFavorite(fileID, next); err != nil {
		return false, err
	}
	return next, nil
}

// SetMotionFlags records discovery-time motion/live-photo findings.
func (s *Store) SetMotionFlags(fileID string, motionPhoto bool, livePhotoVideo string) error {
	updates := map[string]any{"motion_photo": motionPhoto}
	if livePhotoVideo != "" {
		updates["live_photo_video"] = livePhotoVideo
	}
	return s.db.Model(&Photo{}).Where("file_id = ?", fileID).Updates(updates).Error
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// mimeTypeForExt maps the supported photo extensions to MIME kinds.
func mimeTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic", ".heif":
		return "image/heic"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
