package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Stage result committers. Each persists one stage's output and marks the
// ledger done in the same transaction, so a crash can never record results
// without the ledger or vice versa. All writers are idempotent.

// ExifData is the exif stage output.
type ExifData struct {
	Width        *int
	Height       *int
	DateTaken    *time.Time
	CameraMake   string
	CameraModel  string
	LensModel    string
	FocalLength  *float64
	Aperture     *float64
	ShutterSpeed string
	ISO          *int
	Orientation  *int
	GPSLatitude  *float64
	GPSLongitude *float64
	GPSAltitude  *float64
}

// WriteExif commits exif stage results.
func (s *Store) WriteExif(fileID string, data ExifData, version int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"camera_make":   data.CameraMake,
			"camera_model":  data.CameraModel,
			"lens_model":    data.LensModel,
			"shutter_speed": data.ShutterSpeed,
		}
		if data.Width != nil {
			updates["width"] = *data.Width
		}
		if data.Height != nil {
			updates["height"] = *data.Height
		}
		if data.DateTaken != nil {
			updates["date_taken"] = *data.DateTaken
		}
		if data.FocalLength != nil {
			updates["focal_length"] = *data.FocalLength
		}
		if data.Aperture != nil {
			updates["aperture"] = *data.Aperture
		}
		if data.ISO != nil {
			updates["iso"] = *data.ISO
		}
		if data.Orientation != nil {
			updates["orientation"] = *data.Orientation
		}
		if data.GPSLatitude != nil {
			updates["gps_latitude"] = *data.GPSLatitude
		}
		if data.GPSLongitude != nil {
			updates["gps_longitude"] = *data.GPSLongitude
		}
		if data.GPSAltitude != nil {
			updates["gps_altitude"] = *data.GPSAltitude
		}
		if err := tx.Model(&Photo{}).Where("file_id = ?", fileID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to write exif: %w", err)
		}
		return markStageDoneTx(tx, fileID, "exif", version)
	})
}

// WriteLocation commits geocode stage results.
func (s *Store) WriteLocation(fileID, country, city, address string, version int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&Photo{}).Where("file_id = ?", fileID).Updates(map[string]any{
			"location_country": country,
			"location_city":    city,
			"location_address": address,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to write location: %w", err)
		}
		return markStageDoneTx(tx, fileID, "geocode", version)
	})
}

// WriteThumbnailMeta records which thumbnail sizes exist for a photo.
func (s *Store) WriteThumbnailMeta(fileID string, sizes []int, version int) error {
	sorted := append([]int(nil), sizes...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, sz := range sorted {
		parts[i] = strconv.Itoa(sz)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&Photo{}).Where("file_id = ?", fileID).
			Update("thumbnail_sizes", strings.Join(parts, ",")).Error
		if err != nil {
			return fmt.Errorf("failed to write thumbnail meta: %w", err)
		}
		return markStageDoneTx(tx, fileID, "thumbs", version)
	})
}

// WritePhash commits the three perceptual fingerprints.
func (s *Store) WritePhash(fileID, phash, ahash, dhash string, version int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		row := PerceptualHash{FileID: fileID, PHash: phash, AHash: ahash, DHash: dhash}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to write perceptual hashes: %w", err)
		}
		return markStageDoneTx(tx, fileID, "phash", version)
	})
}

// FaceResult is one detection from the faces stage.
type FaceResult struct {
	BboxX, BboxY, BboxW, BboxH int
	Embedding                  []byte
	ThumbPath                  string
	PersonID                   *uint
}

// WriteFaces replaces the face rows for a photo and marks the stage done.
// Returns the created face IDs in input order.
func (s *Store) WriteFaces(fileID string, faces []FaceResult, version int) ([]uint, error) {
	ids := make([]uint, 0, len(faces))
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&Face{}).Error; err != nil {
			return fmt.Errorf("failed to clear old faces: %w", err)
		}
		for _, f := range faces {
			row := Face{
				FileID:    fileID,
				BboxX:     f.BboxX,
				BboxY:     f.BboxY,
				BboxW:     f.BboxW,
				BboxH:     f.BboxH,
				Embedding: f.Embedding,
				ThumbPath: f.ThumbPath,
				PersonID:  f.PersonID,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to write face: %w", err)
			}
			ids = append(ids, row.FaceID)
		}
		return markStageDoneTx(tx, fileID, "faces", version)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// WriteTags replaces a photo's tags with labels and marks the stage done.
// Tag rows are created on first use and shared across photos.
func (s *Store) WriteTags(fileID string, labels []string, version int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&PhotoTag{}).Error; err != nil {
			return fmt.Errorf("failed to clear old tags: %w", err)
		}
		seen := make(map[string]bool, len(labels))
		for _, label := range labels {
			label = strings.ToLower(strings.TrimSpace(label))
			if label == "" || seen[label] {
				continue
			}
			seen[label] = true
			var tag Tag
			if err := tx.Where(Tag{Label: label}).FirstOrCreate(&tag).Error; err != nil {
				return fmt.Errorf("failed to upsert tag %q: %w", label, err)
			}
			if err := tx.Create(&PhotoTag{FileID: fileID, TagID: tag.TagID}).Error; err != nil {
				return fmt.Errorf("failed to link tag %q: %w", label, err)
			}
		}
		return markStageDoneTx(tx, fileID, "tags", version)
	})
}

// WriteCaption commits the caption stage result.
func (s *Store) WriteCaption(fileID, text, model string, version int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		row := Caption{FileID: fileID, Text: text, Model: model}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to write caption: %w", err)
		}
		if err := s.touch(tx, fileID); err != nil {
			return err
		}
		return markStageDoneTx(tx, fileID, "caption", version)
	})
}

// WriteMotionVideo records the extracted motion-video artifact path and
// marks the motion stage done.
func (s *Store) WriteMotionVideo(fileID, videoPath string, version int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&Photo{}).Where("file_id = ?", fileID).Updates(map[string]any{
			"motion_photo":     true,
			"live_photo_video": videoPath,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to write motion video: %w", err)
		}
		return markStageDoneTx(tx, fileID, "motion", version)
	})
}

// MarkStageDone marks a stage done with no payload (motion stage when there
// is nothing to extract, discovery routing, and similar pass-throughs).
func (s *Store) MarkStageDone(fileID, stage string, version int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return markStageDoneTx(tx, fileID, stage, version)
	})
}
