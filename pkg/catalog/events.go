package catalog

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EventDraft is the detector's output for one event.
type EventDraft struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	City      string
	Country   string
	CoverFile string
	FileIDs   []string
}

// ReplaceEvents rewrites the event tables from a fresh detection pass.
// Detection is batch and deterministic, so replacement keeps the table
// consistent with whatever the detector saw.
func (s *Store) ReplaceEvents(drafts []EventDraft) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&EventPhoto{}).Error; err != nil {
			return fmt.Errorf("failed to clear event photos: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&Event{}).Error; err != nil {
			return fmt.Errorf("failed to clear events: %w", err)
		}
		for _, d := range drafts {
			event := Event{
				Name:       d.Name,
				StartTime:  d.StartTime,
				EndTime:    d.EndTime,
				City:       d.City,
				Country:    d.Country,
				CoverFile:  d.CoverFile,
				PhotoCount: len(d.FileIDs),
			}
			if err := tx.Create(&event).Error; err != nil {
				return fmt.Errorf("failed to create event: %w", err)
			}
			for _, fileID := range d.FileIDs {
				err := tx.Create(&EventPhoto{EventID: event.EventID, FileID: fileID}).Error
				if err != nil {
					return fmt.Errorf("failed to add event photo: %w", err)
				}
			}
		}
		return nil
	})
}

// ListEvents returns all events, newest first.
func (s *Store) ListEvents() ([]Event, error) {
	var events []Event
	err := s.db.Order("start_time DESC").Find(&events).Error
	return events, err
}

// GetEvent returns one event, or ErrNotFound.
func (s *Store) GetEvent(id uint) (*Event, error) {
	var e Event
	err := s.db.First(&e, "event_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EventPhotos lists the photos of one event in capture order.
func (s *Store) EventPhotos(id uint) ([]Photo, error) {
	var photos []Photo
	err := s.db.
		Joins("JOIN event_photos ON event_photos.file_id = photos.file_id").
		Where("event_photos.event_id = ?", id).
		Order("COALESCE(photos.date_taken, photos.file_modified) ASC").
		Find(&photos).Error
	return photos, err
}

// RenameEvent sets an event's display name.
func (s *Store) RenameEvent(id uint, name string) error {
	res := s.db.Model(&Event{}).Where("event_id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
