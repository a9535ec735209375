package catalog

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ListPersons returns all persons ordered by photo count.
func (s *Store) ListPersons() ([]Person, error) {
	var persons []Person
	err := s.db.Order("photo_count DESC, person_id").Find(&persons).Error
	return persons, err
}

// GetPerson returns one person row, or ErrNotFound.
func (s *Store) GetPerson(id uint) (*Person, error) {
	var p Person
	err := s.db.First(&p, "person_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePerson inserts a new person and returns it.
func (s *Store) CreatePerson(name string, representativeFace uint) (*Person, error) {
	p := Person{Name: name}
	if representativeFace != 0 {
		p.RepresentativeFace = &representativeFace
	}
	if err := s.db.Create(&p).Error; err != nil {
		return nil, fmt.Errorf("failed to create person: %w", err)
	}
	return &p, nil
}

// RenamePerson sets a person's display name.
func (s *Store) RenamePerson(id uint, name string) error {
	res := s.db.Model(&Person{}).Where("person_id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MergePersons moves every face from src onto dst and deletes src. The name
// of dst wins; dst keeps its representative face.
func (s *Store) MergePersons(dst, src uint) error {
	if dst == src {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var target Person
		if err := tx.First(&target, "person_id = ?", dst).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		err := tx.Model(&Face{}).Where("person_id = ?", src).
			Update("person_id", dst).Error
		if err != nil {
			return fmt.Errorf("failed to move faces: %w", err)
		}
		if err := tx.Delete(&Person{}, "person_id = ?", src).Error; err != nil {
			return fmt.Errorf("failed to delete merged person: %w", err)
		}
		return refreshPersonCountTx(tx, dst)
	})
}

// AssignFaces binds faces to a person and refreshes the affected counts.
func (s *Store) AssignFaces(faceIDs []uint, personID uint) error {
	if len(faceIDs) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Collect the persons the faces are moving away from.
		var oldIDs []uint
		err := tx.Model(&Face{}).Distinct("person_id").
			Where("face_id IN ? AND person_id IS NOT NULL", faceIDs).
			Pluck("person_id", &oldIDs).Error
		if err != nil {
			return err
		}
		err = tx.Model(&Face{}).Where("face_id IN ?", faceIDs).
			Update("person_id", personID).Error
		if err != nil {
			return fmt.Errorf("failed to assign faces: %w", err)
		}
		for _, id := range append(oldIDs, personID) {
			if err := refreshPersonCountTx(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// RefreshPersonCounts recomputes photo_count for every person. Clustering
// calls it after a relabeling pass.
func (s *Store) RefreshPersonCounts() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&Person{}).Pluck("person_id", &ids).Error; err != nil {
			return err
		}
		for _, id := range ids {
			if err := refreshPersonCountTx(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// refreshPersonCountTx recounts distinct photos for one person and prunes
// the row when it no longer has any faces.
func refreshPersonCountTx(tx *gorm.DB, personID uint) error {
	var n int64
	err := tx.Model(&Face{}).
		Distinct("file_id").
		Where("person_id = ?", personID).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return tx.Delete(&Person{}, "person_id = ?", personID).Error
	}
	return tx.Model(&Person{}).Where("person_id = ?", personID).
		Update("photo_count", n).Error
}

// GetFace returns one face row, or ErrNotFound.
func (s *Store) GetFace(faceID uint) (*Face, error) {
	var f Face
	err := s.db.First(&f, "face_id = ?", faceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// UnassignedFaces lists faces not yet bound to a person, oldest first.
func (s *Store) UnassignedFaces(limit int) ([]Face, error) {
	if limit <= 0 {
		limit = 500
	}
	var faces []Face
	err := s.db.Where("person_id IS NULL").Order("face_id").Limit(limit).Find(&faces).Error
	return faces, err
}

// AllFaces returns every face row with an embedding, for clustering.
func (s *Store) AllFaces() ([]Face, error) {
	var faces []Face
	err := s.db.Where("embedding IS NOT NULL AND length(embedding) > 0").
		Order("face_id").Find(&faces).Error
	return faces, err
}
