package catalog

import (
	"fmt"

	"gorm.io/gorm"
)

// DuplicateSet is a group of near-identical photos plus its members.
type DuplicateSet struct {
	GroupID uint    `json:"group_id"`
	Photos  []Photo `json:"photos"`
}

// ReplaceDuplicateGroups rewrites the duplicate-group tables from a fresh
// clustering pass. groups holds the member file IDs per cluster; singletons
// must already be filtered out by the caller.
func (s *Store) ReplaceDuplicateGroups(groups [][]string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&DuplicateMember{}).Error; err != nil {
			return fmt.Errorf("failed to clear duplicate members: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&DuplicateGroup{}).Error; err != nil {
			return fmt.Errorf("failed to clear duplicate groups: %w", err)
		}
		for _, members := range groups {
			if len(members) < 2 {
				continue
			}
			group := DuplicateGroup{}
			if err := tx.Create(&group).Error; err != nil {
				return fmt.Errorf("failed to create duplicate group: %w", err)
			}
			for _, fileID := range members {
				err := tx.Create(&DuplicateMember{GroupID: group.GroupID, FileID: fileID}).Error
				if err != nil {
					return fmt.Errorf("failed to add duplicate member: %w", err)
				}
			}
		}
		return nil
	})
}

// ListDuplicateSets returns all duplicate groups with their member photos,
// largest groups first.
func (s *Store) ListDuplicateSets() ([]DuplicateSet, error) {
	var groups []DuplicateGroup
	if err := s.db.Order("group_id").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list duplicate groups: %w", err)
	}

	sets := make([]DuplicateSet, 0, len(groups))
	for _, g := range groups {
		var photos []Photo
		err := s.db.
			Joins("JOIN duplicate_members ON duplicate_members.file_id = photos.file_id").
			Where("duplicate_members.group_id = ?", g.GroupID).
			Order("photos.file_size DESC").
			Find(&photos).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load duplicate members: %w", err)
		}
		if len(photos) < 2 {
			continue
		}
		sets = append(sets, DuplicateSet{GroupID: g.GroupID, Photos: photos})
	}
	return sets, nil
}

// AllPerceptualHashes streams every stored fingerprint for clustering.
func (s *Store) AllPerceptualHashes() ([]PerceptualHash, error) {
	var rows []PerceptualHash
	err := s.db.
		Joins("JOIN photos ON photos.file_id = photo_hashes.file_id").
		Where("photos.missing = ?", false).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list perceptual hashes: %w", err)
	}
	return rows, nil
}
