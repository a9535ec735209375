package catalog

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// PhotoFilter narrows ListPhotos. Zero values mean "no constraint".
type PhotoFilter struct {
	Directory  string // prefix match on the primary path
	Year       int
	Month      int
	PersonID   uint
	EventID    uint
	TagID      uint
	Country    string
	City       string
	Favorite   bool
	MinSize    int64
	DupGroupID uint
	Search     string // free text, see applySearch
}

// PhotoPage is one page of photo rows.
type PhotoPage struct {
	Photos   []Photo `json:"photos"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// ListPhotos returns a filtered, paginated photo list ordered by capture
// time (newest first), falling back to file mtime for photos without EXIF.
func (s *Store) ListPhotos(filter PhotoFilter, page, pageSize int) (*PhotoPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	q := s.db.Model(&Photo{}).Where("missing = ?", false)
	q = applyFilter(q, filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count photos: %w", err)
	}

	var photos []Photo
	err := q.Order("COALESCE(date_taken, file_modified) DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	return &PhotoPage{Photos: photos, Total: total, Page: page, PageSize: pageSize}, nil
}

func applyFilter(q *gorm.DB, f PhotoFilter) *gorm.DB {
	if f.Directory != "" {
		dir := strings.TrimSuffix(f.Directory, "/")
		q = q.Where("file_path = ? OR file_path LIKE ?", dir, dir+"/%")
	}
	if f.Year > 0 {
		q = q.Where("strftime('%Y', date_taken) = ?", fmt.Sprintf("%04d", f.Year))
		if f.Month > 0 {
			q = q.Where("strftime('%m', date_taken) = ?", fmt.Sprintf("%02d", f.Month))
		}
	}
	if f.PersonID != 0 {
		q = q.Where("file_id IN (?)", s2(q).Model(&Face{}).
			Select("file_id").Where("person_id = ?", f.PersonID))
	}
	if f.EventID != 0 {
		q = q.Where("file_id IN (?)", s2(q).Model(&EventPhoto{}).
			Select("file_id").Where("event_id = ?", f.EventID))
	}
	if f.TagID != 0 {
		q = q.Where("file_id IN (?)", s2(q).Model(&PhotoTag{}).
			Select("file_id").Where("tag_id = ?", f.TagID))
	}
	if f.Country != "" {
		q = q.Where("location_country = ?", f.Country)
	}
	if f.City != "" {
		q = q.Where("location_city = ?", f.City)
	}
	if f.Favorite {
		q = q.Where("is_favorite = ?", true)
	}
	if f.MinSize > 0 {
		q = q.Where("file_size >= ?", f.MinSize)
	}
	if f.DupGroupID != 0 {
		q = q.Where("file_id IN (?)", s2(q).Model(&DuplicateMember{}).
			Select("file_id").Where("group_id = ?", f.DupGroupID))
	}
	if f.Search != "" {
		q = applySearch(q, f.Search)
	}
	return q
}

// s2 returns a fresh query session sharing the connection, for subqueries.
func s2(q *gorm.DB) *gorm.DB {
	return q.Session(&gorm.Session{NewDB: true})
}

// applySearch matches term against paths, filenames, resolved place names,
// tag labels, captions, and person names.
func applySearch(q *gorm.DB, term string) *gorm.DB {
	like := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	sub := s2(q)
	return q.Where(
		q.Session(&gorm.Session{NewDB: true}).
			Where("LOWER(file_path) LIKE ?", like).
			Or("LOWER(file_name) LIKE ?", like).
			Or("LOWER(location_country) LIKE ?", like).
			Or("LOWER(location_city) LIKE ?", like).
			Or("LOWER(location_address) LIKE ?", like).
			Or("file_id IN (?)", sub.Model(&PhotoTag{}).Select("photo_tags.file_id").
				Joins("JOIN tags ON tags.tag_id = photo_tags.tag_id").
				Where("LOWER(tags.label) LIKE ?", like)).
			Or("file_id IN (?)", s2(q).Model(&Caption{}).Select("file_id").
				Where("LOWER(text) LIKE ?", like)).
			Or("file_id IN (?)", s2(q).Model(&Face{}).Select("faces.file_id").
				Joins("JOIN persons ON persons.person_id = faces.person_id").
				Where("LOWER(persons.name) LIKE ?", like)),
	)
}

// TimelineGroup is one year/month (or day) bucket.
type TimelineGroup struct {
	Year  int   `json:"year"`
	Month int   `json:"month"`
	Day   int   `json:"day,omitempty"`
	Count int64 `json:"count"`
}

// Timeline groups photos by capture date. granularity is "month" or "day".
func (s *Store) Timeline(granularity string) ([]TimelineGroup, error) {
	sel := "CAST(strftime('%Y', date_taken) AS INTEGER) AS year, " +
		"CAST(strftime('%m', date_taken) AS INTEGER) AS month, "
	group := "year, month"
	if granularity == "day" {
		sel += "CAST(strftime('%d', date_taken) AS INTEGER) AS day, "
		group = "year, month, day"
	}
	sel += "COUNT(*) AS count"

	var groups []TimelineGroup
	err := s.db.Model(&Photo{}).
		Select(sel).
		Where("date_taken IS NOT NULL AND missing = ?", false).
		Group(group).
		Order("year DESC, month DESC").
		Scan(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to build timeline: %w", err)
	}
	return groups, nil
}

// YearSummary is the per-year photo count.
type YearSummary struct {
	Year  int   `json:"year"`
	Count int64 `json:"count"`
}

// Years returns per-year counts, newest first.
func (s *Store) Years() ([]YearSummary, error) {
	var years []YearSummary
	err := s.db.Model(&Photo{}).
		Select("CAST(strftime('%Y', date_taken) AS INTEGER) AS year, COUNT(*) AS count").
		Where("date_taken IS NOT NULL AND missing = ?", false).
		Group("year").
		Order("year DESC").
		Scan(&years).Error
	return years, err
}

// DirectoryNode is one directory in the library tree.
type DirectoryNode struct {
	Name     string           `json:"name"`
	Path     string           `json:"path"`
	Count    int64            `json:"count"`
	Children []*DirectoryNode `json:"children,omitempty"`
}

// DirectoryTree builds the directory hierarchy from primary photo paths.
func (s *Store) DirectoryTree() ([]*DirectoryNode, error) {
	type row struct {
		FilePath string
	}
	var rows []row
	if err := s.db.Model(&Photo{}).Where("missing = ?", false).
		Select("file_path").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}

	counts := make(map[string]int64)
	for _, r := range rows {
		dir := path.Dir(r.FilePath)
		if dir == "." {
			dir = ""
		}
		// Count the photo in every ancestor directory.
		for {
			counts[dir]++
			if dir == "" {
				break
			}
			parent := path.Dir(dir)
			if parent == "." {
				parent = ""
			}
			dir = parent
		}
	}

	nodes := make(map[string]*DirectoryNode, len(counts))
	for dir, n := range counts {
		name := path.Base(dir)
		if dir == "" {
			name = ""
		}
		nodes[dir] = &DirectoryNode{Name: name, Path: dir, Count: n}
	}
	var roots []*DirectoryNode
	for dir, node := range nodes {
		if dir == "" {
			continue
		}
		parent := path.Dir(dir)
		if parent == "." {
			parent = ""
		}
		if p, ok := nodes[parent]; ok && parent != dir {
			p.Children = append(p.Children, node)
		}
	}
	if root, ok := nodes[""]; ok {
		roots = root.Children
	}
	sortNodes(roots)
	return roots, nil
}

func sortNodes(nodes []*DirectoryNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// LibraryStats summarizes the catalog for the stats endpoint.
type LibraryStats struct {
	TotalPhotos     int64            `json:"total_photos"`
	TotalBytes      int64            `json:"total_bytes"`
	WithGPS         int64            `json:"with_gps"`
	WithCaptions    int64            `json:"with_captions"`
	Favorites       int64            `json:"favorites"`
	Persons         int64            `json:"persons"`
	Events          int64            `json:"events"`
	DuplicateGroups int64            `json:"duplicate_groups"`
	Cameras         map[string]int64 `json:"cameras"`
}

// Stats computes the library summary.
func (s *Store) Stats() (*LibraryStats, error) {
	stats := &LibraryStats{Cameras: map[string]int64{}}
	base := func() *gorm.DB { return s.db.Model(&Photo{}).Where("missing = ?", false) }

	if err := base().Count(&stats.TotalPhotos).Error; err != nil {
		return nil, err
	}
	var total struct{ Total int64 }
	if err := base().Select("COALESCE(SUM(file_size),0) AS total").Scan(&total).Error; err != nil {
		return nil, err
	}
	stats.TotalBytes = total.Total
	if err := base().Where("gps_latitude IS NOT NULL").Count(&stats.WithGPS).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&Caption{}).Count(&stats.WithCaptions).Error; err != nil {
		return nil, err
	}
	if err := base().Where("is_favorite = ?", true).Count(&stats.Favorites).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&Person{}).Count(&stats.Persons).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&Event{}).Count(&stats.Events).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&DuplicateGroup{}).Count(&stats.DuplicateGroups).Error; err != nil {
		return nil, err
	}

	type cameraRow struct {
		CameraModel string
		N           int64
	}
	var cameras []cameraRow
	err := base().Select("camera_model, COUNT(*) AS n").
		Where("camera_model != ''").
		Group("camera_model").
		Order("n DESC").
		Limit(20).
		Scan(&cameras).Error
	if err != nil {
		return nil, err
	}
	for _, c := range cameras {
		stats.Cameras[c.CameraModel] = c.N
	}
	return stats, nil
}

// CountryCount and CityCount feed the locations endpoints.
type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

type CityCount struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Count   int64  `json:"count"`
}

// Countries lists countries with geotagged photos.
func (s *Store) Countries() ([]CountryCount, error) {
	var rows []CountryCount
	err := s.db.Model(&Photo{}).
		Select("location_country AS country, COUNT(*) AS count").
		Where("location_country != '' AND missing = ?", false).
		Group("location_country").
		Order("count DESC").
		Scan(&rows).Error
	return rows, err
}

// Cities lists cities, optionally filtered by country.
func (s *Store) Cities(country string) ([]CityCount, error) {
	q := s.db.Model(&Photo{}).
		Select("location_country AS country, location_city AS city, COUNT(*) AS count").
		Where("location_city != '' AND missing = ?", false)
	if country != "" {
		q = q.Where("location_country = ?", country)
	}
	var rows []CityCount
	err := q.Group("location_country, location_city").Order("count DESC").Scan(&rows).Error
	return rows, err
}

// MapPoint is a geotagged photo for the map view.
type MapPoint struct {
	FileID    string  `json:"file_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MapPoints returns geotagged photos, capped to limit.
func (s *Store) MapPoints(limit int) ([]MapPoint, error) {
	if limit <= 0 || limit > 10000 {
		limit = 5000
	}
	var rows []MapPoint
	err := s.db.Model(&Photo{}).
		Select("file_id, gps_latitude AS latitude, gps_longitude AS longitude").
		Where("gps_latitude IS NOT NULL AND gps_longitude IS NOT NULL AND missing = ?", false).
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// PhotosWithCaptureTime returns photos carrying a capture timestamp ordered
// ascending, for batch event detection.
func (s *Store) PhotosWithCaptureTime() ([]Photo, error) {
	var photos []Photo
	err := s.db.Where("date_taken IS NOT NULL AND missing = ?", false).
		Order("date_taken ASC").
		Find(&photos).Error
	return photos, err
}

// Tags lists all tags with usage counts.
type TagCount struct {
	TagID uint   `json:"tag_id"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

func (s *Store) Tags() ([]TagCount, error) {
	var rows []TagCount
	err := s.db.Model(&Tag{}).
		Select("tags.tag_id, tags.label, COUNT(photo_tags.file_id) AS count").
		Joins("LEFT JOIN photo_tags ON photo_tags.tag_id = tags.tag_id").
		Group("tags.tag_id").
		Order("count DESC").
		Scan(&rows).Error
	return rows, err
}

// CaptionFor returns the caption row for a photo, or ErrNotFound.
func (s *Store) CaptionFor(fileID string) (*Caption, error) {
	var c Caption
	err := s.db.First(&c, "file_id = ?", fileID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// TagsFor returns a photo's tag labels.
func (s *Store) TagsFor(fileID string) ([]string, error) {
	var labels []string
	err := s.db.Model(&PhotoTag{}).
		Select("tags.label").
		Joins("JOIN tags ON tags.tag_id = photo_tags.tag_id").
		Where("photo_tags.file_id = ?", fileID).
		Order("tags.label").
		Scan(&labels).Error
	return labels, err
}

// FacesFor returns a photo's face rows.
func (s *Store) FacesFor(fileID string) ([]Face, error) {
	var faces []Face
	err := s.db.Where("file_id = ?", fileID).Order("face_id").Find(&faces).Error
	return faces, err
}
