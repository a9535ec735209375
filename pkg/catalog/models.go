package catalog

import (
	"time"
)

// StageStatus is the work-ledger state for one (photo, stage) pair.
type StageStatus string

const (
	// StatusPending means the stage has not run (or was interrupted).
	StatusPending StageStatus = "pending"
	// StatusInFlight means a worker is currently executing the stage.
	StatusInFlight StageStatus = "in_flight"
	// StatusDone is terminal success.
	StatusDone StageStatus = "done"
	// StatusFailed is recorded after the attempt limit is exhausted.
	StatusFailed StageStatus = "failed"
	// StatusSkipped means the stage cannot or need not run for this photo
	// (bad pixels, missing GPS, disabled endpoint). Terminal.
	StatusSkipped StageStatus = "skipped"
)

// Terminal reports whether the status will not change without a
// stage-version bump or a clear-index.
func (s StageStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSkipped
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Photo{},
		&PhotoPath{},
		&PerceptualHash{},
		&DuplicateGroup{},
		&DuplicateMember{},
		&Face{},
		&Person{},
		&Tag{},
		&PhotoTag{},
		&Caption{},
		&Event{},
		&EventPhoto{},
		&WorkLedger{},
		&ScanRun{},
	}
}

// Photo is the primary catalog entity. The primary key is the blake3 content
// hash of the file bytes, so two files with identical content share one row.
// FilePath is the primary path relative to the photo root; all known paths
// are tracked in PhotoPath.
type Photo struct {
	FileID       string     `gorm:"primaryKey;size:64" json:"file_id"`
	FilePath     string     `gorm:"not null;index" json:"file_path"`
	FileName     string     `gorm:"not null" json:"file_name"`
	FileSize     int64      `gorm:"not null;index" json:"file_size"`
	FileModified time.Time  `json:"file_modified"`
	MimeType     string     `gorm:"size:64" json:"mime_type,omitempty"`
	Width        *int       `json:"width,omitempty"`
	Height       *int       `json:"height,omitempty"`
	Missing      bool       `gorm:"default:false" json:"missing"`

	// EXIF metadata, extracted by the exif stage.
	DateTaken    *time.Time `gorm:"index" json:"date_taken,omitempty"`
	CameraMake   string     `gorm:"size:100" json:"camera_make,omitempty"`
	CameraModel  string     `gorm:"size:100" json:"camera_model,omitempty"`
	LensModel    string     `gorm:"size:100" json:"lens_model,omitempty"`
	FocalLength  *float64   `json:"focal_length,omitempty"`
	Aperture     *float64   `json:"aperture,omitempty"`
	ShutterSpeed string     `gorm:"size:20" json:"shutter_speed,omitempty"`
	ISO          *int       `json:"iso,omitempty"`
	Orientation  *int       `json:"orientation,omitempty"`

	// GPS and reverse-geocoded location.
	GPSLatitude     *float64 `json:"gps_latitude,omitempty"`
	GPSLongitude    *float64 `json:"gps_longitude,omitempty"`
	GPSAltitude     *float64 `json:"gps_altitude,omitempty"`
	LocationCountry string   `gorm:"size:100;index:idx_photos_location" json:"location_country,omitempty"`
	LocationCity    string   `gorm:"size:200;index:idx_photos_location" json:"location_city,omitempty"`
	LocationAddress string   `json:"location_address,omitempty"`

	// Live Photo / Motion Photo.
	LivePhotoVideo string `json:"live_photo_video,omitempty"`
	MotionPhoto    bool   `gorm:"default:false" json:"motion_photo"`

	// Thumbnail bookkeeping; sizes present as comma-joined list.
	ThumbnailSizes string `gorm:"size:64" json:"thumbnail_sizes,omitempty"`

	// User data.
	IsFavorite bool `gorm:"default:false" json:"is_favorite"`

	IndexedAt time.Time `gorm:"autoCreateTime" json:"indexed_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Photo) TableName() string { return "photos" }

// PhotoPath tracks every filesystem path where a photo's content was seen.
// Handles duplicates and moved files without re-hashing.
type PhotoPath struct {
	FileID   string `gorm:"primaryKey;size:64" json:"file_id"`
	FilePath string `gorm:"primaryKey" json:"file_path"`
}

func (PhotoPath) TableName() string { return "photo_paths" }

// PerceptualHash stores the three 64-bit fingerprints for near-duplicate
// grouping, hex-encoded.
type PerceptualHash struct {
	FileID string `gorm:"primaryKey;size:64" json:"file_id"`
	PHash  string `gorm:"size:16" json:"phash"`
	AHash  string `gorm:"size:16" json:"ahash"`
	DHash  string `gorm:"size:16" json:"dhash"`
}

func (PerceptualHash) TableName() string { return "photo_hashes" }

// DuplicateGroup is an equivalence class of Hamming-close photos.
type DuplicateGroup struct {
	GroupID   uint      `gorm:"primaryKey;autoIncrement" json:"group_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (DuplicateGroup) TableName() string { return "duplicate_groups" }

// DuplicateMember joins photos to their duplicate group.
type DuplicateMember struct {
	GroupID uint   `gorm:"primaryKey" json:"group_id"`
	FileID  string `gorm:"primaryKey;size:64;index" json:"file_id"`
}

func (DuplicateMember) TableName() string { return "duplicate_members" }

// Face is one detection in a photo: bounding box, embedding, crop artifact.
// The embedding is a little-endian float32 vector blob.
type Face struct {
	FaceID    uint    `gorm:"primaryKey;autoIncrement" json:"face_id"`
	FileID    string  `gorm:"size:64;not null;index" json:"file_id"`
	BboxX     int     `json:"bbox_x"`
	BboxY     int     `json:"bbox_y"`
	BboxW     int     `json:"bbox_w"`
	BboxH     int     `json:"bbox_h"`
	Embedding []byte  `json:"-"`
	PersonID  *uint   `gorm:"index" json:"person_id,omitempty"`
	ThumbPath string  `json:"thumb_path,omitempty"`
}

func (Face) TableName() string { return "faces" }

// Person is a cluster of faces. Name is user-editable.
type Person struct {
	PersonID           uint      `gorm:"primaryKey;autoIncrement" json:"person_id"`
	Name               string    `gorm:"size:200" json:"name,omitempty"`
	PhotoCount         int       `gorm:"default:0" json:"photo_count"`
	RepresentativeFace *uint     `json:"representative_face,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Person) TableName() string { return "persons" }

// Tag is an AI-assigned label.
type Tag struct {
	TagID uint   `gorm:"primaryKey;autoIncrement" json:"tag_id"`
	Label string `gorm:"uniqueIndex;size:100;not null" json:"label"`
}

func (Tag) TableName() string { return "tags" }

// PhotoTag joins photos and tags.
type PhotoTag struct {
	FileID string `gorm:"primaryKey;size:64" json:"file_id"`
	TagID  uint   `gorm:"primaryKey;index" json:"tag_id"`
}

func (PhotoTag) TableName() string { return "photo_tags" }

// Caption holds the AI-generated description for a photo.
type Caption struct {
	FileID    string    `gorm:"primaryKey;size:64" json:"file_id"`
	Text      string    `json:"text"`
	Model     string    `gorm:"size:100" json:"model,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Caption) TableName() string { return "captions" }

// Event is a time-and-location cluster of photos.
type Event struct {
	EventID    uint       `gorm:"primaryKey;autoIncrement" json:"event_id"`
	Name       string     `gorm:"size:300" json:"name"`
	StartTime  time.Time  `gorm:"index" json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	City       string     `gorm:"size:200" json:"city,omitempty"`
	Country    string     `gorm:"size:100" json:"country,omitempty"`
	CoverFile  string     `gorm:"size:64" json:"cover_file,omitempty"`
	PhotoCount int        `gorm:"default:0" json:"photo_count"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Event) TableName() string { return "events" }

// EventPhoto joins events and photos.
type EventPhoto struct {
	EventID uint   `gorm:"primaryKey" json:"event_id"`
	FileID  string `gorm:"primaryKey;size:64;index" json:"file_id"`
}

func (EventPhoto) TableName() string { return "event_photos" }

// WorkLedger is the per-(photo, stage) status row. It is the single source
// of truth for "already done": a stage executes iff its row is absent,
// pending, or failed with attempts remaining. StageVersion invalidates rows
// when a stage's algorithm changes.
type WorkLedger struct {
	FileID       string      `gorm:"primaryKey;size:64" json:"file_id"`
	Stage        string      `gorm:"primaryKey;size:32" json:"stage"`
	Status       StageStatus `gorm:"size:16;not null;index" json:"status"`
	StageVersion int         `gorm:"default:1" json:"stage_version"`
	Attempts     int         `gorm:"default:0" json:"attempts"`
	LastError    string      `json:"last_error,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WorkLedger) TableName() string { return "work_ledger" }

// ScanRun records one user-initiated walk of the photo root.
type ScanRun struct {
	RunID      string     `gorm:"primaryKey;size:36" json:"run_id"`
	StartedAt  time.Time  `gorm:"autoCreateTime" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Cancelled  bool       `gorm:"default:false" json:"cancelled"`
	Discovered int        `gorm:"default:0" json:"discovered"`
	NewFiles   int        `gorm:"default:0" json:"new_files"`
	Hashed     int        `gorm:"default:0" json:"hashed"`
	Errors     int        `gorm:"default:0" json:"errors"`
}

func (ScanRun) TableName() string { return "scan_runs" }
