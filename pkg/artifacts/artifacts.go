// Package artifacts manages derived files on disk: thumbnails, face crops,
// and extracted motion videos. Artifacts live under the data directory,
// sharded by the first two characters of the owning photo's content hash so
// no single directory grows unbounded.
//
// All writes are atomic: content goes to a temp file in the destination
// directory and is renamed into place, so readers never observe partial
// artifacts and a crash leaves at most a stray temp file.
package artifacts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mbianchi/photarc/internal/logger"
)

// ErrArtifactNotFound is returned when a requested artifact does not exist.
var ErrArtifactNotFound = errors.New("artifacts: not found")

// Store is a sharded artifact tree rooted at a data directory.
type Store struct {
	root string
}

// NewStore creates the artifact root directories under dataDir.
func NewStore(dataDir string) (*Store, error) {
	root := filepath.Join(dataDir, "artifacts")
	for _, sub := range []string{"thumbs", "faces", "motion"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", sub, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the artifact root directory.
func (s *Store) Root() string {
	return s.root
}

func shard(fileID string) string {
	if len(fileID) < 2 {
		return "00"
	}
	return fileID[:2]
}

// ThumbPath returns the on-disk path for a photo's thumbnail at size.
func (s *Store) ThumbPath(fileID string, size int) string {
	return filepath.Join(s.root, "thumbs", shard(fileID),
		fmt.Sprintf("%s_%d.jpg", fileID, size))
}

// FacePath returns the on-disk path for a face crop.
func (s *Store) FacePath(fileID string, faceID uint) string {
	return filepath.Join(s.root, "faces", shard(fileID),
		fmt.Sprintf("%s_%d.jpg", fileID, faceID))
}

// MotionPath returns the on-disk path for an extracted motion video.
func (s *Store) MotionPath(fileID string) string {
	return filepath.Join(s.root, "motion", shard(fileID), fileID+".mp4")
}

// Write atomically stores data at path (which must come from one of the
// path helpers above).
func (s *Store) Write(path string, data []byte) error {
	return s.WriteFrom(path, bytes.NewReader(data))
}

// WriteFrom atomically stores the contents of r at path.
func (s *Store) WriteFrom(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best effort: the temp file only survives an error path.
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to publish artifact: %w", err)
	}
	return nil
}

// Open returns a reader for the artifact at path.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether the artifact at path is present.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes a single artifact. Missing artifacts are not an error.
func (s *Store) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveForPhoto deletes every artifact owned by fileID across all
// artifact kinds. Thumbnail sizes are discovered by globbing the shard.
func (s *Store) RemoveForPhoto(fileID string) error {
	patterns := []string{
		filepath.Join(s.root, "thumbs", shard(fileID), fileID+"_*.jpg"),
		filepath.Join(s.root, "faces", shard(fileID), fileID+"_*.jpg"),
		filepath.Join(s.root, "motion", shard(fileID), fileID+".mp4"),
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := s.Remove(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clear wipes the entire artifact tree and recreates the roots. Used by the
// clear-index operation.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to clear artifacts: %w", err)
	}
	for _, sub := range []string{"thumbs", "faces", "motion"} {
		if err := os.MkdirAll(filepath.Join(s.root, sub), 0o755); err != nil {
			return fmt.Errorf("failed to recreate artifact directory %s: %w", sub, err)
		}
	}
	logger.Info("artifact store cleared", "root", s.root)
	return nil
}

// Stats walks the artifact tree and returns item count and total bytes.
type Stats struct {
	Count int64 `json:"count"`
	Bytes int64 `json:"bytes"`
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		st.Count++
		st.Bytes += info.Size()
		return nil
	})
	return st, err
}
