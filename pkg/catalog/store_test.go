package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// countingHash returns a hashFn that yields id and counts invocations.
func countingHash(id string, n *int) func() (string, error) {
	return func() (string, error) {
		*n++
		return id, nil
	}
}

func TestUpsertFileCreatesPhoto(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Now().Truncate(time.Second)

	hashes := 0
	res, err := s.UpsertFile("2024/beach.jpg", 1234, mtime, countingHash("aaaa", &hashes))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Hashed)
	assert.Equal(t, "aaaa", res.FileID)
	assert.Equal(t, 1, hashes)

	photo, err := s.GetPhoto("aaaa")
	require.NoError(t, err)
	assert.Equal(t, "2024/beach.jpg", photo.FilePath)
	assert.Equal(t, "beach.jpg", photo.FileName)
	assert.Equal(t, int64(1234), photo.FileSize)
	assert.Equal(t, "image/jpeg", photo.MimeType)
}

func TestUpsertFileUnchangedSkipsHashing(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Now().Truncate(time.Second)

	hashes := 0
	_, err := s.UpsertFile("a.jpg", 100, mtime, countingHash("aaaa", &hashes))
	require.NoError(t, err)
	require.Equal(t, 1, hashes)

	// Same path, size, and an mtime within the one-second tolerance.
	res, err := s.UpsertFile("a.jpg", 100, mtime.Add(400*time.Millisecond), countingHash("aaaa", &hashes))
	require.NoError(t, err)
	assert.False(t, res.Hashed)
	assert.False(t, res.Created)
	assert.Equal(t, "aaaa", res.FileID)
	assert.Equal(t, 1, hashes, "unchanged file must not be re-hashed")
}

func TestUpsertFileChangedMtimeRehashes(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Now().Truncate(time.Second)

	hashes := 0
	_, err := s.UpsertFile("a.jpg", 100, mtime, countingHash("aaaa", &hashes))
	require.NoError(t, err)

	res, err := s.UpsertFile("a.jpg", 100, mtime.Add(5*time.Second), countingHash("aaaa", &hashes))
	require.NoError(t, err)
	assert.True(t, res.Hashed)
	assert.False(t, res.Created, "same content keeps the same row")
	assert.Equal(t, 2, hashes)

	// The stored triple was refreshed, so the next probe hits again.
	res, err = s.UpsertFile("a.jpg", 100, mtime.Add(5*time.Second), countingHash("aaaa", &hashes))
	require.NoError(t, err)
	assert.False(t, res.Hashed)
	assert.Equal(t, 2, hashes)
}

func TestUpsertFileDuplicateContentSharesRow(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Now().Truncate(time.Second)

	hashes := 0
	res1, err := s.UpsertFile("a.jpg", 100, mtime, countingHash("aaaa", &hashes))
	require.NoError(t, err)
	res2, err := s.UpsertFile("copy/a.jpg", 100, mtime, countingHash("aaaa", &hashes))
	require.NoError(t, err)

	assert.Equal(t, res1.FileID, res2.FileID)
	assert.True(t, res1.Created)
	assert.False(t, res2.Created)

	var paths []PhotoPath
	require.NoError(t, s.db.Where("file_id = ?", "aaaa").Find(&paths).Error)
	assert.Len(t, paths, 2)
}

func TestUpsertFileHealsMissingPrimaryPath(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Now().Truncate(time.Second)

	hashes := 0
	_, err := s.UpsertFile("old/a.jpg", 100, mtime, countingHash("aaaa", &hashes))
	require.NoError(t, err)
	require.NoError(t, s.db.Model(&Photo{}).Where("file_id = ?", "aaaa").
		Update("missing", true).Error)

	// Content reappears under a new path: the row heals and adopts it.
	_, err = s.UpsertFile("new/a.jpg", 100, mtime, countingHash("aaaa", &hashes))
	require.NoError(t, err)

	photo, err := s.GetPhoto("aaaa")
	require.NoError(t, err)
	assert.False(t, photo.Missing)
	assert.Equal(t, "new/a.jpg", photo.FilePath)
}

func TestReconcileMarksMissing(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "here.jpg"), []byte("x"), 0o644))

	mtime := time.Now().Truncate(time.Second)
	hashes := 0
	_, err := s.UpsertFile("sub/here.jpg", 1, mtime, countingHash("aaaa", &hashes))
	require.NoError(t, err)
	_, err = s.UpsertFile("sub/gone.jpg", 1, mtime, countingHash("bbbb", &hashes))
	require.NoError(t, err)

	marked, err := s.Reconcile(root)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	gone, err := s.GetPhoto("bbbb")
	require.NoError(t, err)
	assert.True(t, gone.Missing)
	here, err := s.GetPhoto("aaaa")
	require.NoError(t, err)
	assert.False(t, here.Missing)

	// Reconcile without hashing touched nothing else.
	assert.Equal(t, 2, hashes)
}

func TestStartupSweepDemotesInFlight(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.MarkStageInFlight("aaaa", "exif", 1))
	require.NoError(t, s.MarkStage("bbbb", "exif", StatusDone, ""))

	n, err := s.StartupSweep()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	row, err := s.LedgerRow("aaaa", "exif")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, row.Status)

	row, err = s.LedgerRow("bbbb", "exif")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, row.Status)
}

func TestClearIndexTruncatesEverything(t *testing.T) {
	s := newTestStore(t)
	mtime := time.Now().Truncate(time.Second)

	hashes := 0
	_, err := s.UpsertFile("a.jpg", 100, mtime, countingHash("aaaa", &hashes))
	require.NoError(t, err)
	require.NoError(t, s.WritePhash("aaaa", "00", "00", "00", 1))
	require.NoError(t, s.WriteTags("aaaa", []string{"beach"}, 1))
	require.NoError(t, s.WriteCaption("aaaa", "a beach", "test", 1))

	require.NoError(t, s.ClearIndex())

	_, err = s.GetPhoto("aaaa")
	assert.ErrorIs(t, err, ErrNotFound)
	for _, model := range AllModels() {
		var n int64
		require.NoError(t, s.db.Model(model).Count(&n).Error)
		assert.Zero(t, n, fmt.Sprintf("%T not cleared", model))
	}
}

func TestFavoriteToggle(t *testing.T) {
	s := newTestStore(t)
	hashes := 0
	_, err := s.UpsertFile("a.jpg", 1, time.Now(), countingHash("aaaa", &hashes))
	require.NoError(t, err)

	fav, err := s.ToggleFavorite("aaaa")
	require.NoError(t, err)
	assert.True(t, fav)
	fav, err = s.ToggleFavorite("aaaa")
	require.NoError(t, err)
	assert.False(t, fav)

	assert.ErrorIs(t, s.SetFavorite("nope", true), ErrNotFound)
}
