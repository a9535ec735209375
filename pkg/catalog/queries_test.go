package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedPhoto inserts a photo with a capture time and optional location.
func seedPhoto(t *testing.T, s *Store, id, path string, taken time.Time, country, city string) {
	t.Helper()
	hashes := 0
	_, err := s.UpsertFile(path, 100, time.Now(), countingHash(id, &hashes))
	require.NoError(t, err)
	updates := map[string]any{"date_taken": taken}
	if country != "" {
		updates["location_country"] = country
		updates["location_city"] = city
	}
	require.NoError(t, s.db.Model(&Photo{}).Where("file_id = ?", id).Updates(updates).Error)
}

func TestListPhotosPaginationAndOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	seedPhoto(t, s, "a1", "a1.jpg", base, "", "")
	seedPhoto(t, s, "a2", "a2.jpg", base.Add(time.Hour), "", "")
	seedPhoto(t, s, "a3", "a3.jpg", base.Add(2*time.Hour), "", "")

	page, err := s.ListPhotos(PhotoFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Photos, 2)
	assert.Equal(t, "a3", page.Photos[0].FileID, "newest first")

	page, err = s.ListPhotos(PhotoFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Photos, 1)
	assert.Equal(t, "a1", page.Photos[0].FileID)
}

func TestListPhotosFilters(t *testing.T) {
	s := newTestStore(t)
	paris := time.Date(2023, 5, 10, 9, 0, 0, 0, time.UTC)
	tokyo := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	seedPhoto(t, s, "p1", "trips/paris/1.jpg", paris, "France", "Paris")
	seedPhoto(t, s, "p2", "trips/paris/2.jpg", paris.Add(time.Hour), "France", "Paris")
	seedPhoto(t, s, "t1", "trips/tokyo/1.jpg", tokyo, "Japan", "Tokyo")
	require.NoError(t, s.SetFavorite("t1", true))

	page, err := s.ListPhotos(PhotoFilter{Directory: "trips/paris"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = s.ListPhotos(PhotoFilter{Year: 2024}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, "t1", page.Photos[0].FileID)

	page, err = s.ListPhotos(PhotoFilter{Country: "France", City: "Paris"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = s.ListPhotos(PhotoFilter{Favorite: true}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestListPhotosExcludesMissing(t *testing.T) {
	s := newTestStore(t)
	seedPhoto(t, s, "a1", "a1.jpg", time.Now(), "", "")
	require.NoError(t, s.db.Model(&Photo{}).Where("file_id = ?", "a1").
		Update("missing", true).Error)

	page, err := s.ListPhotos(PhotoFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestSearchMatchesTagsCaptionsAndPlaces(t *testing.T) {
	s := newTestStore(t)
	taken := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	seedPhoto(t, s, "b1", "x/IMG_0001.jpg", taken, "Italy", "Rome")
	seedPhoto(t, s, "b2", "x/IMG_0002.jpg", taken, "", "")
	require.NoError(t, s.WriteTags("b2", []string{"sunset"}, 1))
	require.NoError(t, s.WriteCaption("b1", "The Colosseum at dusk", "test", 1))

	page, err := s.ListPhotos(PhotoFilter{Search: "rome"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "b1", page.Photos[0].FileID)

	page, err = s.ListPhotos(PhotoFilter{Search: "sunset"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "b2", page.Photos[0].FileID)

	page, err = s.ListPhotos(PhotoFilter{Search: "colosseum"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestTimelineAndYears(t *testing.T) {
	s := newTestStore(t)
	seedPhoto(t, s, "y1", "1.jpg", time.Date(2023, 12, 31, 10, 0, 0, 0, time.UTC), "", "")
	seedPhoto(t, s, "y2", "2.jpg", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), "", "")
	seedPhoto(t, s, "y3", "3.jpg", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), "", "")

	groups, err := s.Timeline("month")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, 2024, groups[0].Year)
	assert.Equal(t, 1, groups[0].Month)
	assert.Equal(t, int64(2), groups[0].Count)

	years, err := s.Years()
	require.NoError(t, err)
	require.Len(t, years, 2)
	assert.Equal(t, 2024, years[0].Year)
	assert.Equal(t, int64(2), years[0].Count)
}

func TestDirectoryTree(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	seedPhoto(t, s, "d1", "2024/summer/a.jpg", now, "", "")
	seedPhoto(t, s, "d2", "2024/summer/b.jpg", now, "", "")
	seedPhoto(t, s, "d3", "2024/winter/c.jpg", now, "", "")
	seedPhoto(t, s, "d4", "root.jpg", now, "", "")

	roots, err := s.DirectoryTree()
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "2024", roots[0].Name)
	assert.Equal(t, int64(3), roots[0].Count)
	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "summer", roots[0].Children[0].Name)
	assert.Equal(t, int64(2), roots[0].Children[0].Count)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	seedPhoto(t, s, "s1", "1.jpg", now, "France", "Paris")
	seedPhoto(t, s, "s2", "2.jpg", now, "", "")
	lat, lon := 48.85, 2.35
	require.NoError(t, s.db.Model(&Photo{}).Where("file_id = ?", "s1").Updates(map[string]any{
		"gps_latitude": lat, "gps_longitude": lon, "camera_model": "X100V",
	}).Error)
	require.NoError(t, s.WriteCaption("s1", "hi", "test", 1))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalPhotos)
	assert.Equal(t, int64(200), stats.TotalBytes)
	assert.Equal(t, int64(1), stats.WithGPS)
	assert.Equal(t, int64(1), stats.WithCaptions)
	assert.Equal(t, int64(1), stats.Cameras["X100V"])
}

func TestPersonsLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	seedPhoto(t, s, "f1", "1.jpg", now, "", "")
	seedPhoto(t, s, "f2", "2.jpg", now, "", "")

	ids1, err := s.WriteFaces("f1", []FaceResult{{Embedding: []byte{1}}}, 1)
	require.NoError(t, err)
	ids2, err := s.WriteFaces("f2", []FaceResult{{Embedding: []byte{2}}}, 1)
	require.NoError(t, err)

	alice, err := s.CreatePerson("Alice", ids1[0])
	require.NoError(t, err)
	bob, err := s.CreatePerson("Bob", ids2[0])
	require.NoError(t, err)
	require.NoError(t, s.AssignFaces(ids1, alice.PersonID))
	require.NoError(t, s.AssignFaces(ids2, bob.PersonID))

	persons, err := s.ListPersons()
	require.NoError(t, err)
	require.Len(t, persons, 2)

	require.NoError(t, s.MergePersons(alice.PersonID, bob.PersonID))
	persons, err = s.ListPersons()
	require.NoError(t, err)
	require.Len(t, persons, 1)
	assert.Equal(t, "Alice", persons[0].Name)
	assert.Equal(t, 2, persons[0].PhotoCount)

	page, err := s.ListPhotos(PhotoFilter{PersonID: alice.PersonID}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}

func TestEventsReplaceAndList(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC)
	seedPhoto(t, s, "e1", "1.jpg", start, "", "")
	seedPhoto(t, s, "e2", "2.jpg", start.Add(time.Hour), "", "")

	drafts := []EventDraft{{
		Name:      "Paris, Aug 1 2024",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		City:      "Paris",
		Country:   "France",
		CoverFile: "e1",
		FileIDs:   []string{"e1", "e2"},
	}}
	require.NoError(t, s.ReplaceEvents(drafts))

	events, err := s.ListEvents()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].PhotoCount)

	photos, err := s.EventPhotos(events[0].EventID)
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, "e1", photos[0].FileID, "capture order")

	// A second pass replaces rather than accumulates.
	require.NoError(t, s.ReplaceEvents(drafts))
	events, err = s.ListEvents()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDuplicateGroups(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	seedPhoto(t, s, "g1", "1.jpg", now, "", "")
	seedPhoto(t, s, "g2", "2.jpg", now, "", "")
	seedPhoto(t, s, "g3", "3.jpg", now, "", "")

	require.NoError(t, s.ReplaceDuplicateGroups([][]string{
		{"g1", "g2"},
		{"g3"}, // singleton, dropped
	}))

	sets, err := s.ListDuplicateSets()
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Len(t, sets[0].Photos, 2)
}

func TestScanRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	runID, err := s.CreateScanRun()
	require.NoError(t, err)

	active, err := s.ActiveScanRun()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, runID, active.RunID)

	require.NoError(t, s.FinishScanRun(runID, false, 10, 3, 3, 0))
	active, err = s.ActiveScanRun()
	require.NoError(t, err)
	assert.Nil(t, active)

	last, err := s.LastScanRun()
	require.NoError(t, err)
	assert.Equal(t, 10, last.Discovered)
	assert.False(t, last.Cancelled)
}

func TestAbortStaleScanRuns(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateScanRun()
	require.NoError(t, err)

	n, err := s.AbortStaleScanRuns()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	last, err := s.LastScanRun()
	require.NoError(t, err)
	assert.True(t, last.Cancelled)
	assert.NotNil(t, last.FinishedAt)
}
