package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbianchi/photarc/pkg/artifacts"
	"github.com/mbianchi/photarc/pkg/catalog"
	"github.com/mbianchi/photarc/pkg/pipeline"
)

type testServer struct {
	store     *catalog.Store
	artifacts *artifacts.Store
	hub       *Hub
	srv       *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := catalog.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	art, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)

	root := t.TempDir()
	p := pipeline.New(pipeline.Config{PhotosRoot: root, QueueSize: 16},
		store, art, nil, nil, nil, nil, pipeline.NopNotifier{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = p.Run(ctx) }()

	hub := NewHub(nil)
	go hub.Run(ctx)

	deps := Deps{
		Store:      store,
		Artifacts:  art,
		Supervisor: pipeline.NewSupervisor(p),
		PhotosRoot: root,
		hub:        hub,
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)

	return &testServer{store: store, artifacts: art, hub: hub, srv: srv}
}

// seedPhoto inserts a catalog row directly, bypassing the pipeline.
func (ts *testServer) seedPhoto(t *testing.T, id, relPath string) {
	t.Helper()
	_, err := ts.store.UpsertFile(relPath, 1024, time.Now(),
		func() (string, error) { return id, nil })
	require.NoError(t, err)
}

// getJSON performs a GET and decodes the envelope.
func (ts *testServer) getJSON(t *testing.T, path string) (int, Response) {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.getJSON(t, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", env.Status)
}

func TestListPhotos(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPhoto(t, "f1", "2024/one.jpg")
	ts.seedPhoto(t, "f2", "2024/two.jpg")

	code, env := ts.getJSON(t, "/api/photos?page_size=10")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", env.Status)

	payload, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var page catalog.PhotoPage
	require.NoError(t, json.Unmarshal(payload, &page))
	assert.Equal(t, int64(2), page.Total)
}

func TestGetPhotoDetail(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPhoto(t, "f1", "pic.jpg")
	require.NoError(t, ts.store.WriteCaption("f1", "a sunny beach", "llava", 1))
	require.NoError(t, ts.store.WriteTags("f1", []string{"beach", "summer"}, 1))

	code, env := ts.getJSON(t, "/api/photos/f1")
	require.Equal(t, http.StatusOK, code)

	payload, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var detail photoDetail
	require.NoError(t, json.Unmarshal(payload, &detail))
	assert.Equal(t, "f1", detail.FileID)
	assert.Equal(t, []string{"beach", "summer"}, detail.Tags)
	require.NotNil(t, detail.Caption)
	assert.Equal(t, "a sunny beach", detail.Caption.Text)
}

func TestGetPhotoNotFound(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.getJSON(t, "/api/photos/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", env.Status)
}

func TestToggleFavorite(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPhoto(t, "f1", "pic.jpg")

	code, _ := ts.do(t, http.MethodPost, "/api/photos/f1/favorite", nil)
	require.Equal(t, http.StatusOK, code)

	photo, err := ts.store.GetPhoto("f1")
	require.NoError(t, err)
	assert.True(t, photo.IsFavorite)

	code, _ = ts.do(t, http.MethodPost, "/api/photos/f1/favorite", nil)
	require.Equal(t, http.StatusOK, code)
	photo, err = ts.store.GetPhoto("f1")
	require.NoError(t, err)
	assert.False(t, photo.IsFavorite)
}

func TestServeThumbnail(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPhoto(t, "f1", "pic.jpg")
	thumb := []byte("not really a jpeg but served as one")
	require.NoError(t, ts.artifacts.Write(ts.artifacts.ThumbPath("f1", 200), thumb))

	resp, err := http.Get(ts.srv.URL + "/api/photos/f1/thumbnail?size=200")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	// A size that was never rendered is a 404, not an empty body.
	resp2, err := http.Get(ts.srv.URL + "/api/photos/f1/thumbnail?size=999")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestScanStatusEmpty(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.getJSON(t, "/api/scan")
	require.Equal(t, http.StatusOK, code)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Nil(t, data["active"])
	assert.Nil(t, data["last"])
}

func TestTriggerAndStopScan(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusAccepted, code)
	data := env.Data.(map[string]any)
	assert.NotEmpty(t, data["run_id"])
	assert.Equal(t, true, data["started"])

	// The library is empty so the scan finishes almost immediately; a stop
	// afterwards reports there is nothing to stop.
	require.Eventually(t, func() bool {
		c, _ := ts.do(t, http.MethodDelete, "/api/scan", nil)
		return c == http.StatusConflict
	}, 10*time.Second, 50*time.Millisecond)
}

func TestHTTPTriggeredScanOutlivesRequest(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusAccepted, code)
	runID := env.Data.(map[string]any)["run_id"].(string)

	// The request context died when the 202 was written; the run must keep
	// going and finish on its own.
	require.Eventually(t, func() bool {
		run, err := ts.store.LastScanRun()
		return err == nil && run.RunID == runID && run.FinishedAt != nil
	}, 10*time.Second, 50*time.Millisecond)

	run, err := ts.store.LastScanRun()
	require.NoError(t, err)
	assert.False(t, run.Cancelled, "nothing stopped this scan")
}

func TestPipelineSnapshotEndpoint(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.getJSON(t, "/api/pipeline")
	require.Equal(t, http.StatusOK, code)

	payload, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(payload, &snap))
	assert.False(t, snap.Scanning)
	assert.Len(t, snap.Stages, len(pipeline.Flow))
}

func TestExifRoundTripsThroughAPI(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPhoto(t, "f1", "paris.jpg")

	taken := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	lat, lon := 48.8566, 2.3522
	require.NoError(t, ts.store.WriteExif("f1", catalog.ExifData{
		DateTaken:    &taken,
		GPSLatitude:  &lat,
		GPSLongitude: &lon,
	}, 1))

	code, env := ts.getJSON(t, "/api/photos/f1")
	require.Equal(t, http.StatusOK, code)

	payload, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var detail struct {
		DateTaken    *time.Time `json:"date_taken"`
		GPSLatitude  *float64   `json:"gps_latitude"`
		GPSLongitude *float64   `json:"gps_longitude"`
	}
	require.NoError(t, json.Unmarshal(payload, &detail))
	require.NotNil(t, detail.DateTaken)
	assert.True(t, detail.DateTaken.Equal(taken))
	require.NotNil(t, detail.GPSLatitude)
	assert.InDelta(t, lat, *detail.GPSLatitude, 1e-6)
	require.NotNil(t, detail.GPSLongitude)
	assert.InDelta(t, lon, *detail.GPSLongitude, 1e-6)
}

func TestPipelineFlowEndpoint(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.getJSON(t, "/api/pipeline/flow")
	require.Equal(t, http.StatusOK, code)

	payload, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var flow struct {
		Entry  []string `json:"entry"`
		Stages []struct {
			Name       string   `json:"name"`
			Version    int      `json:"version"`
			Downstream []string `json:"downstream"`
		} `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(payload, &flow))
	require.Len(t, flow.Stages, len(pipeline.Flow))
	require.Len(t, flow.Entry, len(pipeline.Entry))
	assert.Contains(t, flow.Entry, "exif")

	byName := make(map[string][]string)
	for _, s := range flow.Stages {
		byName[s.Name] = s.Downstream
	}
	assert.Equal(t, []string{"geocode"}, byName["exif"])
	assert.Empty(t, byName["caption"])
}

func TestClearIndex(t *testing.T) {
	ts := newTestServer(t)
	ts.seedPhoto(t, "f1", "pic.jpg")

	code, _ := ts.do(t, http.MethodPost, "/api/index/clear", nil)
	require.Equal(t, http.StatusOK, code)

	_, err := ts.store.GetPhoto("f1")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRenamePersonValidation(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, http.MethodPatch, "/api/persons/abc", map[string]string{"name": "Ada"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodPatch, "/api/persons/42", map[string]string{"name": "Ada"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSearchRequiresQuery(t *testing.T) {
	ts := newTestServer(t)
	code, _ := ts.getJSON(t, "/api/search")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWebsocketBroadcastsStatusSnapshots(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a moment to register the client before publishing.
	time.Sleep(100 * time.Millisecond)
	ts.hub.Publish(pipeline.Event{Type: pipeline.EventScanStarted, RunID: "r1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	// Activity produces a status snapshot frame, the same shape the HTTP
	// pipeline endpoint serves.
	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(msg, &snap))
	assert.Len(t, snap.Stages, len(pipeline.Flow))
	assert.False(t, snap.Scanning)
}

func TestTimelineRejectsBadGranularity(t *testing.T) {
	ts := newTestServer(t)
	code, _ := ts.getJSON(t, fmt.Sprintf("/api/timeline?granularity=%s", "week"))
	assert.Equal(t, http.StatusBadRequest, code)
}
