package vision

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestJPEG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	path := filepath.Join(t.TempDir(), "test.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())
	return path
}

func fakeOllama(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.NotEmpty(t, req.Images)
		json.NewEncoder(w).Encode(generateResponse{Response: response})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDisabledClient(t *testing.T) {
	c := New(Config{URL: ""})
	assert.False(t, c.Enabled())

	_, err := c.Caption(context.Background(), "whatever.jpg")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = c.Tags(context.Background(), "whatever.jpg")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestCaption(t *testing.T) {
	srv := fakeOllama(t, "  A dog on a beach at sunset.\n")
	c := New(Config{URL: srv.URL, Model: "test", RequestsPerMinute: 600})

	caption, err := c.Caption(context.Background(), writeTestJPEG(t, 64, 48))
	require.NoError(t, err)
	assert.Equal(t, "A dog on a beach at sunset.", caption)
}

func TestTagsParsing(t *testing.T) {
	srv := fakeOllama(t, "Dog, beach , SUNSET, , \"ocean\".")
	c := New(Config{URL: srv.URL, Model: "test", RequestsPerMinute: 600})

	tags, err := c.Tags(context.Background(), writeTestJPEG(t, 64, 48))
	require.NoError(t, err)
	assert.Equal(t, []string{"dog", "beach", "sunset", "ocean"}, tags)
}

func TestLargeImageIsDownsized(t *testing.T) {
	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Images, 1)
		gotLen = len(req.Images[0])
		json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Model: "test", RequestsPerMinute: 600})
	_, err := c.Caption(context.Background(), writeTestJPEG(t, 2400, 1600))
	require.NoError(t, err)

	// A 1024px-bounded JPEG of a blank image stays well under a megabyte
	// of base64. The unresized original would be much larger.
	assert.Less(t, gotLen, 1<<20)
}

func TestServerErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Model: "test", RequestsPerMinute: 600})
	_, err := c.Caption(context.Background(), writeTestJPEG(t, 32, 32))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.NotErrorIs(t, err, ErrUnavailable, "HTTP errors do not trigger cool-down")
}

func TestConnectionFailureTriggersCooldown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := New(Config{URL: srv.URL, Model: "test", RequestsPerMinute: 600})
	img := writeTestJPEG(t, 32, 32)

	_, err := c.Caption(context.Background(), img)
	assert.ErrorIs(t, err, ErrUnavailable)

	// Second call short-circuits without dialing.
	_, err = c.Caption(context.Background(), img)
	assert.ErrorIs(t, err, ErrUnavailable)
}
