package artifacts

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPathSharding(t *testing.T) {
	s := newTestStore(t)

	p := s.ThumbPath("abcdef", 600)
	assert.Equal(t, filepath.Join(s.Root(), "thumbs", "ab", "abcdef_600.jpg"), p)

	assert.Contains(t, s.FacePath("abcdef", 7), filepath.Join("faces", "ab", "abcdef_7.jpg"))
	assert.Contains(t, s.MotionPath("abcdef"), filepath.Join("motion", "ab", "abcdef.mp4"))
}

func TestWriteAndRead(t *testing.T) {
	s := newTestStore(t)
	path := s.ThumbPath("abcdef", 200)

	require.NoError(t, s.Write(path, []byte("thumb bytes")))
	assert.True(t, s.Exists(path))

	r, err := s.Open(path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "thumb bytes", string(data))
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	path := s.ThumbPath("abcdef", 200)
	require.NoError(t, s.Write(path, []byte("x")))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abcdef_200.jpg", entries[0].Name())
}

func TestOpenMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Open(s.ThumbPath("nope", 200))
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestRemoveForPhoto(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write(s.ThumbPath("abcdef", 200), []byte("a")))
	require.NoError(t, s.Write(s.ThumbPath("abcdef", 600), []byte("b")))
	require.NoError(t, s.Write(s.FacePath("abcdef", 1), []byte("c")))
	require.NoError(t, s.Write(s.ThumbPath("abxyz", 200), []byte("keep")))

	require.NoError(t, s.RemoveForPhoto("abcdef"))

	assert.False(t, s.Exists(s.ThumbPath("abcdef", 200)))
	assert.False(t, s.Exists(s.ThumbPath("abcdef", 600)))
	assert.False(t, s.Exists(s.FacePath("abcdef", 1)))
	assert.True(t, s.Exists(s.ThumbPath("abxyz", 200)))
}

func TestClearAndStats(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write(s.ThumbPath("abcdef", 200), []byte("abc")))
	require.NoError(t, s.Write(s.MotionPath("abcdef"), []byte("defg")))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Count)
	assert.Equal(t, int64(7), st.Bytes)

	require.NoError(t, s.Clear())
	st, err = s.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Count)

	// Roots are recreated so writers need no special casing.
	require.NoError(t, s.Write(s.ThumbPath("abcdef", 200), []byte("again")))
}
