package discovery

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Google and Samsung motion photos append a full MP4 after the JPEG image
// data. The video starts with a standard MP4 "ftyp" box a few bytes in, so
// scanning the file tail for the box signature finds the embed without
// parsing vendor XMP.

// motionScanWindow bounds how much of the file tail is searched. Embedded
// videos are several megabytes; the ftyp box sits at their very start.
const motionScanWindow = 32 << 20

// A bare "ftyp" match is not enough: four arbitrary compressed JPEG bytes
// can spell it. The box must carry a known video brand right after.
var ftypSignatures = [][]byte{
	[]byte("ftypmp4"),
	[]byte("ftypmp42"),
	[]byte("ftypisom"),
	[]byte("ftypavc1"),
}

// ProbeMotionPhoto scans the JPEG at absPath for an embedded MP4 and
// returns the byte offset where the video starts, or -1 when absent.
func ProbeMotionPhoto(absPath string) (int64, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return -1, fmt.Errorf("failed to open %s: %w", absPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return -1, err
	}

	start := int64(0)
	if info.Size() > motionScanWindow {
		start = info.Size() - motionScanWindow
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return -1, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return -1, fmt.Errorf("failed to read %s: %w", absPath, err)
	}

	// The ftyp box is preceded by its 4-byte size, so the video container
	// begins 4 bytes before the signature.
	idx := -1
	for _, sig := range ftypSignatures {
		if i := bytes.Index(data, sig); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if idx < 4 {
		return -1, nil
	}
	return start + int64(idx) - 4, nil
}

// ExtractMotionVideo copies the embedded MP4 starting at offset into w.
func ExtractMotionVideo(absPath string, offset int64, w io.Writer) error {
	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", absPath, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to extract motion video: %w", err)
	}
	return nil
}

// FindLiveVideo looks for an Apple Live Photo sidecar: a video file sharing
// the image's basename. Returns the sidecar's path relative to root, or ""
// when there is none.
func FindLiveVideo(root, relPath string) string {
	base := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	for _, ext := range []string{".mov", ".MOV", ".mp4", ".MP4"} {
		candidate := base + ext
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(candidate))); err == nil {
			return candidate
		}
	}
	return ""
}
