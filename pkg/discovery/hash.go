package discovery

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashFile computes the hex-encoded BLAKE3 content hash of the file at
// absPath. This hash is the photo's identity everywhere in the system.
func HashFile(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", absPath, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", absPath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
