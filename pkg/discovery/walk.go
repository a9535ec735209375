// Package discovery finds photos on disk: the recursive walk that feeds
// scans, content hashing for identity, motion-photo probing, and the
// filesystem watcher that schedules incremental scans.
package discovery

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
)

// supportedExtensions are the image types the indexer ingests.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".heic": true,
	".heif": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".gif":  true,
}

// IsSupported reports whether path has a supported image extension.
func IsSupported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// FoundFile is one photo candidate produced by the walk.
type FoundFile struct {
	// RelPath is the path relative to the walk root, slash-separated.
	RelPath string
	// AbsPath is the absolute on-disk path.
	AbsPath string
}

// skipDir reports whether a directory should be pruned from the walk.
// Hidden directories and NAS metadata trees never hold user photos.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "@eaDir", "#recycle", "lost+found":
		return true
	}
	return false
}

// Walk streams every supported image under root to fn in lexical order.
// Returning an error from fn aborts the walk. Context cancellation aborts
// between entries.
func Walk(ctx context.Context, root string, fn func(FoundFile) error) error {
	return godirwalk.Walk(root, &godirwalk.Options{
		Unsorted:            false,
		FollowSymbolicLinks: false,
		Callback: func(absPath string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := de.Name()
			if de.IsDir() {
				if absPath != root && skipDir(name) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") || !IsSupported(name) {
				return nil
			}
			rel, err := filepath.Rel(root, absPath)
			if err != nil {
				return err
			}
			return fn(FoundFile{
				RelPath: filepath.ToSlash(rel),
				AbsPath: absPath,
			})
		},
		ErrorCallback: func(_ string, _ error) godirwalk.ErrorAction {
			// Unreadable subtrees are logged by the caller via scan error
			// counters; keep walking the rest of the library.
			return godirwalk.SkipNode
		},
	})
}
