package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mbianchi/photarc/internal/logger"
)

// Watcher observes the photo root and requests a scan after filesystem
// activity settles. Events are coalesced over a debounce interval so a bulk
// import triggers one scan, not thousands.
type Watcher struct {
	root     string
	debounce time.Duration
	notify   *fsnotify.Watcher
	trigger  chan struct{}
}

// NewWatcher starts watching root and all its current subdirectories.
// debounce is the quiet period required before a scan is requested.
func NewWatcher(root string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 30 * time.Second
	}
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		notify:   notify,
		trigger:  make(chan struct{}, 1),
	}
	if err := w.addRecursive(root); err != nil {
		notify.Close()
		return nil, err
	}
	return w, nil
}

// Triggers returns the channel that fires when a scan should run.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.trigger
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.notify.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.notify.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			// New directories must be watched before anything lands in them.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						logger.Warn("failed to watch new directory",
							"path", event.Name, "error", err)
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			select {
			case w.trigger <- struct{}{}:
				logger.Debug("watcher requested scan", "root", w.root)
			default:
				// A scan request is already pending.
			}

		case err, ok := <-w.notify.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// relevant filters events down to ones that can change the library: writes,
// creates, removes, and renames of supported files or directories.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if skipDir(name) {
		return false
	}
	// Directory events carry no extension; let them through so renames of
	// whole folders trigger rescans.
	if filepath.Ext(name) == "" {
		return true
	}
	return IsSupported(name)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.notify.Add(path)
	})
}
