package jewelgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

// addInboxDirs registers the inbox and its type subfolders with the watcher.
// Re-adding an already watched directory is a no-op, so this is safe to call
// again when folders appear.
func addInboxDirs(w *fsnotify.Watcher, inboxDir string) (int, error) {
	dirs := []string{inboxDir}
	entries, err := os.ReadDir(inboxDir)
	if err != nil {
		return 0, fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && e.Name()[0] != '.' {
			dirs = append(dirs, filepath.Join(inboxDir, e.Name()))
		}
	}

	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return 0, fmt.Errorf("watch %s: %w", d, err)
		}
	}
	return len(dirs), nil
}

// Watch monitors the inbox and its type subfolders, invoking onChange after
// create/write/rename/remove events. Type folders created while watching are
// picked up too. onChange runs in the event loop, so a long batch naturally
// coalesces the events that arrive meanwhile. Returns when ctx is cancelled.
func Watch(ctx context.Context, inboxDir string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	n, err := addInboxDirs(w, inboxDir)
	if err != nil {
		return err
	}
	klog.Infof("watching %d dirs ...", n)

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// a new type folder must be watched before onChange runs,
				// or drops into it go unseen
				if _, err := addInboxDirs(w, inboxDir); err != nil {
					klog.Warningf("rescan inbox dirs: %v", err)
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				klog.V(1).Infof("event: %s", event)
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Errorf("watch error: %v", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
