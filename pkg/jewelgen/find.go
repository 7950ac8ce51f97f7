package jewelgen

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

// InboxFile is one pending input image with its declared jewelry type.
type InboxFile struct {
	Path string
	Type string
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// ScanInbox walks the inbox and classifies images by subfolder name. Each
// first-level subfolder is a jewelry type; images directly in the inbox root
// are ignored here (see ScanFlat for single-type inboxes).
func ScanInbox(inboxDir string) (map[string][]InboxFile, error) {
	byType := map[string][]InboxFile{}

	fi, err := os.Stat(inboxDir)
	if err != nil || !fi.IsDir() {
		klog.Warningf("inbox directory not found: %s", inboxDir)
		return byType, nil
	}

	err = godirwalk.Walk(inboxDir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			base := filepath.Base(path)
			if base[0] == '.' && path != inboxDir {
				if de.IsDir() {
					return filepath.SkipDir
				}
				return godirwalk.SkipThis
			}
			if de.IsDir() || !IsImage(path) {
				return nil
			}

			rel, err := filepath.Rel(inboxDir, path)
			if err != nil {
				return err
			}
			parts := strings.Split(rel, string(filepath.Separator))
			if len(parts) < 2 {
				// image sitting in the inbox root, no type folder
				return nil
			}
			t := strings.ToLower(parts[0])
			byType[t] = append(byType[t], InboxFile{Path: path, Type: t})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", inboxDir, err)
	}

	total := 0
	for t, files := range byType {
		sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
		byType[t] = files
		total += len(files)
		klog.Infof("found %d images in %s/ folder", len(files), t)
	}
	klog.Infof("total files to process: %d across %d jewelry types", total, len(byType))

	return byType, nil
}

// ScanFlat returns the images directly inside dir, for inboxes without
// per-type subfolders. All files are assigned the given default type.
func ScanFlat(dir string, defaultType string) ([]InboxFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	files := []InboxFile{}
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' || !IsImage(e.Name()) {
			continue
		}
		files = append(files, InboxFile{Path: filepath.Join(dir, e.Name()), Type: defaultType})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Flatten merges a per-type map into a single slice, ordered by type then
// path so runs are deterministic.
func Flatten(byType map[string][]InboxFile) []InboxFile {
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	files := []InboxFile{}
	for _, t := range types {
		files = append(files, byType[t]...)
	}
	return files
}
