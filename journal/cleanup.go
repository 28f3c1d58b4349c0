package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cleanup removes journal files whose last write predates cutoff and
// returns how many were removed
func Cleanup(dir string, cutoff time.Time) (int, error) {
	files := listOldFiles(dir, cutoff)
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return 0, fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}
	return len(files), nil
}

// listOldFiles finds journal files last modified before cutoff
func listOldFiles(dir string, cutoff time.Time) []string {
	pattern := filepath.Join(dir, filePrefix+"-*.journal")
	all, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}

	var old []string
	for _, file := range all {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			old = append(old, file)
		}
	}
	return old
}
