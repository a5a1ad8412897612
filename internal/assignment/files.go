package assignment

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// FileDescriptor describes one file the tool left in its output directory.
type FileDescriptor struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ListFiles describes the regular files in dir, sorted by name.
func ListFiles(dir string) ([]FileDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list output directory: %w", err)
	}

	files := make([]FileDescriptor, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileDescriptor{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC().Truncate(time.Second),
		})
	}

	slices.SortFunc(files, func(a, b FileDescriptor) int {
		return strings.Compare(a.Name, b.Name)
	})
	return files, nil
}
