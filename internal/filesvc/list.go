// Package filesvc discovers collection files in a workspace.
package filesvc

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type FileEntry struct {
	Name string
	Path string
}

// IsCollectionFile reports whether path has an extension LoadCollection
// accepts. Environment files share .json and .yaml, so callers still need
// to try parsing.
func IsCollectionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// ListCollectionFiles returns candidate files under root, sorted by their
// path relative to root. Recursive walks skip hidden directories.
func ListCollectionFiles(root string, recursive bool) ([]FileEntry, error) {
	var entries []FileEntry
	add := func(name, path string) {
		entries = append(entries, FileEntry{Name: name, Path: path})
	}

	if recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !IsCollectionFile(d.Name()) {
				return nil
			}
			rel := d.Name()
			if r, relErr := filepath.Rel(root, path); relErr == nil {
				rel = r
			}
			add(rel, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		dirEntries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, entry := range dirEntries {
			if entry.IsDir() || !IsCollectionFile(entry.Name()) {
				continue
			}
			add(entry.Name(), filepath.Join(root, entry.Name()))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
