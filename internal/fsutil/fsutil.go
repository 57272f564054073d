// SPDX-License-Identifier: MIT

// Package fsutil provides the filesystem introspection the capture pipeline
// needs: recursive listings filtered by modification time, and basic file
// metadata for results.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileInfo is the subset of file metadata exposed in job results.
type FileInfo struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	MTime int64  `json:"mtime"` // unix seconds
}

// ListBetween walks root recursively and returns the paths of regular files
// whose modification time falls within [from, to]. A zero bound disables
// that side of the window. Files racing with deletion are skipped; a missing
// root yields an empty listing.
func ListBetween(root string, from, to time.Time) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Deleted between readdir and stat.
			return nil
		}
		mtime := info.ModTime()
		if !from.IsZero() && mtime.Before(from) {
			return nil
		}
		if !to.IsZero() && mtime.After(to) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return nil, nil
	}
	return paths, err
}

// List returns every regular file under root.
func List(root string) ([]string, error) {
	return ListBetween(root, time.Time{}, time.Time{})
}

// Stat returns result metadata for one file.
func Stat(path string) (FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:  filepath.Base(path),
		Path:  path,
		Size:  st.Size(),
		MTime: st.ModTime().Unix(),
	}, nil
}
