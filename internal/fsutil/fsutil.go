// Package fsutil holds the filesystem primitives shared by the server and the
// display client. Each call states its atomicity contract.
package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// EnsureDir creates dir and any parents if absent. Existing directories are
// left untouched.
func EnsureDir(dir string, perm fs.FileMode) error {
	return os.MkdirAll(dir, perm)
}

// WriteFileAtomic writes data to path so that a concurrent reader observes
// either the previous content or the complete new content, never a partial
// file.
//
// Implementation details:
//   - Writes into a temp file in the same directory (same filesystem).
//   - Syncs and closes it, applies perm, then renames over path.
//   - The temp file is removed on any failure.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	if path == "" {
		return errors.New("fsutil: path is empty")
	}
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".staging-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// No-op after a successful rename.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// RemoveIfExists deletes path. A missing file is not an error.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
