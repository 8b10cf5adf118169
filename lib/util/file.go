package util

import (
	"github.com/cockroachdb/errors"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces the file at path with data. The data is written
// to a temporary file in the same directory which is then renamed over
// path, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name()) // no-op after the rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp.Name())
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", tmp.Name())
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "failed to replace %s", path)
}
