// Package fsutil holds the file writing shared by source handlers.
package fsutil

import (
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic copies r into dest.tmp and renames it over dest. The parent
// directory is created when missing. When check is non-nil it runs after the
// copy and before the rename; an error from it discards the temporary file
// and leaves dest untouched.
func WriteAtomic(dest string, r io.Reader, check func() error) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if check != nil {
		if err := check(); err != nil {
			_ = os.Remove(tmp)
			return err
		}
	}
	return os.Rename(tmp, dest)
}

// Exists reports whether path can be stat'ed.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
