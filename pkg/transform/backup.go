package transform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// BackupSuffix is appended to a script path to name its backup.
const BackupSuffix = ".bak"

// BackupPath returns the backup path for path.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// HasBackup reports whether a backup of path exists.
func HasBackup(path string) bool {
	_, err := os.Stat(BackupPath(path))
	return err == nil
}

// WriteBackup stores original as the backup of path unless a backup already
// exists, so repeated runs keep the first original. It reports whether a
// backup was written.
func WriteBackup(path string, original []byte, perm fs.FileMode) (bool, error) {
	f, err := os.OpenFile(BackupPath(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create backup for %s: %w", path, err)
	}
	if _, err := f.Write(original); err != nil {
		f.Close()
		os.Remove(f.Name())
		return false, fmt.Errorf("write backup for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return false, fmt.Errorf("close backup for %s: %w", path, err)
	}
	return true, nil
}

// writeAtomic replaces path with data through a temporary file in the same
// directory, so readers never observe a partial write.
func writeAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	name := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(name)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Restore copies the backup of path over path and removes the backup.
func Restore(path string) error {
	backup := BackupPath(path)
	data, err := os.ReadFile(backup)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", backup, err)
	}
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(backup); err == nil {
		perm = info.Mode().Perm()
	}
	if err := writeAtomic(path, data, perm); err != nil {
		return err
	}
	if err := os.Remove(backup); err != nil {
		return fmt.Errorf("remove backup %s: %w", backup, err)
	}
	return nil
}
