package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return fmt.Errorf("directory path is empty")
	}
	_, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %v", err)
		}
		return nil
	}
	return err
}

// DirHasEntries reports whether the path exists, is a directory, and is not
// empty. Used both for mount discovery and the repair safety gate.
func DirHasEntries(dirPath string) bool {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// Symlink creates the target's parent dirs and links target to source,
// replacing any existing link of the same name so parallel backends can race
// safely.
func Symlink(source, target string) error {
	if err := EnsureDir(filepath.Dir(target)); err != nil {
		return err
	}
	if info, err := os.Lstat(target); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("refusing to replace non-symlink: %s", target)
		}
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	return os.Symlink(source, target)
}
