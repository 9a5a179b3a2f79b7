package xfs

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde replaces a leading tilde (~) with the user's home directory.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// Resolve expands a leading tilde and makes path absolute relative to the
// working directory. Empty paths are returned unchanged.
func Resolve(path string) string {
	if path == "" {
		return path
	}

	path = ExpandTilde(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}

// Exists reports whether path exists and is a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
