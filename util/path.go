package util

import (
	"os"
	"path/filepath"
	"strings"
)

// GetAbsPath expands a leading "~/" and makes path absolute. An empty
// path stays empty.
func GetAbsPath(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return path, nil
	}
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path, err
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return filepath.Abs(path)
}
