package config

import (
	"os"
	"path/filepath"
)

func GetRuntimePath() string {
	return resolveRuntimePath(os.Getenv("TAZAMEM_RUNTIME_PATH"))
}

// relative paths live under the user's home directory
func resolveRuntimePath(path string) string {
	if path == "" {
		path = ".tazamem"
	}

	if !filepath.IsAbs(path) {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path)
	}
	return path
}
