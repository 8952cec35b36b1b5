package conf

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "parrot-tester"

// GetDefaultConfigPaths returns the directories searched for config.yaml:
// the working directory, then the per-user and system-wide locations.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "windows" {
			paths = append(paths, filepath.Join(home, "AppData", "Roaming", appDir))
		} else {
			paths = append(paths, filepath.Join(home, ".config", appDir))
		}
	}
	if runtime.GOOS != "windows" {
		paths = append(paths, filepath.Join("/etc", appDir))
	}
	return paths
}
