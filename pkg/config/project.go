// Package config resolves everything the bridge needs before serving:
// the Unity project and its stable identity, the bridge.json contact file,
// and per-command timeout overrides from environment and project config.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDirName is the per-project directory holding bridge state
// (bridge.json, optional bridge.yaml and .env).
const ConfigDirName = ".unityctl"

// ProjectID derives the stable short identity tag for a project path.
// The tag is a truncated hash of the absolute path, so the same project
// yields the same id across bridge restarts.
func ProjectID(projectPath string) string {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		abs = projectPath
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:8]
}

// IsUnityProject reports whether dir looks like a Unity project root
// (contains both Assets/ and ProjectSettings/).
func IsUnityProject(dir string) bool {
	for _, sub := range []string{"Assets", "ProjectSettings"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// DiscoverProject walks up from start looking for a Unity project root.
func DiscoverProject(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve start directory: %w", err)
	}
	for {
		if IsUnityProject(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no Unity project found at or above %s", start)
		}
		dir = parent
	}
}

// ConfigDir returns the project's bridge config directory path.
func ConfigDir(projectPath string) string {
	return filepath.Join(projectPath, ConfigDirName)
}
