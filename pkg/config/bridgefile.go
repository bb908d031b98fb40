package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BridgeFile is the contact file a running bridge writes so CLI clients can
// find it. It is the only state the daemon persists.
type BridgeFile struct {
	ProjectID string `json:"projectId"`
	Port      int    `json:"port"`
	PID       int    `json:"pid"`
}

// BridgeFilePath returns <project>/.unityctl/bridge.json.
func BridgeFilePath(projectPath string) string {
	return filepath.Join(ConfigDir(projectPath), "bridge.json")
}

// WriteBridgeFile writes the contact file, creating the config directory if
// needed. Written atomically via a temp file so a reading CLI never sees a
// partial document.
func WriteBridgeFile(projectPath string, bf BridgeFile) error {
	dir := ConfigDir(projectPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(bf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bridge file: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, "bridge-*.json")
	if err != nil {
		return fmt.Errorf("create temp bridge file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write bridge file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close bridge file: %w", err)
	}
	return os.Rename(tmp.Name(), BridgeFilePath(projectPath))
}

// ReadBridgeFile loads the contact file. os.ErrNotExist is passed through
// so callers can treat a missing file as "no bridge running".
func ReadBridgeFile(projectPath string) (*BridgeFile, error) {
	data, err := os.ReadFile(BridgeFilePath(projectPath))
	if err != nil {
		return nil, err
	}
	var bf BridgeFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parse bridge file: %w", err)
	}
	return &bf, nil
}

// RemoveBridgeFile deletes the contact file on clean shutdown. A missing
// file is not an error.
func RemoveBridgeFile(projectPath string) error {
	err := os.Remove(BridgeFilePath(projectPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
