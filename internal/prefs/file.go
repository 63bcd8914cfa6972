// Package prefs holds the small key/value preference stores the repository
// consults: application preferences (offline mode, last refresh) and Plex
// server preferences (server URL, token, library).
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// readVersion reads path and returns its raw bytes and "version" field.
// A missing file returns nil data and no error.
func readVersion(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to read preferences file at %q: %w", path, err)
	}

	var version struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &version); err != nil {
		return nil, "", fmt.Errorf("invalid preferences file format: %w", err)
	}
	return data, version.Version, nil
}

// writeJSON atomically replaces path with the indented JSON encoding of v
func writeJSON(path string, v interface{}, perm os.FileMode) error {
	targetDir := filepath.Dir(path)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create preferences directory %q: %w", targetDir, err)
	}

	tmpFile, err := os.CreateTemp(targetDir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %q: %w", targetDir, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		if _, err := os.Stat(tmpPath); err == nil {
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync preferences file: %w", err)
	}
	// Close before renaming (required on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %q: %w", path, err)
	}
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set permissions on preferences file: %w", err)
	}
	return nil
}
