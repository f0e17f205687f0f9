package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SnapshotKind identifies what a snapshot captured, for debugging extraction.
type SnapshotKind string

const (
	SnapshotImageURLs SnapshotKind = "image_urls"
	SnapshotScript    SnapshotKind = "script_result"
)

// Snapshots writes timestamped JSON files under <root>/<kind>/.
type Snapshots struct {
	root string
}

// NewSnapshots creates a snapshot writer rooted at dir.
func NewSnapshots(dir string) *Snapshots {
	return &Snapshots{root: dir}
}

func (s *Snapshots) kindDir(kind SnapshotKind) string {
	return filepath.Join(s.root, string(kind))
}

// generateFilename creates a timestamped filename with the given extension.
func generateFilename(ext string) string {
	return time.Now().Format("2006-01-02T15-04-05.000") + ext
}

// SaveSnapshot serializes data into the kind's directory.
// Returns the path to the saved file.
func SaveSnapshot[T any](s *Snapshots, kind SnapshotKind, data T) (string, error) {
	dir := s.kindDir(kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, generateFilename(".json"))

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	return path, nil
}

// LoadLatestSnapshot loads the most recent snapshot of a kind.
// Returns the data, the filepath it was loaded from, and any error.
func LoadLatestSnapshot[T any](s *Snapshots, kind SnapshotKind) (T, string, error) {
	var zero T

	latestPath, err := s.LatestFile(kind)
	if err != nil {
		return zero, "", err
	}

	data, err := LoadSnapshot[T](latestPath)
	if err != nil {
		return zero, "", err
	}

	return data, latestPath, nil
}

// LoadSnapshot loads JSON data from a specific file path.
func LoadSnapshot[T any](path string) (T, error) {
	var data T

	jsonData, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(jsonData, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return data, nil
}

// LatestFile returns the path to the most recent snapshot of a kind.
func (s *Snapshots) LatestFile(kind SnapshotKind) (string, error) {
	dir := s.kindDir(kind)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no snapshot of kind %s", kind)
		}
		return "", err
	}

	// os.ReadDir sorts by name, which is chronological for our timestamps
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}

	if len(files) == 0 {
		return "", fmt.Errorf("no snapshot of kind %s", kind)
	}

	return filepath.Join(dir, files[len(files)-1]), nil
}
