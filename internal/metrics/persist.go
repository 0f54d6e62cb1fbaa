package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SavedSnapshot is a Snapshot persisted to disk after a run, so a later
// stats invocation can report on it.
type SavedSnapshot struct {
	RecordedAt time.Time `json:"recorded_at"`
	Command    string    `json:"command"`
	Snapshot   Snapshot  `json:"snapshot"`
}

// WriteSnapshot persists a snapshot to path, creating parent
// directories as needed. Each write replaces the previous snapshot.
func WriteSnapshot(path, command string, snap Snapshot) error {
	saved := SavedSnapshot{
		RecordedAt: time.Now(),
		Command:    command,
		Snapshot:   snap,
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metrics snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a previously persisted snapshot. Returns
// os.ErrNotExist (wrapped) when no snapshot has been recorded yet.
func ReadSnapshot(path string) (SavedSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SavedSnapshot{}, fmt.Errorf("read metrics snapshot: %w", err)
	}
	var saved SavedSnapshot
	if err := json.Unmarshal(data, &saved); err != nil {
		return SavedSnapshot{}, fmt.Errorf("decode metrics snapshot: %w", err)
	}
	return saved, nil
}
