// Package filestate persists pipeline snapshots as a single JSON document
// on disk. Suitable for single-instance deployments and dev.
package filestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/linnemanlabs/airsight/internal/store"
)

// State reads and writes a snapshot file with atomic replace.
type State struct {
	path string
}

// New creates a file-backed State at the given path.
func New(path string) *State {
	return &State{path: path}
}

// Load reads the snapshot file. A missing file is not an error.
func (s *State) Load(_ context.Context) (*store.Snapshot, bool, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("parse snapshot %s: %w", s.path, err)
	}
	return &snap, true, nil
}

// Save writes the snapshot to a temp file and renames it into place, so a
// crash mid-write never leaves a truncated snapshot.
func (s *State) Save(_ context.Context, snap *store.Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot %s: %w", s.path, err)
	}
	return nil
}
