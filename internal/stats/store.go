package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// DocumentStore persists one JSON document at a fixed path. Loads fall back
// to the zero value on missing or corrupt files: statistics persistence is a
// non-critical path and must never block startup.
type DocumentStore struct {
	path   string
	logger *zap.SugaredLogger
}

// NewDocumentStore creates a store for path.
func NewDocumentStore(path string, logger *zap.SugaredLogger) *DocumentStore {
	return &DocumentStore{path: path, logger: logger}
}

// Load reads the document into out. Returns false when the file is missing
// or unreadable, leaving out untouched.
func (s *DocumentStore) Load(out interface{}) bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warnw("Failed to read store, starting empty", "path", s.path, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warnw("Corrupt store, starting empty", "path", s.path, "error", err)
		return false
	}
	return true
}

// Save writes the document atomically (temp file plus rename).
func (s *DocumentStore) Save(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store %s: %w", s.path, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store %s: %w", s.path, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace store %s: %w", s.path, err)
	}
	return nil
}
