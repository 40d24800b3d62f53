package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps the settings as a single JSON file, rewritten atomically
// on every save. A missing or corrupt file yields the defaults.
type FileStore struct {
	path   string
	logger *zap.SugaredLogger
	mu     sync.Mutex
}

func NewFileStore(path string, logger *zap.SugaredLogger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Load(_ context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("settings: read %s: %w", s.path, err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		if s.logger != nil {
			s.logger.Warnw("settings file is corrupt, using defaults", "path", s.path, "error", err)
		}
		return Default(), nil
	}

	return loaded, nil
}

func (s *FileStore) Save(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("settings: create %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("settings: write %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("settings: rename %s: %w", tempPath, err)
	}

	return nil
}
