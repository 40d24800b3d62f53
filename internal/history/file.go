package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/alchemy-app/backend/internal/models"
)

// FileRepository keeps the whole conversation list as one JSON document on
// disk. Every mutation rewrites the file atomically (write to a temp file,
// then rename). A file that fails to decode is treated as empty and is
// overwritten by the next save.
type FileRepository struct {
	path   string
	logger *zap.SugaredLogger

	mu            sync.Mutex
	conversations []*models.Conversation
	loaded        bool
}

func NewFileRepository(path string, logger *zap.SugaredLogger) *FileRepository {
	return &FileRepository{path: path, logger: logger}
}

func (r *FileRepository) Load(_ context.Context) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return nil, err
	}

	return cloneAll(r.conversations), nil
}

func (r *FileRepository) Upsert(_ context.Context, conversation *models.Conversation) error {
	if conversation == nil || conversation.ID == "" {
		return fmt.Errorf("history: conversation id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}

	entry := conversation.Clone()
	replaced := false
	for i, existing := range r.conversations {
		if existing.ID == entry.ID {
			r.conversations[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		r.conversations = append(r.conversations, entry)
	}

	r.sortLocked()
	return r.saveLocked()
}

func (r *FileRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}

	for i, existing := range r.conversations {
		if existing.ID == id {
			r.conversations = append(r.conversations[:i], r.conversations[i+1:]...)
			return r.saveLocked()
		}
	}

	return ErrNotFound
}

func (r *FileRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conversations = nil
	r.loaded = true
	return r.saveLocked()
}

func (r *FileRepository) loadLocked() error {
	if r.loaded {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.conversations = nil
			r.loaded = true
			return nil
		}
		return fmt.Errorf("history: read %s: %w", r.path, err)
	}

	var conversations []*models.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		if r.logger != nil {
			r.logger.Warnw("history file is corrupt, resetting", "path", r.path, "error", err)
		}
		conversations = nil
	}

	r.conversations = conversations
	r.loaded = true
	r.sortLocked()
	return nil
}

func (r *FileRepository) saveLocked() error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("history: create %s: %w", dir, err)
		}
	}

	payload := r.conversations
	if payload == nil {
		payload = []*models.Conversation{}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}

	tempPath := r.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("history: write %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, r.path); err != nil {
		return fmt.Errorf("history: rename %s: %w", tempPath, err)
	}

	return nil
}

func (r *FileRepository) sortLocked() {
	sort.SliceStable(r.conversations, func(i, j int) bool {
		return r.conversations[i].UpdatedAt.After(r.conversations[j].UpdatedAt)
	})
}

func cloneAll(conversations []*models.Conversation) []*models.Conversation {
	result := make([]*models.Conversation, len(conversations))
	for i, conversation := range conversations {
		result[i] = conversation.Clone()
	}
	return result
}
