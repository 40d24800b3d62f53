package history

import (
	"context"
	"sort"
	"sync"

	"github.com/alchemy-app/backend/internal/models"
)

// MemoryRepository is the non-persistent fallback; history lives only for
// the process lifetime. Also used by tests.
type MemoryRepository struct {
	mu            sync.Mutex
	conversations []*models.Conversation
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load(_ context.Context) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneAll(r.conversations), nil
}

func (r *MemoryRepository) Upsert(_ context.Context, conversation *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := conversation.Clone()
	for i, existing := range r.conversations {
		if existing.ID == entry.ID {
			r.conversations[i] = entry
			r.sortLocked()
			return nil
		}
	}

	r.conversations = append(r.conversations, entry)
	r.sortLocked()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.conversations {
		if existing.ID == id {
			r.conversations = append(r.conversations[:i], r.conversations[i+1:]...)
			return nil
		}
	}

	return ErrNotFound
}

func (r *MemoryRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conversations = nil
	return nil
}

func (r *MemoryRepository) sortLocked() {
	sort.SliceStable(r.conversations, func(i, j int) bool {
		return r.conversations[i].UpdatedAt.After(r.conversations[j].UpdatedAt)
	})
}
