package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/alchemy-app/backend/internal/models"
)

// MemoryRepository keeps user accounts in process memory. Used when no
// database is configured, and by tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	usersByName  map[string]*models.User
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		usersByName:  make(map[string]*models.User),
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[string]*models.User),
	}
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) error {
	usernameKey := strings.ToLower(user.Username)
	emailKey := normalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.usersByName[usernameKey]; exists {
		return ErrUserExists
	}
	if emailKey != "" {
		if _, exists := r.usersByEmail[emailKey]; exists {
			return ErrEmailExists
		}
	}

	stored := *user
	r.usersByName[usernameKey] = &stored
	r.usersByID[stored.ID] = &stored
	if emailKey != "" {
		r.usersByEmail[emailKey] = &stored
	}

	return nil
}

func (r *MemoryRepository) FindByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if user, ok := r.usersByName[strings.ToLower(identifier)]; ok {
		copied := *user
		return &copied, nil
	}
	if user, ok := r.usersByEmail[normalizeEmail(identifier)]; ok {
		copied := *user
		return &copied, nil
	}

	return nil, ErrUserNotFound
}

func (r *MemoryRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.usersByID[id]
	if !ok {
		return ErrUserNotFound
	}

	user.UpdatedAt = at
	return nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
