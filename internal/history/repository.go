// Package history persists the conversation list. The list is read once at
// startup and rewritten on every mutation; decoding failures reset it.
package history

import (
	"context"
	"errors"

	"github.com/alchemy-app/backend/internal/models"
)

// ErrNotFound is returned when a conversation identifier has no entry.
var ErrNotFound = errors.New("history: conversation not found")

// Repository stores past conversations keyed by identifier. Load returns
// them most-recently-updated first.
type Repository interface {
	Load(ctx context.Context) ([]*models.Conversation, error)
	Upsert(ctx context.Context, conversation *models.Conversation) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}
