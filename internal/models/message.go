package models

import (
	"time"

	"github.com/google/uuid"
)

// Message roles. A conversation's first message conventionally carries the
// system prompt, followed by alternating user and assistant turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn. Immutable once created.
type Message struct {
	ID        string    `json:"id" bson:"_id"`
	Role      string    `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// NewMessage builds a message with a fresh identifier and timestamp.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
