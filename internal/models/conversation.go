package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultTitle is used until a title can be derived from the first
	// user message.
	DefaultTitle = "New chat"

	titleMaxRunes = 30
)

// Conversation is one chat thread: an ordered list of messages plus
// title and timestamp metadata. Message order is insertion order and is
// never rearranged.
type Conversation struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	Messages  []Message `json:"messages" bson:"messages"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// NewConversation creates a conversation seeded with a single system
// message holding the current prompt.
func NewConversation(systemPrompt string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []Message{NewMessage(RoleSystem, systemPrompt)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the end of the thread and refreshes the
// conversation metadata. When the incoming message is the first user turn
// and the title is still the default, the title is derived from it.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now().UTC()

	if msg.Role == RoleUser && c.Title == DefaultTitle {
		if title := deriveTitle(msg.Content); title != "" {
			c.Title = title
		}
	}
}

// FirstUserMessage returns the earliest user turn, or nil.
func (c *Conversation) FirstUserMessage() *Message {
	for i := range c.Messages {
		if c.Messages[i].Role == RoleUser {
			return &c.Messages[i]
		}
	}
	return nil
}

// HasUserContent reports whether the conversation holds anything beyond
// its initial system message.
func (c *Conversation) HasUserContent() bool {
	for i := range c.Messages {
		if c.Messages[i].Role != RoleSystem {
			return true
		}
	}
	return false
}

// SystemPrompt returns the prompt carried by the leading system message,
// or the empty string when the thread does not start with one.
func (c *Conversation) SystemPrompt() string {
	if len(c.Messages) == 0 || c.Messages[0].Role != RoleSystem {
		return ""
	}
	return c.Messages[0].Content
}

// NormalizeSystemPrompt ensures a loaded conversation starts with a system
// message. Threads restored from older history files may lack one; in that
// case the fallback prompt is inserted at the head. An existing historical
// prompt is never overwritten.
func (c *Conversation) NormalizeSystemPrompt(fallback string) {
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		return
	}
	head := NewMessage(RoleSystem, fallback)
	c.Messages = append([]Message{head}, c.Messages...)
}

// Rename sets the title. Blank titles are rejected by the caller.
func (c *Conversation) Rename(title string) {
	c.Title = title
	c.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy safe to hand out across goroutines.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	copied := *c
	copied.Messages = append([]Message(nil), c.Messages...)
	return &copied
}

func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if title == "" {
		return ""
	}
	if line := strings.SplitN(title, "\n", 2)[0]; line != "" {
		title = strings.TrimSpace(line)
	}
	return truncateRunes(title, titleMaxRunes)
}

func truncateRunes(input string, max int) string {
	if max <= 0 || utf8.RuneCountInString(input) <= max {
		return input
	}

	var builder strings.Builder
	count := 0
	for _, r := range input {
		if count >= max {
			builder.WriteRune('…')
			break
		}
		builder.WriteRune(r)
		count++
	}
	return builder.String()
}
