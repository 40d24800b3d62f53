// Package store owns the active conversation and the persisted history
// list. It mediates between caller-originated events (send, new chat,
// select, delete, rename, backend switch) and the active backend strategy.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alchemy-app/backend/internal/backend"
	"github.com/alchemy-app/backend/internal/history"
	"github.com/alchemy-app/backend/internal/models"
	"github.com/alchemy-app/backend/internal/settings"
)

var (
	// ErrEmptyMessage is returned for blank input; state is untouched.
	ErrEmptyMessage = errors.New("store: message is empty")

	// ErrBusy is returned while a send is already in flight.
	ErrBusy = errors.New("store: a send is already in flight")

	// ErrNotFound is returned when no history entry matches the identifier.
	ErrNotFound = errors.New("store: conversation not found")

	// ErrEmptyTitle is returned for a blank rename; the title is unchanged.
	ErrEmptyTitle = errors.New("store: title is empty")
)

// Speaker voices assistant replies. Speak stops any utterance in progress
// first, so at most one plays at a time.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// ConversationStore is the single source of truth for the chat currently
// displayed plus the history of past conversations.
type ConversationStore struct {
	repo          history.Repository
	settingsStore settings.Store
	speaker       Speaker
	logger        *zap.SugaredLogger

	mu            sync.Mutex
	cfg           settings.Settings
	backend       backend.Backend
	backendCfg    backend.Config
	active        *models.Conversation
	conversations []*models.Conversation
	busy          bool
	generation    uint64
	lastErr       string
}

// Options carries the collaborators the store needs at construction.
type Options struct {
	Settings      settings.Settings
	Backend       backend.Backend
	BackendConfig backend.Config
	History       history.Repository
	SettingsStore settings.Store
	Speaker       Speaker
	Logger        *zap.SugaredLogger
}

// New builds a store, loading persisted history once. A history that fails
// to load starts empty; the error is logged, not fatal.
func New(ctx context.Context, opts Options) *ConversationStore {
	s := &ConversationStore{
		repo:          opts.History,
		settingsStore: opts.SettingsStore,
		speaker:       opts.Speaker,
		logger:        opts.Logger,
		cfg:           opts.Settings,
		backend:       opts.Backend,
		backendCfg:    opts.BackendConfig,
	}

	if s.repo == nil {
		s.repo = history.NewMemoryRepository()
	}

	loaded, err := s.repo.Load(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warnw("history failed to load, starting empty", "error", err)
		}
		loaded = nil
	}
	for _, conversation := range loaded {
		conversation.NormalizeSystemPrompt(s.cfg.SystemPrompt)
	}
	s.conversations = loaded
	s.active = models.NewConversation(s.cfg.SystemPrompt)

	return s
}

// SendMessage appends the user's turn synchronously, then asks the active
// backend for a reply. The reply is applied only if the active conversation
// is still the one the request started against; a stale completion is
// dropped. On failure the user's message stays in place with no assistant
// reply and no automatic retry.
func (s *ConversationStore) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}

	s.lastErr = ""
	s.active.Append(models.NewMessage(models.RoleUser, text))

	s.busy = true
	s.generation++
	generation := s.generation
	conversationID := s.active.ID
	prompt := s.promptLocked()
	turns := s.turnsLocked()
	activeBackend := s.backend
	s.mu.Unlock()

	reply, err := activeBackend.GenerateReply(ctx, turns, prompt)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false

	if s.active == nil || s.active.ID != conversationID || s.generation != generation {
		if s.logger != nil {
			s.logger.Infow("dropping stale completion", "conversation", conversationID)
		}
		return err
	}

	if err != nil {
		s.lastErr = err.Error()
		return err
	}

	s.active.Append(models.NewMessage(models.RoleAssistant, reply))
	s.upsertHistoryLocked(ctx, s.active)

	if s.cfg.TTSEnabled && s.speaker != nil {
		go s.speak(reply)
	}

	return nil
}

// StartNewConversation replaces the active conversation with a fresh one
// seeded with the current system prompt, cancelling speech and clearing
// error state. An in-flight reply for the old conversation will be dropped
// when it lands.
func (s *ConversationStore) StartNewConversation() *models.Conversation {
	if s.speaker != nil {
		s.speaker.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startNewLocked()
}

// SelectConversation makes a history entry the active conversation,
// wholesale. Transient input and error state is cleared.
func (s *ConversationStore) SelectConversation(id string) (*models.Conversation, error) {
	if s.speaker != nil {
		s.speaker.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.findLocked(id)
	if entry == nil {
		return nil, ErrNotFound
	}

	selected := entry.Clone()
	selected.NormalizeSystemPrompt(s.cfg.SystemPrompt)

	s.generation++
	s.active = selected
	s.lastErr = ""

	return selected.Clone(), nil
}

// DeleteConversation removes a history entry. Deleting the active
// conversation starts a fresh one.
func (s *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i, conversation := range s.conversations {
		if conversation.ID == id {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, history.ErrNotFound) {
		if s.logger != nil {
			s.logger.Warnw("history delete failed", "conversation", id, "error", err)
		}
	}

	if s.active != nil && s.active.ID == id {
		s.startNewLocked()
	}

	return nil
}

// RenameConversation updates a history entry's title, and the active title
// when it is the same conversation. A blank title is a no-op.
func (s *ConversationStore) RenameConversation(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.findLocked(id)
	if entry == nil {
		return ErrNotFound
	}

	entry.Rename(title)
	if err := s.repo.Upsert(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warnw("history rename failed", "conversation", id, "error", err)
	}

	if s.active != nil && s.active.ID == id {
		s.active.Rename(title)
	}

	return nil
}

// ClearAllHistory empties the history list and starts a fresh conversation.
func (s *ConversationStore) ClearAllHistory(ctx context.Context) error {
	if s.speaker != nil {
		s.speaker.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	if err := s.repo.Clear(ctx); err != nil {
		if s.logger != nil {
			s.logger.Warnw("history clear failed", "error", err)
		}
	}

	s.startNewLocked()
	return nil
}

// SetBackend swaps the active strategy and records the selection in the
// persisted settings.
func (s *ConversationStore) SetBackend(ctx context.Context, kind backend.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement, err := backend.New(kind, s.backendConfigLocked())
	if err != nil {
		return err
	}

	s.backend = replacement
	s.cfg.BackendKind = string(kind)
	s.persistSettingsLocked(ctx)

	return nil
}

// UpdateConfiguration replaces the store's configuration, rebuilds the
// backend from it, and persists the new values. On a construction failure
// the previous configuration stays in effect.
func (s *ConversationStore) UpdateConfiguration(ctx context.Context, cfg settings.Settings) error {
	kind, err := backend.ParseKind(cfg.BackendKind)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.cfg
	s.cfg = cfg

	replacement, err := backend.New(kind, s.backendConfigLocked())
	if err != nil {
		s.cfg = previous
		return err
	}

	s.backend = replacement
	s.cfg.BackendKind = string(kind)
	s.persistSettingsLocked(ctx)

	return nil
}

// Active returns a snapshot of the conversation currently displayed.
func (s *ConversationStore) Active() *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Clone()
}

// History returns snapshots of the persisted conversations, most recently
// updated first.
func (s *ConversationStore) History() []*models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.Conversation, len(s.conversations))
	for i, conversation := range s.conversations {
		result[i] = conversation.Clone()
	}
	return result
}

// Busy reports whether a send is in flight.
func (s *ConversationStore) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// LastError returns the latest user-visible error message, cleared by the
// next send or new conversation.
func (s *ConversationStore) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Configuration returns the current settings.
func (s *ConversationStore) Configuration() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// BackendKind reports which strategy is active.
func (s *ConversationStore) BackendKind() backend.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Kind()
}

func (s *ConversationStore) startNewLocked() *models.Conversation {
	s.generation++
	s.active = models.NewConversation(s.cfg.SystemPrompt)
	s.lastErr = ""
	return s.active.Clone()
}

func (s *ConversationStore) findLocked(id string) *models.Conversation {
	for _, conversation := range s.conversations {
		if conversation.ID == id {
			return conversation
		}
	}
	return nil
}

// promptLocked prefers the active conversation's own leading system
// message over the configured prompt, so a historical thread keeps the
// prompt it was started with.
func (s *ConversationStore) promptLocked() string {
	if prompt := s.active.SystemPrompt(); strings.TrimSpace(prompt) != "" {
		return prompt
	}
	return s.cfg.SystemPrompt
}

// turnsLocked returns the user/assistant turns; the leading system message
// travels separately as the system prompt.
func (s *ConversationStore) turnsLocked() []models.Message {
	turns := make([]models.Message, 0, len(s.active.Messages))
	for _, msg := range s.active.Messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		turns = append(turns, msg)
	}
	return turns
}

// upsertHistoryLocked records the conversation in the history list, except
// while it still holds nothing beyond its system message.
func (s *ConversationStore) upsertHistoryLocked(ctx context.Context, conversation *models.Conversation) {
	if !conversation.HasUserContent() {
		return
	}

	entry := conversation.Clone()
	replaced := false
	for i, existing := range s.conversations {
		if existing.ID == entry.ID {
			s.conversations[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.conversations = append(s.conversations, entry)
	}
	s.sortHistoryLocked()

	if err := s.repo.Upsert(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warnw("history upsert failed", "conversation", entry.ID, "error", err)
	}
}

func (s *ConversationStore) sortHistoryLocked() {
	for i := 1; i < len(s.conversations); i++ {
		for j := i; j > 0 && s.conversations[j].UpdatedAt.After(s.conversations[j-1].UpdatedAt); j-- {
			s.conversations[j], s.conversations[j-1] = s.conversations[j-1], s.conversations[j]
		}
	}
}

func (s *ConversationStore) backendConfigLocked() backend.Config {
	cfg := s.backendCfg
	cfg.APIKey = s.cfg.APIKey
	cfg.Model = s.cfg.RemoteModel
	cfg.Temperature = s.cfg.Temperature
	cfg.MaxTokens = s.cfg.MaxTokens
	cfg.LocalModelPath = s.cfg.LocalModel
	return cfg
}

func (s *ConversationStore) persistSettingsLocked(ctx context.Context) {
	if s.settingsStore == nil {
		return
	}
	if err := s.settingsStore.Save(ctx, s.cfg); err != nil && s.logger != nil {
		s.logger.Warnw("settings save failed", "error", err)
	}
}

func (s *ConversationStore) speak(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	if err := s.speaker.Speak(ctx, text); err != nil && s.logger != nil {
		s.logger.Warnw("speech synthesis failed", "error", err)
	}
}
