package store

import (
	"context"
	"strings"

	"github.com/alchemy-app/backend/internal/backend"
)

// voiceCommands is the fixed dispatch table for final transcripts, matched
// by case-insensitive substring containment in order. Anything unmatched is
// sent as a chat message.
var voiceCommands = []struct {
	match  string
	action func(ctx context.Context, s *ConversationStore) error
}{
	{"new chat", func(_ context.Context, s *ConversationStore) error {
		s.StartNewConversation()
		return nil
	}},
	{"clear history", func(ctx context.Context, s *ConversationStore) error {
		return s.ClearAllHistory(ctx)
	}},
	{"tts on", func(ctx context.Context, s *ConversationStore) error {
		return s.setTTS(ctx, true)
	}},
	{"tts off", func(ctx context.Context, s *ConversationStore) error {
		return s.setTTS(ctx, false)
	}},
	{"use mock", func(ctx context.Context, s *ConversationStore) error {
		return s.SetBackend(ctx, backend.KindMock)
	}},
	{"use real", func(ctx context.Context, s *ConversationStore) error {
		return s.SetBackend(ctx, backend.KindRemote)
	}},
	{"use openai", func(ctx context.Context, s *ConversationStore) error {
		return s.SetBackend(ctx, backend.KindRemote)
	}},
	{"use coreml", func(ctx context.Context, s *ConversationStore) error {
		return s.SetBackend(ctx, backend.KindLocal)
	}},
	{"use local", func(ctx context.Context, s *ConversationStore) error {
		return s.SetBackend(ctx, backend.KindLocal)
	}},
}

// DispatchCommand runs the voice command matching the transcript, if any.
// It reports whether a command was recognized.
func (s *ConversationStore) DispatchCommand(ctx context.Context, transcript string) (bool, error) {
	lowered := strings.ToLower(strings.TrimSpace(transcript))
	if lowered == "" {
		return false, nil
	}

	for _, command := range voiceCommands {
		if strings.Contains(lowered, command.match) {
			return true, command.action(ctx, s)
		}
	}

	return false, nil
}

// HandleTranscript routes a final transcript: recognized commands execute,
// everything else becomes a chat message.
func (s *ConversationStore) HandleTranscript(ctx context.Context, transcript string) error {
	handled, err := s.DispatchCommand(ctx, transcript)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	err = s.SendMessage(ctx, transcript)
	if err == ErrEmptyMessage {
		return nil
	}
	return err
}

func (s *ConversationStore) setTTS(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !enabled && s.speaker != nil {
		s.speaker.Stop()
	}

	s.cfg.TTSEnabled = enabled
	s.persistSettingsLocked(ctx)
	return nil
}
