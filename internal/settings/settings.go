// Package settings holds the persisted user-facing configuration: which
// backend is active and the tunables each backend and the speech features
// use. Values load once at startup and are written back whenever they
// change; consuming code receives them as an explicit struct rather than
// reading ambient state.
package settings

import "context"

// DefaultSystemPrompt seeds new conversations until the user customizes it.
const DefaultSystemPrompt = "You are a helpful assistant."

// Settings is the full set of persisted configuration values.
type Settings struct {
	BackendKind  string  `json:"backend_kind"`
	APIKey       string  `json:"api_key"`
	RemoteModel  string  `json:"remote_model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	LocalModel   string  `json:"local_model"`
	SystemPrompt string  `json:"system_prompt"`
	TTSEnabled   bool    `json:"tts_enabled"`
	SpeechRate   float64 `json:"speech_rate"`
	VoiceID      string  `json:"voice_id"`
}

// Default returns the settings used when nothing has been persisted yet.
func Default() Settings {
	return Settings{
		BackendKind:  "mock",
		RemoteModel:  "gpt-3.5-turbo",
		Temperature:  0.7,
		MaxTokens:    1024,
		SystemPrompt: DefaultSystemPrompt,
		SpeechRate:   1.0,
	}
}

// Store persists the settings as one record under a single key.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, settings Settings) error
}
