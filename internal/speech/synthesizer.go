package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTTSModel   = "tts-1"
	defaultTTSVoice   = "alloy"
	defaultTTSTimeout = 60 * time.Second
)

// ErrMissingCredential is returned when synthesis is attempted with no API
// key configured.
var ErrMissingCredential = errors.New("speech: api key is not configured")

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// SynthesizerConfig configures the TTS client.
type SynthesizerConfig struct {
	Endpoint string
	APIKey   string
	Voice    string
	Rate     float64

	// Sink receives synthesized audio; nil discards it.
	Sink func(audio []byte)

	Client httpDoer
	Logger *zap.SugaredLogger
}

// Synthesizer turns reply text into audio via an OpenAI-style speech
// endpoint. At most one utterance is in flight: speaking stops whatever is
// currently playing first.
type Synthesizer struct {
	endpoint string
	apiKey   string
	voice    string
	rate     float64
	sink     func([]byte)
	client   httpDoer
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSynthesizer(cfg SynthesizerConfig) *Synthesizer {
	base := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")

	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = defaultTTSVoice
	}

	rate := cfg.Rate
	if rate <= 0 {
		rate = 1.0
	}

	client := cfg.Client
	if client == nil {
		// Synthesis responses can be slow; allow a longer round-trip.
		client = &http.Client{Timeout: defaultTTSTimeout}
	}

	return &Synthesizer{
		endpoint: base,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		voice:    voice,
		rate:     rate,
		sink:     cfg.Sink,
		client:   client,
		logger:   cfg.Logger,
	}
}

// SetVoice updates the voice and rate used for subsequent utterances.
func (s *Synthesizer) SetVoice(voice string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := strings.TrimSpace(voice); v != "" {
		s.voice = v
	}
	if rate > 0 {
		s.rate = rate
	}
}

type ttsAPIRequest struct {
	Model string  `json:"model"`
	Input string  `json:"input"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed,omitempty"`
}

// Speak synthesizes text and hands the audio to the configured sink. An
// utterance already in progress is stopped first.
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if s.apiKey == "" {
		return ErrMissingCredential
	}
	if s.endpoint == "" {
		return fmt.Errorf("speech: tts endpoint is not configured")
	}

	s.Stop()

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	voice := s.voice
	rate := s.rate
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	payload := ttsAPIRequest{
		Model: defaultTTSModel,
		Input: text,
		Voice: voice,
		Speed: rate,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal tts payload: %w", err)
	}

	endpoint := s.endpoint + "/audio/speech"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create tts request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+s.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("call tts api: %w", err)
	}
	defer response.Body.Close()

	audio, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read tts response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return buildTTSError(response.StatusCode, audio)
	}

	if len(audio) == 0 {
		return fmt.Errorf("speech: tts response contained no audio data")
	}

	if s.logger != nil {
		s.logger.Debugw("utterance synthesized", "bytes", len(audio), "voice", voice)
	}

	if s.sink != nil {
		s.sink(audio)
	}

	return nil
}

// Stop cancels the utterance currently in flight, if any.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

type ttsErrorEnvelope struct {
	Error *struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

func buildTTSError(statusCode int, body []byte) error {
	var envelope ttsErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return fmt.Errorf("speech: tts error (%d): %s", statusCode, strings.TrimSpace(envelope.Error.Message))
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("speech: tts error (%d): %s", statusCode, snippet)
}
