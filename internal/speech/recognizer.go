// Package speech wraps the remote speech services: a streaming recognizer
// (websocket) and a text-to-speech synthesizer (REST). Both are consumed as
// black boxes behind small contracts.
package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultSilenceTimeout = 1800 * time.Millisecond

var (
	// ErrRecognizerUnavailable means the recognizer endpoint or credential
	// is not configured.
	ErrRecognizerUnavailable = errors.New("speech: recognizer is not available")

	// ErrAudioSession means the streaming session could not be established.
	ErrAudioSession = errors.New("speech: audio session could not be configured")
)

// RecognizerConfig configures the streaming recognition client.
type RecognizerConfig struct {
	Endpoint       string
	APIKey         string
	SampleRate     int
	SilenceTimeout time.Duration
	Dialer         *websocket.Dialer
	Logger         *zap.SugaredLogger
}

// Recognizer opens streaming transcription sessions against a websocket
// endpoint that answers audio frames with incremental transcript events.
type Recognizer struct {
	endpoint   string
	apiKey     string
	sampleRate int
	silence    time.Duration
	dialer     *websocket.Dialer
	logger     *zap.SugaredLogger
}

func NewRecognizer(cfg RecognizerConfig) *Recognizer {
	dialer := cfg.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = 10 * time.Second
		dialer = &d
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	silence := cfg.SilenceTimeout
	if silence <= 0 {
		silence = defaultSilenceTimeout
	}

	return &Recognizer{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		sampleRate: sampleRate,
		silence:    silence,
		dialer:     dialer,
		logger:     cfg.Logger,
	}
}

// RequestAuthorization reports whether a recording session can be opened
// with the current configuration.
func (r *Recognizer) RequestAuthorization() bool {
	return r.endpoint != "" && r.apiKey != ""
}

// Session is one recording session. The final-transcript callback fires
// exactly once: on the recognizer's final result, after the silence timeout
// elapses with no new partial, or on an explicit stop, whichever comes
// first.
type Session struct {
	conn    *websocket.Conn
	logger  *zap.SugaredLogger
	onFinal func(string)

	mu         sync.Mutex
	transcript string
	silence    *time.Timer

	finalOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	// OnPartial, when set before audio flows, observes incremental
	// transcript updates.
	OnPartial func(text string)
}

// StartRecording dials the recognizer and begins a session. onFinal must
// not be nil.
func (r *Recognizer) StartRecording(ctx context.Context, onFinal func(string)) (*Session, error) {
	if !r.RequestAuthorization() {
		return nil, ErrRecognizerUnavailable
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.apiKey)

	conn, _, err := r.dialer.DialContext(ctx, r.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAudioSession, err)
	}

	session := &Session{
		conn:    conn,
		logger:  r.logger,
		onFinal: onFinal,
		done:    make(chan struct{}),
	}
	session.silence = time.AfterFunc(r.silence, func() {
		session.finish(session.Transcript())
	})

	go session.readLoop(r.silence)

	return session, nil
}

type transcriptEvent struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

func (s *Session) readLoop(silence time.Duration) {
	defer s.closeConn()

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			// Connection gone; whatever partial we have is the result.
			s.finish(s.Transcript())
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var event transcriptEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			if s.logger != nil {
				s.logger.Warnw("unparseable transcript event", "error", err)
			}
			continue
		}

		if event.Text == "" {
			continue
		}

		s.mu.Lock()
		s.transcript = event.Text
		if s.silence != nil {
			s.silence.Reset(silence)
		}
		partial := s.OnPartial
		s.mu.Unlock()

		if partial != nil && !event.IsFinal {
			partial(event.Text)
		}

		if event.IsFinal {
			s.finish(event.Text)
			return
		}
	}
}

// SendAudio forwards one raw audio frame to the recognizer.
func (s *Session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	select {
	case <-s.done:
		return fmt.Errorf("%w: session finished", ErrAudioSession)
	default:
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("send audio chunk: %w", err)
	}
	return nil
}

// Transcript returns the latest (partial or final) transcript.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// StopRecording ends the session. Idempotent and safe to call when the
// session already finished naturally; it finalizes with the transcript
// accumulated so far, the same as a natural finish.
func (s *Session) StopRecording() {
	s.finish(s.Transcript())
	s.closeConn()
}

// Done is closed once the final transcript has been delivered.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) finish(text string) {
	s.finalOnce.Do(func() {
		s.mu.Lock()
		if s.silence != nil {
			s.silence.Stop()
		}
		if text != "" {
			s.transcript = text
		}
		final := s.transcript
		s.mu.Unlock()

		if s.onFinal != nil {
			s.onFinal(final)
		}
		close(s.done)
	})
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "EOF"))
		_ = s.conn.Close()
	})
}
