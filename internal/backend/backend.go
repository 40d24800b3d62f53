// Package backend holds the interchangeable reply-generation strategies
// behind a single capability contract: given the full message history and
// a system prompt, produce one assistant reply.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alchemy-app/backend/internal/models"
)

// Kind names a reply-generation strategy.
type Kind string

const (
	KindMock   Kind = "mock"
	KindRemote Kind = "openai"
	KindLocal  Kind = "local"
)

// ParseKind maps a stored or user-supplied string onto a Kind.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mock", "":
		return KindMock, nil
	case "openai", "remote", "real":
		return KindRemote, nil
	case "local", "coreml":
		return KindLocal, nil
	default:
		return "", fmt.Errorf("backend: unknown kind %q", raw)
	}
}

// Backend produces a single assistant reply for the given history. A failed
// attempt surfaces immediately; no variant retries.
type Backend interface {
	Kind() Kind
	GenerateReply(ctx context.Context, history []models.Message, systemPrompt string) (string, error)
}

// Config carries the parameters the factory needs to construct any variant.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int

	LocalModelPath string

	MockDelay time.Duration

	// Client overrides the default HTTP client; used by tests.
	Client *http.Client

	Logger *zap.SugaredLogger
}

func (c Config) doer() httpDoer {
	if c.Client != nil {
		return c.Client
	}
	return newDefaultHTTPClient()
}

// New constructs the strategy for the requested kind. This is the only
// place variants are chosen.
func New(kind Kind, cfg Config) (Backend, error) {
	switch kind {
	case KindMock:
		return newMock(cfg), nil
	case KindRemote:
		return newRemote(cfg)
	case KindLocal:
		return newLocal(cfg)
	default:
		return nil, fmt.Errorf("backend: unknown kind %q", kind)
	}
}
