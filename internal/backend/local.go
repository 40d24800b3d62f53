package backend

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alchemy-app/backend/internal/models"
)

const defaultLocalDelay = 300 * time.Millisecond

// Local wraps a named on-device model. The current implementation is a
// stub that echoes the last user message after a short simulated delay;
// real model invocation slots in behind the same contract.
type Local struct {
	modelPath string
	delay     time.Duration
}

func newLocal(cfg Config) (*Local, error) {
	path := strings.TrimSpace(cfg.LocalModelPath)
	if path == "" {
		return nil, fmt.Errorf("%w: no model path configured", ErrModelNotLoaded)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, path)
	}

	return &Local{modelPath: path, delay: defaultLocalDelay}, nil
}

func (l *Local) Kind() Kind { return KindLocal }

func (l *Local) GenerateReply(ctx context.Context, history []models.Message, _ string) (string, error) {
	timer := time.NewTimer(l.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content, nil
		}
	}

	return "Ready when you are.", nil
}
