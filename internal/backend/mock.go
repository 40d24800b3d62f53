package backend

import (
	"context"
	"math/rand"
	"time"

	"github.com/alchemy-app/backend/internal/models"
)

const defaultMockDelay = 600 * time.Millisecond

// MockReplies is the fixed phrase set the mock strategy draws from.
var MockReplies = []string{
	"That's an interesting thought. Tell me more.",
	"I see what you mean. Could you expand on that?",
	"Absolutely, that sounds reasonable to me.",
	"Hmm, I'd look at it from another angle.",
	"Good question. Let me think about it out loud with you.",
	"Noted. What would you like to explore next?",
}

// Mock ignores its input and returns a pseudo-random canned reply after a
// fixed artificial delay. It never fails on its own.
type Mock struct {
	delay time.Duration
}

func newMock(cfg Config) *Mock {
	delay := cfg.MockDelay
	if delay <= 0 {
		delay = defaultMockDelay
	}
	return &Mock{delay: delay}
}

func (m *Mock) Kind() Kind { return KindMock }

func (m *Mock) GenerateReply(ctx context.Context, _ []models.Message, _ string) (string, error) {
	timer := time.NewTimer(m.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	return MockReplies[rand.Intn(len(MockReplies))], nil
}
