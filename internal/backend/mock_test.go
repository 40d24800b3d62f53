package backend

import (
	"context"
	"testing"
	"time"
)

func TestMockReturnsCannedReply(t *testing.T) {
	mock := newMock(Config{MockDelay: time.Millisecond})

	reply, err := mock.GenerateReply(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("mock should not fail: %v", err)
	}

	found := false
	for _, candidate := range MockReplies {
		if reply == candidate {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("reply %q is not in the canned phrase set", reply)
	}
}

func TestMockHonorsCancellation(t *testing.T) {
	mock := newMock(Config{MockDelay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := mock.GenerateReply(ctx, nil, ""); err == nil {
		t.Fatalf("expected context error after cancellation")
	}
}
