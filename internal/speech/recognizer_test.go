package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newRecognizerServer runs a fake streaming endpoint: once the first audio
// frame arrives it plays back the scripted transcript events.
func newRecognizerServer(t *testing.T, events []transcriptEvent) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Wait for audio before answering.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		for _, event := range events {
			payload, _ := json.Marshal(event)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}

		// Keep the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestRecognizerRequiresConfiguration(t *testing.T) {
	recognizer := NewRecognizer(RecognizerConfig{})
	if recognizer.RequestAuthorization() {
		t.Fatalf("an unconfigured recognizer must not authorize")
	}

	if _, err := recognizer.StartRecording(context.Background(), func(string) {}); err != ErrRecognizerUnavailable {
		t.Fatalf("expected ErrRecognizerUnavailable, got %v", err)
	}
}

func TestRecognizerDeliversPartialsAndFinal(t *testing.T) {
	server := newRecognizerServer(t, []transcriptEvent{
		{Text: "hel", IsFinal: false},
		{Text: "hello", IsFinal: false},
		{Text: "hello world", IsFinal: true},
	})
	defer server.Close()

	recognizer := NewRecognizer(RecognizerConfig{
		Endpoint:       wsURL(server),
		APIKey:         "test-key",
		SilenceTimeout: 5 * time.Second,
	})

	var finalCount atomic.Int32
	finalCh := make(chan string, 1)
	session, err := recognizer.StartRecording(context.Background(), func(final string) {
		finalCount.Add(1)
		finalCh <- final
	})
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	partials := make(chan string, 8)
	session.OnPartial = func(text string) { partials <- text }

	if err := session.SendAudio([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case final := <-finalCh:
		if final != "hello world" {
			t.Fatalf("unexpected final transcript %q", final)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the final transcript")
	}

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatalf("Done should close after the final transcript")
	}

	// Stopping afterwards must not fire the callback again.
	session.StopRecording()
	if got := finalCount.Load(); got != 1 {
		t.Fatalf("final callback fired %d times", got)
	}
}

func TestRecognizerSilenceTimeoutFinalizes(t *testing.T) {
	server := newRecognizerServer(t, []transcriptEvent{
		{Text: "partial only", IsFinal: false},
	})
	defer server.Close()

	recognizer := NewRecognizer(RecognizerConfig{
		Endpoint:       wsURL(server),
		APIKey:         "test-key",
		SilenceTimeout: 100 * time.Millisecond,
	})

	finalCh := make(chan string, 1)
	session, err := recognizer.StartRecording(context.Background(), func(final string) {
		finalCh <- final
	})
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	if err := session.SendAudio([]byte{0x01}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case final := <-finalCh:
		if final != "partial only" {
			t.Fatalf("silence timeout should finalize with the last partial, got %q", final)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("silence timeout never fired")
	}
}

func TestRecognizerStopIsIdempotent(t *testing.T) {
	server := newRecognizerServer(t, []transcriptEvent{
		{Text: "spoken so far", IsFinal: false},
	})
	defer server.Close()

	recognizer := NewRecognizer(RecognizerConfig{
		Endpoint:       wsURL(server),
		APIKey:         "test-key",
		SilenceTimeout: 5 * time.Second,
	})

	var finalCount atomic.Int32
	finalCh := make(chan string, 2)
	session, err := recognizer.StartRecording(context.Background(), func(final string) {
		finalCount.Add(1)
		finalCh <- final
	})
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	partials := make(chan string, 1)
	session.OnPartial = func(text string) { partials <- text }

	if err := session.SendAudio([]byte{0x01}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case <-partials:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the partial")
	}

	session.StopRecording()
	session.StopRecording()

	select {
	case final := <-finalCh:
		if final != "spoken so far" {
			t.Fatalf("stop should finalize with the accumulated transcript, got %q", final)
		}
	case <-time.After(time.Second):
		t.Fatalf("stop never delivered a final transcript")
	}

	if got := finalCount.Load(); got != 1 {
		t.Fatalf("final callback fired %d times", got)
	}

	if err := session.SendAudio([]byte{0x02}); err == nil {
		t.Fatalf("audio after stop should be rejected")
	}
}

func TestRecognizerDialFailure(t *testing.T) {
	recognizer := NewRecognizer(RecognizerConfig{
		Endpoint: "ws://127.0.0.1:1", // nothing listens here
		APIKey:   "test-key",
	})

	_, err := recognizer.StartRecording(context.Background(), func(string) {})
	if err == nil {
		t.Fatalf("expected a dial failure")
	}
}
