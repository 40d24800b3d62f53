package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSynthesizerSpeak(t *testing.T) {
	var gotRequest ttsAPIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte("fake-mp3-bytes"))
	}))
	defer server.Close()

	var sunk []byte
	synthesizer := NewSynthesizer(SynthesizerConfig{
		Endpoint: server.URL,
		APIKey:   "sk-test",
		Voice:    "nova",
		Rate:     1.25,
		Sink:     func(audio []byte) { sunk = audio },
	})

	if err := synthesizer.Speak(context.Background(), "hello world"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if string(sunk) != "fake-mp3-bytes" {
		t.Fatalf("sink received %q", sunk)
	}
	if gotRequest.Input != "hello world" {
		t.Fatalf("unexpected input %q", gotRequest.Input)
	}
	if gotRequest.Voice != "nova" {
		t.Fatalf("unexpected voice %q", gotRequest.Voice)
	}
	if gotRequest.Speed != 1.25 {
		t.Fatalf("unexpected speed %v", gotRequest.Speed)
	}
}

func TestSynthesizerSkipsBlankText(t *testing.T) {
	synthesizer := NewSynthesizer(SynthesizerConfig{Endpoint: "https://example.com", APIKey: "sk"})

	if err := synthesizer.Speak(context.Background(), "   "); err != nil {
		t.Fatalf("blank text is a no-op, got %v", err)
	}
}

func TestSynthesizerRequiresCredential(t *testing.T) {
	synthesizer := NewSynthesizer(SynthesizerConfig{Endpoint: "https://example.com"})

	if err := synthesizer.Speak(context.Background(), "hello"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestSynthesizerSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"unsupported voice"}}`))
	}))
	defer server.Close()

	synthesizer := NewSynthesizer(SynthesizerConfig{Endpoint: server.URL, APIKey: "sk-test"})

	err := synthesizer.Speak(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "unsupported voice") {
		t.Fatalf("expected the upstream message in the error, got %v", err)
	}
}

func TestSynthesizerRejectsEmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with nothing in it.
	}))
	defer server.Close()

	synthesizer := NewSynthesizer(SynthesizerConfig{Endpoint: server.URL, APIKey: "sk-test"})

	if err := synthesizer.Speak(context.Background(), "hello"); err == nil {
		t.Fatalf("expected an error for an empty audio body")
	}
}

func TestSynthesizerSetVoice(t *testing.T) {
	var gotRequest ttsAPIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotRequest)
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	synthesizer := NewSynthesizer(SynthesizerConfig{Endpoint: server.URL, APIKey: "sk-test"})
	synthesizer.SetVoice("shimmer", 0.75)

	if err := synthesizer.Speak(context.Background(), "hi"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if gotRequest.Voice != "shimmer" || gotRequest.Speed != 0.75 {
		t.Fatalf("SetVoice not applied: %+v", gotRequest)
	}
}
