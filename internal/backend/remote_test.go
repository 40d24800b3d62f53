package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alchemy-app/backend/internal/models"
)

func newTestRemote(t *testing.T, serverURL, apiKey string) *Remote {
	t.Helper()
	remote, err := newRemote(Config{
		Endpoint: serverURL,
		APIKey:   apiKey,
		Model:    "test-model",
	})
	if err != nil {
		t.Fatalf("newRemote: %v", err)
	}
	return remote
}

func TestRemoteGenerateReply(t *testing.T) {
	var gotRequest chatAPIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("decode request: %v", err)
		}

		_ = json.NewEncoder(w).Encode(chatAPIResponse{
			Choices: []chatAPIChoice{{Message: wireMessage{Role: models.RoleAssistant, Content: "hello there"}}},
		})
	}))
	defer server.Close()

	remote := newTestRemote(t, server.URL, "sk-test")

	history := []models.Message{models.NewMessage(models.RoleUser, "hi")}
	reply, err := remote.GenerateReply(context.Background(), history, "act helpful")
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply != "hello there" {
		t.Fatalf("unexpected reply %q", reply)
	}

	if gotRequest.Model != "test-model" {
		t.Fatalf("unexpected model %q", gotRequest.Model)
	}
	if len(gotRequest.Messages) != 2 {
		t.Fatalf("expected system prompt plus one turn, got %d messages", len(gotRequest.Messages))
	}
	if gotRequest.Messages[0].Role != models.RoleSystem || gotRequest.Messages[0].Content != "act helpful" {
		t.Fatalf("expected prepended system prompt, got %+v", gotRequest.Messages[0])
	}
	if gotRequest.Messages[1].Content != "hi" {
		t.Fatalf("expected user turn, got %+v", gotRequest.Messages[1])
	}
}

func TestRemoteMissingCredentialShortCircuits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	remote := newTestRemote(t, server.URL, "")

	_, err := remote.GenerateReply(context.Background(), nil, "")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("no network call should happen without a credential")
	}
}

func TestRemoteAPIErrorCarriesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	remote := newTestRemote(t, server.URL, "sk-bad")

	_, err := remote.GenerateReply(context.Background(), nil, "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", apiErr.Status)
	}
	if apiErr.Message != "Incorrect API key provided" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestRemoteEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with nothing in it.
	}))
	defer server.Close()

	remote := newTestRemote(t, server.URL, "sk-test")

	_, err := remote.GenerateReply(context.Background(), nil, "")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestRemoteMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	remote := newTestRemote(t, server.URL, "sk-test")

	_, err := remote.GenerateReply(context.Background(), nil, "")
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure, got %v", err)
	}
}

func TestRemoteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	remote := newTestRemote(t, server.URL, "sk-test")

	_, err := remote.GenerateReply(context.Background(), nil, "")
	if !errors.Is(err, ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure for a choiceless response, got %v", err)
	}
}

func TestRemoteTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	remote := newTestRemote(t, server.URL, "sk-test")

	if _, err := remote.GenerateReply(context.Background(), nil, ""); err == nil {
		t.Fatalf("expected a transport error against a closed server")
	}
}

func TestBuildWireMessagesSkipsBlankPrompt(t *testing.T) {
	history := []models.Message{models.NewMessage(models.RoleUser, "hi")}

	messages := buildWireMessages(history, "   ")
	if len(messages) != 1 {
		t.Fatalf("a blank prompt must not be prepended, got %d messages", len(messages))
	}
}
