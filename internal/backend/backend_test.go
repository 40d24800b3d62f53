package backend

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		raw  string
		want Kind
	}{
		{"", KindMock},
		{"mock", KindMock},
		{"MOCK", KindMock},
		{"openai", KindRemote},
		{"remote", KindRemote},
		{"real", KindRemote},
		{"local", KindLocal},
		{"coreml", KindLocal},
	}

	for _, tc := range cases {
		got, err := ParseKind(tc.raw)
		if err != nil {
			t.Fatalf("ParseKind(%q) returned error: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseKind(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}

	if _, err := ParseKind("banana"); err == nil {
		t.Fatalf("expected an error for an unknown kind")
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(Kind("banana"), Config{}); err == nil {
		t.Fatalf("expected an error for an unknown kind")
	}
}

func TestNewRemoteRejectsBadEndpoint(t *testing.T) {
	_, err := New(KindRemote, Config{Endpoint: "not a url"})
	if !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("expected ErrInvalidEndpoint, got %v", err)
	}
}

func TestNewLocalRequiresModelPath(t *testing.T) {
	_, err := New(KindLocal, Config{})
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}

	_, err = New(KindLocal, Config{LocalModelPath: "/nonexistent/model.bin"})
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded for a missing file, got %v", err)
	}
}
