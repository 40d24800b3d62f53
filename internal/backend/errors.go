package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrInvalidEndpoint means the configured endpoint is not a usable URL.
	// Reaching it at request time indicates a configuration bug.
	ErrInvalidEndpoint = errors.New("backend: invalid endpoint")

	// ErrMissingCredential is returned before any network call when no API
	// key is configured.
	ErrMissingCredential = errors.New("backend: api key is not configured")

	// ErrEmptyResponse means the completion endpoint answered with no body.
	ErrEmptyResponse = errors.New("backend: empty response")

	// ErrDecodeFailure means the response body was not the expected JSON
	// shape. A well-formed API error payload is reported as *APIError
	// instead.
	ErrDecodeFailure = errors.New("backend: malformed response")

	// ErrModelNotLoaded is returned at construction time when the named
	// local model resource cannot be located.
	ErrModelNotLoaded = errors.New("backend: model not loaded")
)

// APIError carries an error payload reported by the completion API itself.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("backend: api error (%d, %s): %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("backend: api error (%d): %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("backend: api error (%d, %s)", e.Status, e.Code)
	default:
		return fmt.Sprintf("backend: api error (%d)", e.Status)
	}
}

type apiErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type apiErrorEnvelope struct {
	Error *apiErrorPayload `json:"error,omitempty"`
}

func buildAPIError(statusCode int, body []byte) error {
	if payload := decodeAPIError(body); payload != nil {
		return &APIError{
			Status:  statusCode,
			Code:    payload.Code,
			Message: payload.Message,
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return &APIError{Status: statusCode, Message: snippet}
}
