package backend

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 20 * time.Second

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

func newDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

func decodeAPIError(body []byte) *apiErrorPayload {
	if len(body) == 0 {
		return nil
	}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	if envelope.Error == nil {
		return nil
	}

	envelope.Error.Message = strings.TrimSpace(envelope.Error.Message)
	return envelope.Error
}
