package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/alchemy-app/backend/internal/models"
)

const (
	defaultRemoteEndpoint = "https://api.openai.com/v1"
	defaultRemoteModel    = "gpt-3.5-turbo"
)

// Remote issues one chat-completion request per reply against an
// OpenAI-compatible endpoint. A non-empty system prompt is prepended as a
// synthetic leading message; the response's first choice is the reply.
type Remote struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      httpDoer
	logger      *zap.SugaredLogger
}

func newRemote(cfg Config) (*Remote, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if base == "" {
		base = defaultRemoteEndpoint
	}

	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, cfg.Endpoint)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultRemoteModel
	}

	return &Remote{
		endpoint:    base,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      cfg.doer(),
		logger:      cfg.Logger,
	}, nil
}

func (r *Remote) Kind() Kind { return KindRemote }

func (r *Remote) GenerateReply(ctx context.Context, history []models.Message, systemPrompt string) (string, error) {
	if r.apiKey == "" {
		return "", ErrMissingCredential
	}

	payload := chatAPIRequest{
		Model:    r.model,
		Messages: buildWireMessages(history, systemPrompt),
	}
	if r.temperature > 0 {
		payload.Temperature = r.temperature
	}
	if r.maxTokens > 0 {
		payload.MaxTokens = r.maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	endpoint := r.endpoint + "/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+r.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := r.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("call chat api: %w", err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return "", ErrEmptyResponse
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", buildAPIError(response.StatusCode, respBody)
	}

	var apiResp chatAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", &APIError{
			Status:  response.StatusCode,
			Code:    apiResp.Error.Code,
			Message: apiResp.Error.Message,
		}
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrDecodeFailure)
	}

	reply := apiResp.Choices[0].Message.Content
	if r.logger != nil && apiResp.Usage != nil {
		r.logger.Debugw("chat completion finished",
			"model", r.model,
			"prompt_tokens", apiResp.Usage.PromptTokens,
			"completion_tokens", apiResp.Usage.CompletionTokens,
		)
	}

	return reply, nil
}

func buildWireMessages(history []models.Message, systemPrompt string) []wireMessage {
	messages := make([]wireMessage, 0, len(history)+1)

	if prompt := strings.TrimSpace(systemPrompt); prompt != "" {
		messages = append(messages, wireMessage{Role: models.RoleSystem, Content: prompt})
	}

	for _, msg := range history {
		messages = append(messages, wireMessage{Role: msg.Role, Content: msg.Content})
	}

	return messages
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatAPIRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatAPIChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatAPIResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Choices []chatAPIChoice  `json:"choices"`
	Usage   *chatUsage       `json:"usage"`
	Error   *apiErrorPayload `json:"error,omitempty"`
}
