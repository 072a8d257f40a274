package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// Compat talks to any OpenAI-compatible server (llama.cpp, Ollama, vLLM).
type Compat struct {
	client *goopenai.Client
	model  string
}

// NewCompat builds a client for baseURL, e.g. "http://localhost:11434/v1".
// apiKey may be empty for local servers.
func NewCompat(baseURL, apiKey, model string, httpClient *http.Client) (*Compat, error) {
	if baseURL == "" {
		return nil, errors.New("llm: compat base url must not be empty")
	}
	if model == "" {
		return nil, errors.New("llm: compat model must not be empty")
	}

	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	return &Compat{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (p *Compat) Complete(ctx context.Context, req Request) (string, error) {
	creq := goopenai.ChatCompletionRequest{
		Model: p.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
		// go-openai omits a zero temperature from the request body.
		if creq.Temperature == 0 {
			creq.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{Backend: "compat", StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		var reqErr *goopenai.RequestError
		if errors.As(err, &reqErr) {
			return "", &StatusError{Backend: "compat", StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
		}
		return "", fmt.Errorf("llm: compat chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
