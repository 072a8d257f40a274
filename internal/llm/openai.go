package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI talks to the OpenAI chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

type openAIConfig struct {
	baseURL    string
	httpClient *http.Client
}

type OpenAIOption func(*openAIConfig)

func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithHTTPClient routes requests through c, e.g. a SOCKS5 client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(cfg *openAIConfig) { cfg.httpClient = c }
}

func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("llm: openai api key must not be empty")
	}
	if model == "" {
		return nil, errors.New("llm: openai model must not be empty")
	}

	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// A failed cycle is reported to the user, not retried.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

func (p *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		Model: openai.ChatModel(p.model),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Backend: "openai", StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		}
		return "", fmt.Errorf("llm: openai chat completion: %w", err)
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
