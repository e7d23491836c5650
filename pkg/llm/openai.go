package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"towncrier/pkg/clients"
)

const defaultPerplexityURL = "https://api.perplexity.ai"

// OpenAIProvider speaks the OpenAI chat-completions dialect, which Perplexity
// and most hosted completion gateways also serve.
type OpenAIProvider struct {
	client      *http.Client
	executor    failsafe.Executor[*http.Response]
	shouldRetry func(resp *http.Response, err error) bool
	apiKey      string
	apiURL      string
	model       string
	maxTokens   int
	temperature float64
}

type Option func(*OpenAIProvider)

func NewOpenAIProvider(cfg Config, opts ...Option) *OpenAIProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultPerplexityURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	execCfg := clients.DefaultHTTPExecutorConfig()
	p := &OpenAIProvider{
		client: &http.Client{
			Timeout:   60 * time.Second,
			Transport: clients.DefaultTransport(),
		},
		executor:    clients.NewHTTPExecutor(execCfg),
		shouldRetry: execCfg.ShouldRetry,
		apiKey:      cfg.APIKey,
		apiURL:      apiURL,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func WithHTTPClient(client *http.Client) Option {
	return func(p *OpenAIProvider) {
		if client != nil {
			p.client = client
		}
	}
}

func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(p *OpenAIProvider) {
		p.executor = clients.NewHTTPExecutor(cfg)
		p.shouldRetry = cfg.ShouldRetry
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message, opts *CompleteOptions) (string, error) {
	if p.model == "" {
		return "", errors.New("completion model is required")
	}
	reqBody := chatRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: p.maxTokens,
	}
	if p.temperature > 0 {
		reqBody.Temperature = &p.temperature
	}
	if opts != nil {
		if opts.MaxTokens > 0 {
			reqBody.MaxTokens = opts.MaxTokens
		}
		if opts.Temperature > 0 {
			temp := opts.Temperature
			reqBody.Temperature = &temp
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("completion: marshal request: %w", err)
	}

	resp, err := clients.ExecuteHTTP(ctx, p.executor, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/chat/completions", bytes.NewReader(payload))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}
		resp, doErr := p.client.Do(req)
		if p.shouldRetry != nil && p.shouldRetry(resp, doErr) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, doErr
	})
	if err != nil {
		return "", fmt.Errorf("completion: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("completion: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("completion: response contained no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
