package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"towncrier/internal/post"
	"towncrier/pkg/clients"
	"towncrier/pkg/logging"
)

const defaultMediumURL = "https://api.medium.com"

type MediumConfig struct {
	IntegrationToken string
	BaseURL          string
	Tags             []string
	Logger           logging.Logger
}

// MediumPublisher posts markdown articles through the Medium v1 API. The
// author id is resolved from /v1/me on first use and memoized for the life
// of the process.
type MediumPublisher struct {
	token    string
	baseURL  string
	tags     []string
	client   *http.Client
	logger   logging.Logger
	authorID string
}

func NewMediumPublisher(cfg MediumConfig) *MediumPublisher {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultMediumURL
	}
	tags := cfg.Tags
	if len(tags) == 0 {
		tags = []string{"artificial-intelligence", "technology", "machine-learning"}
	}
	return &MediumPublisher{
		token:   cfg.IntegrationToken,
		baseURL: baseURL,
		tags:    tags,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: clients.DefaultTransport(),
		},
		logger: cfg.Logger,
	}
}

func (p *MediumPublisher) Name() string {
	return string(post.PlatformMedium)
}

func (p *MediumPublisher) Publish(ctx context.Context, item post.Post) (string, error) {
	if p.token == "" {
		return "", fmt.Errorf("medium: %w", ErrNotConfigured)
	}

	authorID, err := p.resolveAuthorID(ctx)
	if err != nil {
		return "", err
	}

	reqBody := map[string]any{
		"title":         item.Title,
		"contentFormat": "markdown",
		"content":       item.Body,
		"publishStatus": "public",
		"tags":          p.tags,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("medium: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/users/%s/posts", p.baseURL, authorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("medium: create request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &Error{Platform: p.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &Error{
			Platform:   p.Name(),
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(detail)),
		}
	}

	var created struct {
		Data struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("medium: decode response: %w", err)
	}

	p.logger.WithFields(logging.Fields{
		"post_id": created.Data.ID,
		"url":     created.Data.URL,
	}).Info("Posted to Medium")

	return created.Data.ID, nil
}

func (p *MediumPublisher) resolveAuthorID(ctx context.Context) (string, error) {
	if p.authorID != "" {
		return p.authorID, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/me", nil)
	if err != nil {
		return "", fmt.Errorf("medium: create me request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &Error{Platform: p.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &Error{
			Platform:   p.Name(),
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(detail)),
		}
	}

	var me struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return "", fmt.Errorf("medium: decode me response: %w", err)
	}
	if me.Data.ID == "" {
		return "", &Error{Platform: p.Name(), Message: "me response contained no user id"}
	}

	p.authorID = me.Data.ID
	return p.authorID, nil
}

func (p *MediumPublisher) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
