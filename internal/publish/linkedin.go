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

const (
	defaultLinkedInURL = "https://api.linkedin.com"

	// Hard ceiling of the ugcPosts API, independent of the configured
	// composer limit.
	linkedInCharLimit = 3000
)

type LinkedInConfig struct {
	AccessToken string
	AuthorURN   string
	BaseURL     string
	Logger      logging.Logger
}

// LinkedInPublisher posts share commentary through the LinkedIn ugcPosts API.
type LinkedInPublisher struct {
	accessToken string
	authorURN   string
	baseURL     string
	client      *http.Client
	logger      logging.Logger
}

func NewLinkedInPublisher(cfg LinkedInConfig) *LinkedInPublisher {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultLinkedInURL
	}
	return &LinkedInPublisher{
		accessToken: cfg.AccessToken,
		authorURN:   cfg.AuthorURN,
		baseURL:     baseURL,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: clients.DefaultTransport(),
		},
		logger: cfg.Logger,
	}
}

func (p *LinkedInPublisher) Name() string {
	return string(post.PlatformLinkedIn)
}

type ugcPostRequest struct {
	Author          string         `json:"author"`
	LifecycleState  string         `json:"lifecycleState"`
	SpecificContent map[string]any `json:"specificContent"`
	Visibility      map[string]any `json:"visibility"`
}

func (p *LinkedInPublisher) Publish(ctx context.Context, item post.Post) (string, error) {
	if p.accessToken == "" || p.authorURN == "" {
		return "", fmt.Errorf("linkedin: %w", ErrNotConfigured)
	}

	body := item.Body
	if len(body) > linkedInCharLimit {
		p.logger.WithField("length", len(body)).Warn("LinkedIn body exceeds platform limit, trimming before send")
		body = post.TrimToLimit(body, linkedInCharLimit)
	}

	reqBody := ugcPostRequest{
		Author:         p.authorURN,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": body},
				"shareMediaCategory": "NONE",
			},
		},
		Visibility: map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("linkedin: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("linkedin: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

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

	postID := resp.Header.Get("X-RestLi-Id")
	if postID == "" {
		var created struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			postID = created.ID
		}
	}

	p.logger.WithFields(logging.Fields{
		"post_id": postID,
		"length":  len(body),
	}).Info("Posted to LinkedIn")

	return postID, nil
}
