package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"towncrier/internal/post"
	"towncrier/pkg/logging"
)

func mediumPost() post.Post {
	return post.Post{
		Platform: post.PlatformMedium,
		Topic:    "Test Topic",
		Title:    "A Thoughtful Essay",
		Body:     "## Heading\n\nBody text.",
	}
}

func TestMediumPublishSuccess(t *testing.T) {
	t.Parallel()

	var meCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&meCalls, 1)
		if r.Header.Get("Authorization") != "Bearer md-token" {
			t.Fatalf("missing bearer token on /v1/me")
		}
		fmt.Fprint(w, `{"data":{"id":"user-9"}}`)
	})
	mux.HandleFunc("/v1/users/user-9/posts", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["contentFormat"] != "markdown" {
			t.Fatalf("unexpected content format %v", req["contentFormat"])
		}
		if req["title"] != "A Thoughtful Essay" {
			t.Fatalf("unexpected title %v", req["title"])
		}
		if req["publishStatus"] != "public" {
			t.Fatalf("unexpected publish status %v", req["publishStatus"])
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"post-7","url":"https://medium.com/@u/post-7"}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	pub := NewMediumPublisher(MediumConfig{
		IntegrationToken: "md-token",
		BaseURL:          server.URL,
		Logger:           logging.NewTestLogger(),
	})

	id, err := pub.Publish(context.Background(), mediumPost())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id != "post-7" {
		t.Fatalf("unexpected post id %q", id)
	}

	// Author id is memoized: a second publish must not hit /v1/me again.
	if _, err := pub.Publish(context.Background(), mediumPost()); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if atomic.LoadInt32(&meCalls) != 1 {
		t.Fatalf("expected one /v1/me call, got %d", meCalls)
	}
}

func TestMediumPublishUnauthorizedIsTerminal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors":[{"message":"Token was invalid"}]}`)
	}))
	defer server.Close()

	pub := NewMediumPublisher(MediumConfig{
		IntegrationToken: "revoked",
		BaseURL:          server.URL,
		Logger:           logging.NewTestLogger(),
	})

	_, err := pub.Publish(context.Background(), mediumPost())
	var pubErr *Error
	if !errors.As(err, &pubErr) {
		t.Fatalf("expected publish.Error, got %v", err)
	}
	if pubErr.StatusCode != http.StatusUnauthorized || !pubErr.Terminal() {
		t.Fatalf("401 must be terminal, got %+v", pubErr)
	}
}

func TestMediumPublishNotConfigured(t *testing.T) {
	t.Parallel()

	pub := NewMediumPublisher(MediumConfig{Logger: logging.NewTestLogger()})
	_, err := pub.Publish(context.Background(), mediumPost())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestMediumPublishMissingUserID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer server.Close()

	pub := NewMediumPublisher(MediumConfig{
		IntegrationToken: "md-token",
		BaseURL:          server.URL,
		Logger:           logging.NewTestLogger(),
	})

	if _, err := pub.Publish(context.Background(), mediumPost()); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}
