package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"towncrier/internal/post"
)

// Publisher submits a composed post to one platform. Publishers do not retry;
// the next scheduled cycle is the retry unit.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, p post.Post) (postID string, err error)
}

// ErrNotConfigured is returned when a platform's credentials are absent. The
// cycle records the post as skipped instead of failed.
var ErrNotConfigured = errors.New("publisher not configured")

// Error is a publish failure for one platform.
type Error struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s publish failed with status %d: %s", e.Platform, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s publish failed: %s", e.Platform, e.Message)
}

// Terminal reports whether the failure is a credential problem that retrying
// will not fix (expired or revoked token).
func (e *Error) Terminal() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsTerminal reports whether err is a terminal publish error.
func IsTerminal(err error) bool {
	var pubErr *Error
	return errors.As(err, &pubErr) && pubErr.Terminal()
}
