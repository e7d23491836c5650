package post

import "time"

// Platform identifies a publishing target.
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformMedium   Platform = "medium"
)

// Status tracks the publish outcome of a composed post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Post is one platform-ready piece of content produced in a cycle. The
// composer creates it as a draft, the publisher records the outcome once,
// and the archive persists it. It is never mutated after archiving.
type Post struct {
	ID             string    `json:"id"`
	Platform       Platform  `json:"platform"`
	Topic          string    `json:"topic"`
	Title          string    `json:"title"`
	Body           string    `json:"content"`
	CharacterCount int       `json:"character_count"`
	CreatedAt      time.Time `json:"generated_at"`
	Status         Status    `json:"status"`
	PlatformPostID string    `json:"platform_post_id,omitempty"`
	PublishError   string    `json:"publish_error,omitempty"`
}
