package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"towncrier/internal/post"
	"towncrier/pkg/llm"
	"towncrier/pkg/logging"
	"towncrier/pkg/monitoring"
)

const (
	composeTimeout       = 90 * time.Second
	linkedInSafetyMargin = 250
	mediumSafetyMargin   = 500

	// Hotter than research so phrasing varies between cycles.
	composeTemperature = 0.85
)

const linkedInSystemPrompt = `You write LinkedIn posts for a technology audience.
Start with a strong hook line that doubles as the title.
Be conversational and concrete, with a clear takeaway. End with 3-5 relevant hashtags.
Respond with ONLY the post text.`

const mediumSystemPrompt = `You write Medium articles for a technology audience.
The first line is the article title. Structure the body with ## markdown headings,
open with context and close with a forward-looking conclusion.
Respond with ONLY the article in markdown.`

// CompositionError wraps a provider failure during content generation.
type CompositionError struct {
	Platform post.Platform
	Err      error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("compose for %s: %v", e.Platform, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

type ComposerConfig struct {
	LLM          llm.Provider
	Tone         string
	AvoidPhrases []string
	Limits       map[post.Platform]int
	Logger       logging.Logger
	Metrics      *monitoring.PipelineMetrics
}

// Composer generates platform-ready posts from a topic and its research.
type Composer struct {
	llm          llm.Provider
	tone         string
	avoidPhrases []string
	limits       map[post.Platform]int
	logger       logging.Logger
	metrics      *monitoring.PipelineMetrics
}

func NewComposer(cfg ComposerConfig) *Composer {
	return &Composer{
		llm:          cfg.LLM,
		tone:         cfg.Tone,
		avoidPhrases: cfg.AvoidPhrases,
		limits:       cfg.Limits,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// Compose generates one post for the platform. The returned body is
// guaranteed to fit within the platform limit: one regeneration with an
// explicit length reminder, then a boundary-aware trim.
func (c *Composer) Compose(ctx context.Context, platform post.Platform, topic, research string) (post.Post, error) {
	limit := c.limits[platform]
	if limit <= 0 {
		return post.Post{}, &CompositionError{Platform: platform, Err: fmt.Errorf("no character limit configured")}
	}

	prompt := c.buildComposePrompt(platform, topic, research, limit)
	body, err := c.generate(ctx, platform, prompt)
	if err != nil {
		recordProviderRequest(c.metrics, "compose", "error")
		return post.Post{}, &CompositionError{Platform: platform, Err: err}
	}
	recordProviderRequest(c.metrics, "compose", "ok")

	if len(body) > limit {
		c.logger.WithFields(logging.Fields{
			"platform": platform,
			"length":   len(body),
			"limit":    limit,
		}).Debug("Composed post too long, regenerating")

		reminder := fmt.Sprintf("%s\n\nIMPORTANT: Your previous response was too long. Keep it under %d characters.", prompt, limit)
		body, err = c.generate(ctx, platform, reminder)
		if err != nil {
			recordProviderRequest(c.metrics, "compose", "error")
			return post.Post{}, &CompositionError{Platform: platform, Err: err}
		}
		recordProviderRequest(c.metrics, "compose", "ok")

		if len(body) > limit {
			body = post.TrimToLimit(body, limit)
		}
	}

	p := post.Post{
		ID:             uuid.NewString(),
		Platform:       platform,
		Topic:          topic,
		Title:          extractTitle(body),
		Body:           body,
		CharacterCount: len(body),
		CreatedAt:      time.Now().UTC(),
		Status:         post.StatusDraft,
	}

	if c.metrics != nil {
		c.metrics.ComposeCharacters.WithLabelValues(string(platform)).Set(float64(len(body)))
	}

	return p, nil
}

func (c *Composer) generate(ctx context.Context, platform post.Platform, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, composeTimeout)
	defer cancel()

	system := linkedInSystemPrompt
	if platform == post.PlatformMedium {
		system = mediumSystemPrompt
	}

	return c.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}, &llm.CompleteOptions{Temperature: composeTemperature})
}

func (c *Composer) buildComposePrompt(platform post.Platform, topic, research string, limit int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write about: %s\n\n", topic)
	fmt.Fprintf(&b, "Target length: about %d characters, never more than %d.\n", targetLength(platform, limit), limit)
	if c.tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", c.tone)
	}
	if len(c.avoidPhrases) > 0 {
		fmt.Fprintf(&b, "Never use these phrases: %s.\n", strings.Join(c.avoidPhrases, ", "))
	}
	b.WriteString("\nResearch findings to draw from:\n")
	b.WriteString(research)

	return b.String()
}

func targetLength(platform post.Platform, limit int) int {
	margin := linkedInSafetyMargin
	if platform == post.PlatformMedium {
		margin = mediumSafetyMargin
	}
	if limit <= margin {
		return limit
	}
	return limit - margin
}

// extractTitle takes the first non-empty line and strips markdown and
// decoration so archives and publish payloads get a clean title.
func extractTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "#")
		line = strings.ReplaceAll(line, "**", "")
		line = strings.Trim(line, ` "'*_`)
		return line
	}
	return ""
}
