package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"towncrier/internal/history"
	"towncrier/pkg/llm"
	"towncrier/pkg/logging"
	"towncrier/pkg/monitoring"
)

const (
	selectTimeout     = 30 * time.Second
	maxSelectAttempts = 3

	// A short, slightly hotter completion: topics are one phrase and
	// benefit from variety across cycles.
	topicMaxTokens   = 100
	topicTemperature = 0.8
)

const topicSystemPrompt = `You pick the single most compelling article topic from research findings.
Pick something specific and timely, not a broad evergreen theme.
Do not pick any topic from the recently-covered list.
Respond with ONLY the topic as a short phrase, no quotes, nothing else.`

type SelectorConfig struct {
	LLM       llm.Provider
	History   *history.Store
	Fallbacks []string
	Window    int
	Logger    logging.Logger
	Metrics   *monitoring.PipelineMetrics
}

// Selector turns aggregated research into one topic that has not been
// covered within the exclusion window.
type Selector struct {
	llm       llm.Provider
	history   *history.Store
	fallbacks []string
	window    int
	logger    logging.Logger
	metrics   *monitoring.PipelineMetrics
}

func NewSelector(cfg SelectorConfig) *Selector {
	window := cfg.Window
	if window <= 0 {
		window = 10
	}
	return &Selector{
		llm:       cfg.LLM,
		history:   cfg.History,
		fallbacks: cfg.Fallbacks,
		window:    window,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Select proposes a topic from the research, retrying on duplicates before
// falling back to the configured topic list. The history file is not touched
// here; the caller records the topic once it commits to using it.
func (s *Selector) Select(ctx context.Context, research string) (string, error) {
	if s.llm == nil {
		return "", errors.New("LLM provider not configured")
	}

	prompt := s.buildSelectPrompt(research)
	for attempt := 1; attempt <= maxSelectAttempts; attempt++ {
		topic, err := s.generate(ctx, prompt)
		if err != nil {
			recordProviderRequest(s.metrics, "topic", "error")
			s.logger.WithError(err).WithField("attempt", attempt).Warn("Topic generation failed")
			continue
		}
		recordProviderRequest(s.metrics, "topic", "ok")

		topic = cleanTopic(topic)
		if topic == "" {
			continue
		}
		if s.history.Contains(topic, s.window) {
			s.logger.WithFields(logging.Fields{
				"topic":   topic,
				"attempt": attempt,
			}).Debug("Topic recently covered, regenerating")
			continue
		}
		return topic, nil
	}

	return s.fallbackTopic()
}

func (s *Selector) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, selectTimeout)
	defer cancel()

	return s.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: topicSystemPrompt},
		{Role: "user", Content: prompt},
	}, &llm.CompleteOptions{MaxTokens: topicMaxTokens, Temperature: topicTemperature})
}

// fallbackTopic picks a random configured fallback, preferring one outside
// the exclusion window. When every fallback is excluded the first one is
// used anyway so the cycle can still run.
func (s *Selector) fallbackTopic() (string, error) {
	if len(s.fallbacks) == 0 {
		return "", errors.New("no usable topic: generation exhausted and no fallback topics configured")
	}

	start := rand.Intn(len(s.fallbacks))
	for i := range s.fallbacks {
		candidate := s.fallbacks[(start+i)%len(s.fallbacks)]
		if !s.history.Contains(candidate, s.window) {
			s.logger.WithField("topic", candidate).Info("Using fallback topic")
			return candidate, nil
		}
	}

	s.logger.WithField("topic", s.fallbacks[0]).Warn("All fallback topics recently covered, reusing first")
	return s.fallbacks[0], nil
}

func (s *Selector) buildSelectPrompt(research string) string {
	var b strings.Builder
	b.WriteString("Research findings:\n")
	b.WriteString(research)
	b.WriteString("\n\n")

	if recent := s.history.RecentTopics(s.window); len(recent) > 0 {
		b.WriteString("Recently covered (do not repeat):\n")
		for _, topic := range recent {
			fmt.Fprintf(&b, "- %s\n", topic)
		}
	}

	return b.String()
}

// cleanTopic strips the quoting and label decoration models tend to add.
func cleanTopic(topic string) string {
	topic = strings.TrimSpace(topic)
	topic = strings.Trim(topic, `"'`)
	topic = strings.TrimPrefix(topic, "Topic:")
	return strings.TrimSpace(topic)
}
