package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"towncrier/pkg/llm"
	"towncrier/pkg/logging"
	"towncrier/pkg/monitoring"
)

const (
	researchTimeout     = 60 * time.Second
	defaultPause        = 2 * time.Second
	researchMaxTokens   = 1000
	researchTemperature = 0.7
)

const researchSystemPrompt = `You are a research assistant for a technology publication.
Summarize the most recent, concrete developments on the given topic: product launches,
benchmarks, funding, notable open source releases, regulatory moves.
Prefer facts with dates and numbers over opinion. Respond in plain prose, no preamble.`

type ResearcherConfig struct {
	LLM             llm.Provider
	TopicSeeds      []string
	QueriesPerCycle int
	Pause           time.Duration
	Logger          logging.Logger
	Metrics         *monitoring.PipelineMetrics
}

// Researcher gathers raw material for a cycle by querying the provider for a
// random subset of the configured topic seeds.
type Researcher struct {
	llm     llm.Provider
	seeds   []string
	queries int
	pause   time.Duration
	logger  logging.Logger
	metrics *monitoring.PipelineMetrics
}

func NewResearcher(cfg ResearcherConfig) *Researcher {
	queries := cfg.QueriesPerCycle
	if queries <= 0 {
		queries = 3
	}
	pause := cfg.Pause
	if pause <= 0 {
		pause = defaultPause
	}
	return &Researcher{
		llm:     cfg.LLM,
		seeds:   cfg.TopicSeeds,
		queries: queries,
		pause:   pause,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Research runs one completion per selected seed and returns the aggregated
// findings. Individual query failures are tolerated; an error is returned
// only when every query failed.
func (r *Researcher) Research(ctx context.Context) (string, error) {
	if r.llm == nil {
		return "", errors.New("LLM provider not configured")
	}
	if len(r.seeds) == 0 {
		return "", errors.New("no topic seeds configured")
	}

	seeds := r.pickSeeds()
	var findings []string
	var lastErr error

	for i, seed := range seeds {
		if i > 0 && r.pause > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(r.pause):
			}
		}

		result, err := r.query(ctx, seed)
		if err != nil {
			lastErr = err
			recordProviderRequest(r.metrics, "research", "error")
			r.logger.WithError(err).WithField("seed", seed).Warn("Research query failed")
			continue
		}
		recordProviderRequest(r.metrics, "research", "ok")
		findings = append(findings, fmt.Sprintf("## %s\n%s", seed, result))
	}

	if len(findings) == 0 {
		return "", fmt.Errorf("all research queries failed: %w", lastErr)
	}

	r.logger.WithFields(logging.Fields{
		"queries":   len(seeds),
		"succeeded": len(findings),
	}).Info("Research complete")

	return strings.Join(findings, "\n\n"), nil
}

func (r *Researcher) query(ctx context.Context, seed string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, researchTimeout)
	defer cancel()

	return r.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: researchSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Research recent developments in: %s", seed)},
	}, &llm.CompleteOptions{MaxTokens: researchMaxTokens, Temperature: researchTemperature})
}

func (r *Researcher) pickSeeds() []string {
	n := r.queries
	if n > len(r.seeds) {
		n = len(r.seeds)
	}
	shuffled := make([]string, len(r.seeds))
	copy(shuffled, r.seeds)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

func recordProviderRequest(m *monitoring.PipelineMetrics, kind, status string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(kind, status).Inc()
}
