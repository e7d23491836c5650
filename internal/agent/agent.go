package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"towncrier/internal/archive"
	"towncrier/internal/history"
	"towncrier/internal/notify"
	"towncrier/internal/post"
	"towncrier/internal/publish"
	"towncrier/pkg/logging"
	"towncrier/pkg/monitoring"
)

const (
	defaultInterval = 6 * time.Hour
	minInterval     = time.Minute
)

// Target pairs a platform with its publisher.
type Target struct {
	Platform  post.Platform
	Publisher publish.Publisher
}

type Config struct {
	Interval   time.Duration
	Researcher *Researcher
	Selector   *Selector
	Composer   *Composer
	Targets    []Target
	Archive    *archive.Store
	History    *history.Store
	Notifier   *notify.Webhook
	Metrics    *monitoring.PipelineMetrics
	Logger     logging.Logger
}

// Agent drives the content loop: research, pick a topic, compose and publish
// per platform, archive everything, repeat on the interval.
type Agent struct {
	interval   time.Duration
	researcher *Researcher
	selector   *Selector
	composer   *Composer
	targets    []Target
	archive    *archive.Store
	history    *history.Store
	notifier   *notify.Webhook
	metrics    *monitoring.PipelineMetrics
	logger     logging.Logger
}

func NewAgent(cfg Config) *Agent {
	interval := cfg.Interval
	if interval < minInterval {
		interval = defaultInterval
	}
	return &Agent{
		interval:   interval,
		researcher: cfg.Researcher,
		selector:   cfg.Selector,
		composer:   cfg.Composer,
		targets:    cfg.Targets,
		archive:    cfg.Archive,
		history:    cfg.History,
		notifier:   cfg.Notifier,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Start runs one cycle immediately, then one per interval until the context
// is cancelled. A failed cycle never stops the loop.
func (a *Agent) Start(ctx context.Context) {
	if a == nil {
		return
	}
	a.runCycle(ctx)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Content agent stopping")
			return
		case <-ticker.C:
			a.runCycle(ctx)
		}
	}
}

func (a *Agent) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithField("panic", fmt.Sprint(r)).Error("Content cycle panic")
			a.recordCycle("failed", 0)
		}
	}()

	started := time.Now()
	report, err := a.RunCycle(ctx)
	elapsed := time.Since(started)

	status := "completed"
	if err != nil {
		status = "failed"
		a.logger.WithError(err).Error("Content cycle failed")
	}
	a.recordCycle(status, elapsed)

	if a.notifier != nil {
		report.Status = status
		report.Duration = elapsed
		a.notifier.Notify(ctx, report)
	}
}

// RunCycle executes one full content cycle and returns its report. Exposed
// so operational tooling and tests can drive cycles without the ticker.
func (a *Agent) RunCycle(ctx context.Context) (notify.CycleReport, error) {
	report := notify.CycleReport{
		Service:   "towncrier",
		StartedAt: time.Now().UTC(),
	}

	research, err := a.researcher.Research(ctx)
	if err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("research: %w", err)
	}

	topic, err := a.selector.Select(ctx, research)
	if err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("select topic: %w", err)
	}
	report.Topic = topic
	a.logger.WithField("topic", topic).Info("Topic selected")

	if err := a.history.Append(history.Record{Topic: topic, UsedAt: time.Now().UTC()}); err != nil {
		// History is advisory; a failed append risks a repeat next cycle
		// but must not waste the research already paid for.
		a.logger.WithError(err).Warn("Failed to record topic in history")
	}

	for _, target := range a.targets {
		entry, err := a.publishTo(ctx, target, topic, research)
		if entry != nil {
			report.Posts = append(report.Posts, *entry)
		}
		if err != nil {
			var archiveErr *archiveError
			if errors.As(err, &archiveErr) {
				report.Error = err.Error()
				return report, err
			}
			a.logger.WithError(err).WithField("platform", target.Platform).Error("Platform pipeline failed")
		}
	}

	return report, nil
}

type archiveError struct{ err error }

func (e *archiveError) Error() string { return fmt.Sprintf("archive: %v", e.err) }
func (e *archiveError) Unwrap() error { return e.err }

// publishTo composes, publishes, and archives for one platform. The archive
// write happens regardless of the publish outcome; only an archive failure
// propagates as fatal to the cycle.
func (a *Agent) publishTo(ctx context.Context, target Target, topic, research string) (*notify.PostReport, error) {
	p, err := a.composer.Compose(ctx, target.Platform, topic, research)
	if err != nil {
		a.recordPost(target.Platform, post.StatusFailed)
		return &notify.PostReport{
			Platform: string(target.Platform),
			Status:   string(post.StatusFailed),
		}, err
	}

	postID, pubErr := target.Publisher.Publish(ctx, p)
	switch {
	case pubErr == nil:
		p.Status = post.StatusPublished
		p.PlatformPostID = postID
		a.logger.WithFields(logging.Fields{
			"platform": target.Platform,
			"post_id":  postID,
			"length":   p.CharacterCount,
		}).Info("Post published")
	case errors.Is(pubErr, publish.ErrNotConfigured):
		p.Status = post.StatusSkipped
		a.logger.WithField("platform", target.Platform).Warn("Publisher not configured, skipping")
	default:
		p.Status = post.StatusFailed
		p.PublishError = pubErr.Error()
		entry := a.logger.WithError(pubErr).WithField("platform", target.Platform)
		if publish.IsTerminal(pubErr) {
			entry.Error("Publish failed with terminal credential error")
		} else {
			entry.Error("Publish failed")
		}
	}
	a.recordPost(target.Platform, p.Status)

	path, err := a.archive.Save(p)
	if err != nil {
		return &notify.PostReport{
			Platform:   string(target.Platform),
			Status:     string(p.Status),
			PostID:     p.PlatformPostID,
			Characters: p.CharacterCount,
		}, &archiveError{err: err}
	}

	return &notify.PostReport{
		Platform:    string(target.Platform),
		Status:      string(p.Status),
		PostID:      p.PlatformPostID,
		ArchivePath: path,
		Characters:  p.CharacterCount,
	}, nil
}

func (a *Agent) recordCycle(status string, elapsed time.Duration) {
	if a.metrics == nil {
		return
	}
	a.metrics.CyclesTotal.WithLabelValues(status).Inc()
	if elapsed > 0 {
		a.metrics.CycleDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	}
}

func (a *Agent) recordPost(platform post.Platform, status post.Status) {
	if a.metrics == nil {
		return
	}
	a.metrics.PostsPublished.WithLabelValues(string(platform), string(status)).Inc()
}
