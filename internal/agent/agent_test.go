package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"towncrier/internal/archive"
	"towncrier/internal/history"
	"towncrier/internal/post"
	"towncrier/internal/publish"
	"towncrier/pkg/llm"
	"towncrier/pkg/logging"
)

// scriptedProvider returns canned completions in order, repeating the last
// one once the script is exhausted. Prompts are recorded for assertions.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     [][]llm.Message
	opts      []*llm.CompleteOptions
}

func (p *scriptedProvider) Complete(_ context.Context, messages []llm.Message, opts *llm.CompleteOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, messages)
	p.opts = append(p.opts, opts)

	idx := len(p.calls) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	if idx < len(p.errs) && p.errs[idx] != nil {
		return "", p.errs[idx]
	}
	return p.responses[idx], nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakePublisher struct {
	name      string
	id        string
	err       error
	mu        sync.Mutex
	published []post.Post
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) Publish(_ context.Context, p post.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, p)
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func openTestHistory(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.jsonl"), logging.NewTestLogger())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	return store
}

func openTestArchive(t *testing.T) (*archive.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := archive.NewStore(dir, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	return store, dir
}

func newTestAgent(t *testing.T, provider llm.Provider, targets []Target, hist *history.Store, arch *archive.Store) *Agent {
	t.Helper()
	logger := logging.NewTestLogger()
	return NewAgent(Config{
		Researcher: NewResearcher(ResearcherConfig{
			LLM:             provider,
			TopicSeeds:      []string{"edge inference"},
			QueriesPerCycle: 1,
			Pause:           time.Millisecond,
			Logger:          logger,
		}),
		Selector: NewSelector(SelectorConfig{
			LLM:       provider,
			History:   hist,
			Fallbacks: []string{"open video standards"},
			Window:    10,
			Logger:    logger,
		}),
		Composer: NewComposer(ComposerConfig{
			LLM: provider,
			Limits: map[post.Platform]int{
				post.PlatformLinkedIn: 3000,
				post.PlatformMedium:   5000,
			},
			Logger: logger,
		}),
		Targets: targets,
		Archive: arch,
		History: hist,
		Logger:  logger,
	})
}

func TestRunCyclePublishesAndArchives(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"research findings about edge inference",
		"Edge inference topic",
		"LinkedIn hook line\n\nBody of the LinkedIn post. #ai",
		"Medium Title\n\n## Section\n\nBody of the Medium article.",
	}}
	linkedin := &fakePublisher{name: "linkedin", id: "urn:li:share:1"}
	medium := &fakePublisher{name: "medium", id: "med-1"}
	hist := openTestHistory(t)
	arch, dir := openTestArchive(t)

	agent := newTestAgent(t, provider, []Target{
		{Platform: post.PlatformLinkedIn, Publisher: linkedin},
		{Platform: post.PlatformMedium, Publisher: medium},
	}, hist, arch)

	report, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	if report.Topic != "Edge inference topic" {
		t.Errorf("unexpected topic %q", report.Topic)
	}
	if len(report.Posts) != 2 {
		t.Fatalf("expected 2 post reports, got %d", len(report.Posts))
	}
	for _, pr := range report.Posts {
		if pr.Status != string(post.StatusPublished) {
			t.Errorf("platform %s: expected published, got %s", pr.Platform, pr.Status)
		}
		if pr.ArchivePath == "" {
			t.Errorf("platform %s: missing archive path", pr.Platform)
		}
	}

	if len(linkedin.published) != 1 || len(medium.published) != 1 {
		t.Fatalf("expected one publish per platform, got %d/%d", len(linkedin.published), len(medium.published))
	}
	if got := linkedin.published[0].Topic; got != "Edge inference topic" {
		t.Errorf("published post carries topic %q", got)
	}

	if !hist.Contains("Edge inference topic", 10) {
		t.Error("expected topic to be recorded in history")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("expected 4 archive files (json+txt per platform), got %d", len(entries))
	}
}

func TestRunCycleFailsWhenResearchFails(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{""},
		errs:      []error{errors.New("provider down")},
	}
	hist := openTestHistory(t)
	arch, _ := openTestArchive(t)
	linkedin := &fakePublisher{name: "linkedin"}

	agent := newTestAgent(t, provider, []Target{
		{Platform: post.PlatformLinkedIn, Publisher: linkedin},
	}, hist, arch)

	if _, err := agent.RunCycle(context.Background()); err == nil {
		t.Fatal("expected cycle error when research fails")
	}
	if hist.Len() != 0 {
		t.Error("research failure must leave history untouched")
	}
	if len(linkedin.published) != 0 {
		t.Error("nothing should be published when research fails")
	}
}

func TestRunCycleIsolatesPublishFailures(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"research", "topic one",
		"LinkedIn post body",
		"Medium post body",
	}}
	linkedin := &fakePublisher{name: "linkedin", err: &publish.Error{Platform: "linkedin", StatusCode: 502, Message: "bad gateway"}}
	medium := &fakePublisher{name: "medium", id: "med-2"}
	hist := openTestHistory(t)
	arch, dir := openTestArchive(t)

	agent := newTestAgent(t, provider, []Target{
		{Platform: post.PlatformLinkedIn, Publisher: linkedin},
		{Platform: post.PlatformMedium, Publisher: medium},
	}, hist, arch)

	report, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("a publish failure must not fail the cycle: %v", err)
	}

	byPlatform := map[string]string{}
	for _, pr := range report.Posts {
		byPlatform[pr.Platform] = pr.Status
	}
	if byPlatform["linkedin"] != string(post.StatusFailed) {
		t.Errorf("linkedin status = %q, want failed", byPlatform["linkedin"])
	}
	if byPlatform["medium"] != string(post.StatusPublished) {
		t.Errorf("medium status = %q, want published", byPlatform["medium"])
	}

	// Failed posts are archived too.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 4 {
		t.Errorf("expected archives for both platforms, got %d files", len(entries))
	}
}

func TestRunCycleSkipsUnconfiguredPublisher(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"research", "topic two", "post body",
	}}
	medium := &fakePublisher{name: "medium", err: publish.ErrNotConfigured}
	hist := openTestHistory(t)
	arch, _ := openTestArchive(t)

	agent := newTestAgent(t, provider, []Target{
		{Platform: post.PlatformMedium, Publisher: medium},
	}, hist, arch)

	report, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unconfigured publisher must not fail the cycle: %v", err)
	}
	if len(report.Posts) != 1 || report.Posts[0].Status != string(post.StatusSkipped) {
		t.Errorf("expected skipped status, got %+v", report.Posts)
	}
}

func TestRunCycleAbortsOnArchiveFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("archive permission test requires non-root")
	}
	provider := &scriptedProvider{responses: []string{
		"research", "topic three", "post body",
	}}
	hist := openTestHistory(t)
	arch, dir := openTestArchive(t)
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	agent := newTestAgent(t, provider, []Target{
		{Platform: post.PlatformLinkedIn, Publisher: &fakePublisher{name: "linkedin", id: "x"}},
	}, hist, arch)

	if _, err := agent.RunCycle(context.Background()); err == nil {
		t.Fatal("expected cycle error when the archive is unwritable")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"research", "topic four", "post body",
	}}
	hist := openTestHistory(t)
	arch, _ := openTestArchive(t)

	agent := newTestAgent(t, provider, []Target{
		{Platform: post.PlatformLinkedIn, Publisher: &fakePublisher{name: "linkedin", id: "x"}},
	}, hist, arch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agent.Start(ctx)
		close(done)
	}()

	// Let the immediate cycle run, then cancel.
	deadline := time.After(2 * time.Second)
	for provider.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatal("initial cycle never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestRunCycleSurvivesComposerFailureForOnePlatform(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{"research", "topic five", "", "Medium body"},
		errs:      []error{nil, nil, errors.New("model overloaded"), nil},
	}
	medium := &fakePublisher{name: "medium", id: "med-3"}
	hist := openTestHistory(t)
	arch, _ := openTestArchive(t)

	agent := newTestAgent(t, provider, []Target{
		{Platform: post.PlatformLinkedIn, Publisher: &fakePublisher{name: "linkedin"}},
		{Platform: post.PlatformMedium, Publisher: medium},
	}, hist, arch)

	report, err := agent.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("composer failure on one platform must not fail the cycle: %v", err)
	}
	if len(medium.published) != 1 {
		t.Error("medium should still publish when linkedin composition fails")
	}
	var sawFailed bool
	for _, pr := range report.Posts {
		if pr.Platform == "linkedin" && pr.Status == string(post.StatusFailed) {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Errorf("expected a failed linkedin entry in the report: %+v", report.Posts)
	}
}

func TestNewAgentAppliesIntervalFloor(t *testing.T) {
	t.Parallel()

	a := NewAgent(Config{Interval: 0, Logger: logging.NewTestLogger()})
	if a.interval != defaultInterval {
		t.Errorf("zero interval should fall back to default, got %s", a.interval)
	}
	a = NewAgent(Config{Interval: time.Second, Logger: logging.NewTestLogger()})
	if a.interval != defaultInterval {
		t.Errorf("sub-minute interval should fall back to default, got %s", a.interval)
	}
	a = NewAgent(Config{Interval: 2 * time.Hour, Logger: logging.NewTestLogger()})
	if a.interval != 2*time.Hour {
		t.Errorf("valid interval should be kept, got %s", a.interval)
	}
}

func TestRunCycleNeverLeaksCredentialsIntoArchive(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"research", "topic six", "post body",
	}}
	hist := openTestHistory(t)
	arch, dir := openTestArchive(t)

	agent := newTestAgent(t, provider, []Target{
		{Platform: post.PlatformLinkedIn, Publisher: &fakePublisher{name: "linkedin", id: "x"}},
	}, hist, arch)

	if _, err := agent.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		for _, needle := range []string{"token", "api_key", "Bearer"} {
			if strings.Contains(strings.ToLower(string(data)), strings.ToLower(needle)) {
				t.Errorf("archive file %s contains %q", entry.Name(), needle)
			}
		}
	}
}
