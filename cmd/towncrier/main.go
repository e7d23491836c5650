package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"towncrier/internal/agent"
	"towncrier/internal/archive"
	towncrierconfig "towncrier/internal/config"
	"towncrier/internal/history"
	"towncrier/internal/notify"
	"towncrier/internal/post"
	"towncrier/internal/publish"
	"towncrier/pkg/clients"
	"towncrier/pkg/config"
	"towncrier/pkg/llm"
	"towncrier/pkg/logging"
	"towncrier/pkg/monitoring"
	"towncrier/pkg/server"
	"towncrier/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("towncrier")

	// Load environment variables
	config.LoadEnv(logger)

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
	}).Info("Starting Towncrier (Scheduled Content Agent)")

	// === Configuration Loading ===
	cfg, err := towncrierconfig.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// === Storage ===
	historyStore, err := history.Open(cfg.HistoryPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open topic history")
	}

	archiveStore, err := archive.NewStore(cfg.ArchiveDir, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create archive directory")
	}

	// === LLM Provider ===
	providerExecCfg := clients.DefaultHTTPExecutorConfig()
	providerExecCfg.CircuitBreaker = clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:   "llm-provider",
		Logger: logger,
	})
	provider, err := llm.NewProvider(cfg.LLM, llm.WithHTTPExecutorConfig(providerExecCfg))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create LLM provider")
	}

	// === Publishers ===
	targets := []agent.Target{
		{
			Platform: post.PlatformLinkedIn,
			Publisher: publish.NewLinkedInPublisher(publish.LinkedInConfig{
				AccessToken: cfg.LinkedInToken,
				AuthorURN:   cfg.LinkedInURN,
				Logger:      logger,
			}),
		},
		{
			Platform: post.PlatformMedium,
			Publisher: publish.NewMediumPublisher(publish.MediumConfig{
				IntegrationToken: cfg.MediumToken,
				Tags:             cfg.MediumTags,
				Logger:           logger,
			}),
		},
	}

	// === Monitoring ===
	healthChecker := monitoring.NewHealthChecker("towncrier", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("towncrier", version.Version, version.GitCommit)
	pipelineMetrics := metricsCollector.CreatePipelineMetrics()

	healthChecker.AddCheck("archive", monitoring.DirectoryWritableCheck(cfg.ArchiveDir))
	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"llm_api_key": cfg.LLM.APIKey,
	}))
	healthChecker.AddCheck("credentials", monitoring.CredentialsHealthCheck(map[string]string{
		"linkedin_access_token": cfg.LinkedInToken,
		"linkedin_author_urn":   cfg.LinkedInURN,
		"medium_access_token":   cfg.MediumToken,
	}))

	// === Content Agent ===
	contentAgent := agent.NewAgent(agent.Config{
		Interval: cfg.Interval,
		Researcher: agent.NewResearcher(agent.ResearcherConfig{
			LLM:             provider,
			TopicSeeds:      cfg.TopicSeeds,
			QueriesPerCycle: cfg.QueriesPerCycle,
			Logger:          logger,
			Metrics:         pipelineMetrics,
		}),
		Selector: agent.NewSelector(agent.SelectorConfig{
			LLM:       provider,
			History:   historyStore,
			Fallbacks: cfg.FallbackTopics,
			Window:    cfg.ExclusionWindow,
			Logger:    logger,
			Metrics:   pipelineMetrics,
		}),
		Composer: agent.NewComposer(agent.ComposerConfig{
			LLM:          provider,
			Tone:         cfg.Tone,
			AvoidPhrases: cfg.AvoidPhrases,
			Limits: map[post.Platform]int{
				post.PlatformLinkedIn: cfg.Limits.LinkedIn,
				post.PlatformMedium:   cfg.Limits.Medium,
			},
			Logger:  logger,
			Metrics: pipelineMetrics,
		}),
		Targets:  targets,
		Archive:  archiveStore,
		History:  historyStore,
		Notifier: notify.NewWebhook(cfg.WebhookURL, logger),
		Metrics:  pipelineMetrics,
		Logger:   logger,
	})

	// === HTTP Server (health + metrics) ===
	router := server.SetupRouter(logger)
	router.GET("/health", healthChecker.Handler())
	router.GET("/healthz", healthChecker.Handler())
	router.GET("/metrics", metricsCollector.Handler())

	serverCfg := server.DefaultConfig("towncrier", cfg.Port)
	shutdownServer := server.Start(serverCfg, router, logger)

	// === Run ===
	ctx, cancel := context.WithCancel(context.Background())
	agentDone := make(chan struct{})
	go func() {
		contentAgent.Start(ctx)
		close(agentDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("Shutdown signal received")

	cancel()
	select {
	case <-agentDone:
	case <-time.After(30 * time.Second):
		logger.Warn("Content agent did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := shutdownServer(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}

	logger.Info("Towncrier stopped")
}
