package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auditlab/auditoria/internal/audit"
	"github.com/auditlab/auditoria/internal/cache"
	"github.com/auditlab/auditoria/internal/collector"
	"github.com/auditlab/auditoria/internal/config"
	"github.com/auditlab/auditoria/internal/llm"
	"github.com/auditlab/auditoria/internal/logging"
	"github.com/auditlab/auditoria/internal/security"
	"github.com/auditlab/auditoria/internal/server"
	"github.com/auditlab/auditoria/internal/validator"
	"github.com/auditlab/auditoria/internal/webclient"
)

func main() {
	logger := logging.NewStdoutLogger("auditoria")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			logger.Error("invalid configuration", logging.Field{Key: "problem", Value: p})
		}
		os.Exit(1)
	}

	wc, err := webclient.New(cfg.WebClient, logger)
	if err != nil {
		logger.Error("failed to create web client", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	defer wc.Close()

	store, err := audit.OpenStore(cfg.StoragePath)
	if err != nil {
		logger.Error("failed to open audit store", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	defer store.Close()

	tiered := cache.New(cache.Config{
		FastSize: cfg.CacheFastSize,
		SlowSize: cfg.CacheSlowSize,
		TTL:      cfg.CacheTTL,
	})

	collectCfg := collector.Config{Retries: cfg.CollectRetries, Backoff: cfg.CollectBackoff}
	crawler := collector.NewCrawlerManager(collectCfg, wc, tiered, logger)
	metrics := collector.NewAPIManager(collectCfg, cfg.MetricsAPIURL, wc, tiered, logger)

	gateway := llm.NewOllamaClient(llm.Config{
		Endpoint: cfg.LLMEndpoint,
		Model:    cfg.LLMModel,
		Timeout:  cfg.LLMTimeout,
	}, logger, nil)

	sec := security.NewManager(security.Config{
		MaxPromptLength: cfg.MaxPromptLength,
		MaxJSONDepth:    cfg.MaxJSONDepth,
	})

	orchestrator := audit.NewOrchestrator(audit.Config{
		Workers:        cfg.Workers,
		QueueCapacity:  cfg.QueueCapacity,
		MaxJobDuration: cfg.MaxJobDuration,
		StageTimeout:   cfg.StageTimeout,
	}, crawler, metrics, validator.NewAgent(logger), sec, gateway, store, logger)

	// Periodically drop audits past the retention window.
	retentionStop := make(chan struct{})
	go retentionLoop(store, cfg.JobRetention, logger, retentionStop)

	srv := server.New(server.Config{
		ListenAddr: cfg.ListenAddr,
		APISecret:  cfg.APISecret,
	}, orchestrator, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", logging.Field{Key: "signal", Value: sig.String()})
	case err := <-errCh:
		logger.Error("server stopped", logging.Field{Key: "error", Value: err.Error()})
	}

	close(retentionStop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", logging.Field{Key: "error", Value: err.Error()})
	}
	orchestrator.Close()
}

// retentionLoop purges persisted audits older than the retention window.
func retentionLoop(store *audit.Store, retention time.Duration, logger logging.Logger, stop <-chan struct{}) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(retention / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			removed, err := store.PurgeOlderThan(ctx, time.Now().Add(-retention))
			cancel()
			if err != nil {
				logger.Warn("audit retention purge failed", logging.Field{Key: "error", Value: err.Error()})
				continue
			}
			if removed > 0 {
				logger.Info("purged expired audits", logging.Field{Key: "removed", Value: removed})
			}
		}
	}
}
