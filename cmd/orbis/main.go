package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/auth"
	"github.com/orbis-search/orbis/internal/classify"
	"github.com/orbis-search/orbis/internal/config"
	"github.com/orbis-search/orbis/internal/db"
	dbMemory "github.com/orbis-search/orbis/internal/db/memory"
	dbRedis "github.com/orbis-search/orbis/internal/db/redis"
	"github.com/orbis-search/orbis/internal/domain"
	"github.com/orbis-search/orbis/internal/embedding"
	"github.com/orbis-search/orbis/internal/health"
	logpkg "github.com/orbis-search/orbis/internal/logger"
	"github.com/orbis-search/orbis/internal/metrics"
	"github.com/orbis-search/orbis/internal/orchestrator"
	"github.com/orbis-search/orbis/internal/registry"
	"github.com/orbis-search/orbis/internal/repository/embcache"
	registryrepo "github.com/orbis-search/orbis/internal/repository/registry"
	"github.com/orbis-search/orbis/internal/retrieval"
	"github.com/orbis-search/orbis/internal/transport/httpapi"
	openaiEmb "github.com/orbis-search/orbis/internal/transport/openai"
	"github.com/orbis-search/orbis/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting orbis retrieval engine",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	// Create database store based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	case "memory":
		store = dbMemory.NewStore()
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterRetrievalMetrics()
	metrics.RegisterEmbeddingMetrics()

	// Domain registry backed by the store
	reg := registry.New(registryrepo.New(store), logger)
	if err := reg.Refresh(ctx); err != nil {
		logger.Fatal("Failed to load domain registry", zap.Error(err))
	}
	logger.Info("Domain registry loaded", zap.Int("domains", len(reg.Snapshot())))

	// Per-domain indices
	orch := orchestrator.New(orchestrator.Config{
		DataDir:       cfg.Storage.DataDir,
		FlushEvery:    cfg.Index.FlushEvery,
		DomainTimeout: time.Duration(cfg.Index.DomainTimeoutMs) * time.Millisecond,
		Logger:        logger,
	})
	if err := orch.Initialize(ctx, reg.Snapshot()); err != nil {
		logger.Fatal("Failed to initialize indices", zap.Error(err))
	}

	// Embedder chain — composition root
	embedder := buildEmbedder(cfg.Embedding, store, logger)
	if embedder != nil {
		logger.Info("Embedder created",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	} else {
		logger.Warn("No embedding provider configured, text queries and text ingestion are unavailable")
	}

	// Retrieval policy collaborators
	perms := auth.NewStatic(grantsFromConfig(cfg.Auth.Grants), logger)

	var classifier domain.Classifier
	if len(cfg.Classify.Keywords) > 0 {
		classifier = classify.NewKeyword(cfg.Classify.Keywords, logger)
	}

	// Pass nil interface (not typed nil pointer!) if no embedder is
	// configured, so the server can detect the absent retriever.
	var retriever httpapi.Retriever
	if embedder != nil {
		retriever = retrieval.New(embedder, orch, reg, perms, classifier, retrieval.Config{
			AutoDetect:    cfg.Retrieval.AutoDetect,
			MinConfidence: cfg.Retrieval.MinConfidence,
		}, logger)
	}

	healthSvc := health.New(store, newEmbeddingHealthChecker(embedder), cfg.Storage.DataDir)

	server := httpapi.NewServer(httpapi.Config{
		Registry:     reg,
		Indexer:      orch,
		Retriever:    retriever,
		Embedder:     embedder,
		Health:       healthSvc,
		CompactRatio: cfg.Index.CompactRatio,
		APIKeys:      cfg.Auth.APIKeys,
		Logger:       logger,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := httpapi.NewHTTPServer(addr, server.Router(),
		time.Duration(cfg.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.HTTP.WriteTimeoutSec)*time.Second,
	)

	// Background maintenance: periodic snapshot flush, compaction of
	// indices past the tombstone threshold, registry reload.
	maintCtx, stopMaint := context.WithCancel(ctx)
	go maintenanceLoop(maintCtx, orch, reg,
		time.Duration(cfg.Index.MaintenanceSec)*time.Second,
		time.Duration(cfg.Index.RegistryRefreshSec)*time.Second,
		cfg.Index.CompactRatio, logger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stopMaint()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Persist dirty indices before exit.
	if err := orch.FlushAll(shutdownCtx); err != nil {
		logger.Error("Final snapshot flush failed", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// maintenanceLoop runs the periodic background work until ctx is done.
func maintenanceLoop(
	ctx context.Context,
	orch *orchestrator.Orchestrator,
	reg *registry.Service,
	flushEvery, refreshEvery time.Duration,
	compactRatio float64,
	logger *zap.Logger,
) {
	flushTicker := time.NewTicker(flushEvery)
	refreshTicker := time.NewTicker(refreshEvery)
	defer flushTicker.Stop()
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTicker.C:
			if err := orch.FlushAll(ctx); err != nil {
				logger.Warn("Periodic snapshot flush failed", zap.Error(err))
			}
			if compacted := orch.CompactOver(ctx, compactRatio); len(compacted) > 0 {
				logger.Info("Compacted indices", zap.Strings("domains", compacted))
			}
		case <-refreshTicker.C:
			if err := reg.Refresh(ctx); err != nil {
				logger.Warn("Registry refresh failed", zap.Error(err))
				continue
			}
			if err := orch.RefreshDomains(ctx, reg.Snapshot()); err != nil {
				logger.Warn("Index refresh failed", zap.Error(err))
			}
		}
	}
}

// grantsFromConfig converts config grants to the checker's form.
func grantsFromConfig(grants map[string]config.GrantConfig) map[string]auth.Grant {
	out := make(map[string]auth.Grant, len(grants))
	for principal, g := range grants {
		out[principal] = auth.Grant{Domains: g.Domains, Actions: g.Actions}
	}
	return out
}

// embeddingHealthChecker adapts domain.Embedder to health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) health.EmbeddingChecker {
	// Pass nil interface (not typed nil pointer!) if no embedder is configured.
	if embedder == nil {
		return nil
	}
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain:
// OpenAI -> RateLimited -> Cached -> Retry. Returns nil when no provider
// is configured; the engine then serves vector-only ingestion.
func buildEmbedder(embCfg config.EmbeddingConfig, store db.Store, logger *zap.Logger) domain.Embedder {
	if embCfg.APIKey == "" && embCfg.BaseURL == "" {
		return nil
	}

	var embedder domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Provider:   embCfg.Provider,
		Logger:     logger,
	})

	embedder = embedding.NewRateLimited(embedder, embCfg.RateRPS, embCfg.RateBurst)

	if store != nil {
		embedder = embcache.New(embedder, store,
			time.Duration(embCfg.CacheTTLSec)*time.Second,
			metrics.EmbeddingCacheTotal, logger)
	}

	// Retry outermost so cache hits never wait on the backoff path.
	return embedding.NewRetry(embedder, embCfg.Provider, embCfg.Retries,
		embedding.DefaultRetryBackoff, logger)
}
