package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/ai"
	"github.com/xxxsen/docrag/internal/config"
	"github.com/xxxsen/docrag/internal/db"
	"github.com/xxxsen/docrag/internal/embedcache"
	"github.com/xxxsen/docrag/internal/handler"
	"github.com/xxxsen/docrag/internal/job"
	"github.com/xxxsen/docrag/internal/loader"
	"github.com/xxxsen/docrag/internal/middleware"
	"github.com/xxxsen/docrag/internal/repo"
	"github.com/xxxsen/docrag/internal/resilience"
	"github.com/xxxsen/docrag/internal/schedule"
	"github.com/xxxsen/docrag/internal/segment"
	"github.com/xxxsen/docrag/internal/service"
)

type app struct {
	cfg       *config.Config
	db        *sqlx.DB
	cacheRepo *repo.EmbeddingCacheRepo
	rag       *service.RAGService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	schema := db.Schema{Table: cfg.VectorStore.Table, Dimension: cfg.VectorStore.Dimension}
	if err := db.ApplyMigrations(ctx, conn, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	if err := db.VerifyDimension(ctx, conn, schema); err != nil {
		_ = conn.Close()
		return nil, err
	}
	a := &app{cfg: cfg, db: conn, cacheRepo: repo.NewEmbeddingCacheRepo(conn)}

	retry := retryConfig(cfg.Retry)
	embedder, err := buildEmbedder(cfg, retry, a.cacheRepo)
	if err != nil {
		a.Close()
		return nil, err
	}
	generator, err := buildGenerator(cfg, retry)
	if err != nil {
		a.Close()
		return nil, err
	}
	segmenter, err := segment.New(cfg.Segmenter.MaxSize, cfg.Segmenter.Overlap)
	if err != nil {
		a.Close()
		return nil, err
	}
	store := repo.NewSegmentRepo(conn, cfg.VectorStore.Table, cfg.VectorStore.Dimension)
	a.rag = service.NewRAGService(loader.New(cfg.Loader), segmenter, embedder, generator, store, service.RAGConfig{
		Subject:    cfg.Chat.Subject,
		MaxResults: cfg.Chat.MaxResults,
		MinScore:   cfg.Chat.MinScore,
		Retry:      retry,
	})
	logutil.GetLogger(ctx).Debug("app initialized",
		zap.String("table", cfg.VectorStore.Table),
		zap.Int("dimension", cfg.VectorStore.Dimension),
		zap.String("embedder", embedder.ModelName()),
		zap.String("chat_provider", cfg.Chat.Provider),
	)
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func retryConfig(cfg config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: time.Duration(cfg.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.MaxIntervalMs) * time.Millisecond,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

func buildEmbedder(cfg *config.Config, retry resilience.RetryConfig, cache *repo.EmbeddingCacheRepo) (ai.IEmbedder, error) {
	provider, err := ai.NewEmbedProvider(cfg.Embedder.Provider, config.ProviderArgs(cfg.Embedder.Provider, cfg.Embedder.Data))
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	embedder := ai.NewEmbedder(ai.WithResilience(provider, retry), ai.EmbedderConfig{
		Model:       cfg.Embedder.Model,
		Dimension:   cfg.VectorStore.Dimension,
		BatchSize:   cfg.Embedder.BatchSize,
		Concurrency: cfg.Embedder.Concurrency,
	})
	if cfg.Embedder.DBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cache)
	}
	ttl := time.Duration(cfg.Embedder.CacheTTLSeconds) * time.Second
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.Embedder.CacheSize, ttl), nil
}

func buildGenerator(cfg *config.Config, retry resilience.RetryConfig) (ai.IGenerator, error) {
	timeout := time.Duration(cfg.Chat.TimeoutSeconds) * time.Second
	chain := append([]config.ChatProviderConfig{{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		Data:     cfg.Chat.Data,
	}}, cfg.Chat.Fallbacks...)
	entries := make([]ai.GeneratorEntry, 0, len(chain))
	for _, item := range chain {
		provider, err := ai.NewProvider(item.Provider, config.ProviderArgs(item.Provider, item.Data))
		if err != nil {
			return nil, fmt.Errorf("init chat provider %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name: item.Provider,
			Generator: ai.NewGenerator(ai.WithProviderResilience(provider, retry), ai.GeneratorConfig{
				Model:   item.Model,
				Timeout: timeout,
			}),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}

// serve runs the http api and the scheduled jobs until ctx is done.
func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := logutil.GetLogger(ctx)
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)

	deps := handler.RouterDeps{
		RAG:           handler.NewRAGHandler(a.rag, cfg.Chat.MinScore, cfg.Server.IngestRoots),
		ChatRateLimit: time.Duration(cfg.Server.ChatRateLimitSeconds) * time.Second,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.Server.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if len(cfg.Schedule.ReingestPaths) > 0 {
		if err := scheduler.AddJob(job.NewReingestJob(a.rag, cfg.Schedule.ReingestPaths), cfg.Schedule.ReingestSpec); err != nil {
			return err
		}
	}
	if cfg.Embedder.DBCache {
		if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.Schedule.CacheMaxAgeDays), cfg.Schedule.CacheCleanupSpec); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("server stopping...")
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}
