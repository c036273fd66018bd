// Package app wires configuration, storage, AI collaborators and the
// extraction engine into a ready pipeline.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/YunYun501/Lazy-Learn-V2/internal/cache"
	"github.com/YunYun501/Lazy-Learn-V2/internal/config"
	"github.com/YunYun501/Lazy-Learn-V2/internal/extraction"
	"github.com/YunYun501/Lazy-Learn-V2/internal/extraction/raw"
	"github.com/YunYun501/Lazy-Learn-V2/internal/llm"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
	"github.com/YunYun501/Lazy-Learn-V2/internal/pipeline"
	"github.com/YunYun501/Lazy-Learn-V2/internal/relevance"
	"github.com/YunYun501/Lazy-Learn-V2/internal/storage"
	"github.com/YunYun501/Lazy-Learn-V2/internal/toc"
)

// App holds the wired components. Relevance and Retroactive are nil when no
// LLM API key is configured.
type App struct {
	Config *config.Config
	Logger *observability.Logger

	DB    *sql.DB
	Repos *storage.Repositories
	Jobs  *cache.JobStatusCache

	AI          *llm.Client
	TOC         *toc.Service
	Relevance   *relevance.Service
	Retroactive *relevance.RetroactiveMatcher

	Engine       string
	Extractor    *extraction.ContentExtractor
	Orchestrator *pipeline.Orchestrator
	Runner       *pipeline.Runner

	cacheClient cache.Client
}

// New opens the store, applies migrations and builds every component.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.Nop()
	}
	a := &App{Config: cfg, Logger: logger}

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if _, err := storage.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.Repos = storage.NewRepositories(db)

	if err := a.initCache(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.LLM.Enabled() {
		a.AI, err = llm.NewClient(llm.Config{
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
		}, logger)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("create llm client: %w", err)
		}
	} else {
		logger.Warn().Msg("No LLM API key configured, AI TOC fallback and relevance scoring are disabled")
	}

	tocCfg := toc.Config{FallbackPages: cfg.TOC.FallbackPages, MaxPromptChars: cfg.TOC.MaxPromptChars}
	var matcher pipeline.RelevanceMatcher
	if a.AI != nil {
		a.TOC = toc.NewService(a.Repos.Documents, a.AI, tocCfg, logger)
		a.Relevance = relevance.NewService(a.Repos.Chapters, a.Repos.Courses, relevance.NewLLMScorer(a.AI), logger)
		a.Retroactive = relevance.NewRetroactiveMatcher(a.Repos.Documents, a.Relevance, logger)
		matcher = a.Relevance
	} else {
		a.TOC = toc.NewService(a.Repos.Documents, nil, tocCfg, logger)
	}

	engine, name, err := raw.New(raw.Options{
		Engine: cfg.Extraction.Engine,
		MinerU: raw.MinerUConfig{
			Path:      cfg.Extraction.MinerUPath,
			Backend:   cfg.Extraction.Backend,
			Lang:      cfg.Extraction.Lang,
			AssetsDir: filepath.Join(cfg.Extraction.DataDir, "assets"),
		},
		MaxConcurrent: int64(cfg.Extraction.MaxConcurrent),
		Timeout:       cfg.Extraction.Timeout,
		Logger:        logger,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Engine = name

	a.Extractor = extraction.NewContentExtractor(
		a.Repos.Documents, a.Repos.Chapters, a.Repos.Contents, engine,
		extraction.Config{DataDir: cfg.Extraction.DataDir, WriteSideFiles: cfg.Extraction.WriteSideFiles},
		logger,
	)
	a.Orchestrator = pipeline.NewOrchestrator(a.Repos.Documents, a.Repos.Chapters, a.TOC, matcher, a.Extractor, logger)
	a.Runner = pipeline.NewRunner(a.Orchestrator, a.Repos.Documents, a.Jobs, logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithTaskTimeout(cfg.Pipeline.TaskTimeout),
		pipeline.WithPreselectThreshold(cfg.Pipeline.PreselectThreshold),
	)
	a.Extractor.Observe(a.Runner.OnBatch)

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Str("engine", name).
		Bool("ai", a.AI != nil).
		Msg("Pipeline ready")
	return a, nil
}

func (a *App) initCache(ctx context.Context) error {
	switch a.Config.Cache.Driver {
	case "redis":
		r := a.Config.Cache.Redis
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			URL:      r.URL,
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			PoolSize: r.PoolSize,
			Prefix:   r.Prefix,
		})
		if err != nil {
			return fmt.Errorf("connect job status cache: %w", err)
		}
		a.cacheClient = client
	default:
		a.cacheClient = cache.NewMemoryClient(a.Config.Cache.MaxEntries)
	}
	a.Jobs = cache.NewJobStatusCache(a.cacheClient, a.Config.Cache.TTL, a.Logger)
	return nil
}

// Close drains the runner and releases the cache and database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Runner != nil {
		errs = append(errs, a.Runner.Shutdown(ctx))
	}
	if a.cacheClient != nil {
		errs = append(errs, a.cacheClient.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
