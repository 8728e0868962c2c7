// Package bootstrap assembles the matching services from configuration so the
// HTTP server, the CLI and the ingest script share one wiring.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"alfredoptarigan/cv-matcher/internal/cache"
	"alfredoptarigan/cv-matcher/internal/config"
	"alfredoptarigan/cv-matcher/internal/repositories"
	"alfredoptarigan/cv-matcher/internal/services"
)

// App holds every wired component. DB, JobRepo, Worker and Index are nil when
// their backends are disabled.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *gorm.DB
	Cache      cache.Cache
	Store      services.TextStore
	Storage    services.StorageService
	Pipeline   *services.Pipeline
	Library    *services.Library
	Index      services.CVIndex
	JobRepo    repositories.MatchJobRepository
	Worker     services.Worker
	MatchedDir string
}

type Options struct {
	// WithJobs wires the job repository and the worker. It needs the database.
	WithJobs bool
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	app := &App{Config: cfg, Logger: log}

	c, err := newCache(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app.Cache = c

	if cfg.Database.Enabled {
		db, err := config.InitDatabase(cfg, log)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.DB = db
		app.Store = repositories.NewCVRepository(db)
	} else {
		app.Store = services.NewCacheTextStore(c, 0)
		log.Info("database disabled, keeping CV text in the cache", zap.String("cache", cfg.Cache.Type))
	}

	app.Storage = services.NewStorageService(cfg.Storage.UploadPath)
	if err := app.Storage.EnsureUploadDir(); err != nil {
		app.Close()
		return nil, err
	}

	provider, embedder, err := newProviders(ctx, cfg, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	if local, ok := archiver.(*services.LocalArchiver); ok {
		app.MatchedDir = local.Dir()
	}

	extractor := services.NewExtractor()
	app.Pipeline = services.NewPipeline(services.PipelineDeps{
		Extractor: extractor,
		Keywords:  services.NewKeywordExtractor(services.NewNLPModel(), cfg.Matching.IncludeVerbs, log),
		Gate:      services.NewSimilarityGate(embedder, cfg.Matching.Threshold, log),
		Scorer: services.NewMatchScorer(provider, services.ScorerConfig{
			Mode:            services.ResponseMode(cfg.LLM.ResponseMode),
			Scale:           cfg.LLM.Scale,
			Timeout:         cfg.LLM.Timeout,
			Temperature:     cfg.LLM.Temperature,
			MaxJDChars:      cfg.LLM.MaxJDChars,
			MaxCVChars:      cfg.LLM.MaxCVChars,
			IncludeKeywords: cfg.LLM.IncludeKeywords,
		}, log),
		Store:        app.Store,
		KeywordCache: c,
		Archiver:     archiver,
		Logger:       log,
	}, services.PipelineConfig{
		MaxFileSize: cfg.Storage.MaxFileSize,
		Concurrency: cfg.Matching.Concurrency,
		KeywordTTL:  cfg.Cache.TTL,
	})

	if cfg.Qdrant.Enabled {
		index, err := newIndex(ctx, cfg, embedder, log)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Index = index
	}

	app.Library = services.NewLibrary(services.LibraryDeps{
		Extractor: extractor,
		Store:     app.Store,
		Embedder:  embedder,
		Index:     app.Index,
		Pipeline:  app.Pipeline,
		Shortlist: cfg.Qdrant.Shortlist,
		MaxSize:   cfg.Storage.MaxFileSize,
		Logger:    log,
	})

	if opts.WithJobs {
		if app.DB == nil {
			log.Warn("database disabled, async match jobs are unavailable")
		} else {
			app.JobRepo = repositories.NewMatchJobRepository(app.DB)
			runner := services.NewJobRunner(app.JobRepo, app.Storage, app.Pipeline, log)
			app.Worker = services.NewWorker(app.JobRepo, runner, services.WorkerConfig{
				Concurrency:  cfg.Worker.Concurrency,
				PollInterval: cfg.Worker.PollInterval,
			}, log)
		}
	}

	return app, nil
}

// Close releases the cache and database connections.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn("failed to close cache", zap.Error(err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func newCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.Cache, error) {
	switch cfg.Cache.Type {
	case "redis":
		c, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		log.Info("✅ Redis cache connected")
		return c, nil
	default:
		return cache.NewMemoryCache(5 * time.Minute), nil
	}
}

// newProviders picks the LLM and the embedder. A provider without credentials
// degrades to the static one so the service still answers.
func newProviders(ctx context.Context, cfg *config.Config, log *zap.Logger) (services.LLMProvider, services.Embedder, error) {
	var gemini *services.GeminiProvider
	if cfg.Gemini.APIKey != "" && (cfg.LLM.Provider == "gemini" || cfg.Embedding.Provider == "gemini") {
		g, err := services.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.EmbedModel, log)
		if err != nil {
			return nil, nil, err
		}
		gemini = g
	}

	var openai *services.OpenAIProvider
	if hasOpenAICredentials(cfg) && (cfg.LLM.Provider == "openai" || cfg.Embedding.Provider == "openai") {
		openai = services.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.EmbedModel, log)
	}

	var provider services.LLMProvider
	switch {
	case cfg.LLM.Provider == "gemini" && gemini != nil:
		provider = gemini
	case cfg.LLM.Provider == "openai" && openai != nil:
		provider = openai
	default:
		if cfg.LLM.Provider != "static" {
			log.Warn("no API key configured, using static responses", zap.String("provider", cfg.LLM.Provider))
		}
		provider = services.NewStaticProvider(cfg.LLM.Scale)
	}
	provider = services.NewRateLimitedProvider(provider, cfg.LLM.RatePerSecond, cfg.LLM.Burst)

	var embedder services.Embedder
	switch {
	case cfg.Embedding.Provider == "gemini" && gemini != nil:
		embedder = gemini
	case cfg.Embedding.Provider == "openai" && openai != nil:
		embedder = openai
	default:
		embedder = services.NewHashEmbedder(0)
	}

	log.Info("✅ Providers initialized",
		zap.String("llm", provider.Name()),
		zap.String("embedding", cfg.Embedding.Provider),
	)
	return provider, embedder, nil
}

// hasOpenAICredentials allows keyless use of self-hosted OpenAI-compatible servers.
func hasOpenAICredentials(cfg *config.Config) bool {
	return cfg.OpenAI.APIKey != "" || cfg.OpenAI.BaseURL != services.DefaultOpenAIBaseURL
}

func newArchiver(ctx context.Context, cfg *config.Config) (services.Archiver, error) {
	if cfg.Archive.Backend == "s3" {
		return services.NewS3Archiver(ctx, services.S3ArchiverConfig{
			Bucket:    cfg.Archive.S3Bucket,
			Region:    cfg.Archive.S3Region,
			Endpoint:  cfg.Archive.S3Endpoint,
			AccessKey: cfg.Archive.S3AccessKey,
			SecretKey: cfg.Archive.S3SecretKey,
		})
	}
	return services.NewLocalArchiver(cfg.Storage.MatchedPath, "/matched")
}

// newIndex connects to Qdrant and sizes the collection from a sample embedding.
func newIndex(ctx context.Context, cfg *config.Config, embedder services.Embedder, log *zap.Logger) (services.CVIndex, error) {
	index, err := services.NewQdrantIndex(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, log)
	if err != nil {
		return nil, err
	}

	sample, err := embedder.Embed(ctx, "curriculum vitae")
	if err != nil {
		return nil, fmt.Errorf("failed to measure embedding size: %w", err)
	}
	if len(sample) == 0 {
		return nil, errors.New("embedder returned an empty vector")
	}

	if err := index.InitCollection(ctx, uint64(len(sample))); err != nil {
		return nil, err
	}
	log.Info("✅ Qdrant initialized", zap.String("collection", cfg.Qdrant.Collection), zap.Int("dims", len(sample)))
	return index, nil
}
