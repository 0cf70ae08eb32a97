package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/millarag/internal/config"
	dbRedis "github.com/kailas-cloud/millarag/internal/db/redis"
	"github.com/kailas-cloud/millarag/internal/domain"
	logpkg "github.com/kailas-cloud/millarag/internal/logger"
	"github.com/kailas-cloud/millarag/internal/metrics"
	"github.com/kailas-cloud/millarag/internal/repository/embcache"
	"github.com/kailas-cloud/millarag/internal/repository/respcache"
	"github.com/kailas-cloud/millarag/internal/repository/vectorstore"
	"github.com/kailas-cloud/millarag/internal/repository/vectorstore/pgvec"
	"github.com/kailas-cloud/millarag/internal/repository/vectorstore/redisvec"
	chiTransport "github.com/kailas-cloud/millarag/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/millarag/internal/transport/openai"
	"github.com/kailas-cloud/millarag/internal/transport/ws"
	chatuc "github.com/kailas-cloud/millarag/internal/usecase/chat"
	embeddinguc "github.com/kailas-cloud/millarag/internal/usecase/embedding"
	"github.com/kailas-cloud/millarag/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/millarag/internal/usecase/health"
	raguc "github.com/kailas-cloud/millarag/internal/usecase/rag"
	"github.com/kailas-cloud/millarag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()
	logpkg.SetDefault(logger)

	logger.Info("Starting millarag server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_driver", cfg.Vector.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterRelayMetrics()

	// Redis is optional: without it the response cache misses and health reports it down.
	cacheStore := connectRedis(ctx, cfg.Cache.Addrs, cfg.Cache.Password, cfg.Cache.DB,
		cfg.Cache.ReadinessTimeout, logger)
	if cacheStore != nil {
		defer cacheStore.Close()
	}

	vectorStore, closeVector := buildVectorStore(ctx, cfg, cacheStore, logger)
	defer closeVector()

	embedder, embeddingHealth := buildEmbedder(cfg, cacheStore, logger)

	router := buildGenerationRouter(cfg, logger)
	logger.Info("Generation providers registered",
		zap.Strings("providers", router.Providers()),
		zap.String("default", cfg.Generation.DefaultProvider),
	)

	// Pass nil interface (not typed nil pointer!) when Redis is not configured.
	// Go gotcha: (*dbRedis.Store)(nil) wrapped in an interface != nil.
	cacheTTL := time.Duration(cfg.Cache.TTLSec) * time.Second
	cache := respcache.New(nil, cacheTTL, metrics.ResponseCacheTotal, logger)
	var cachePinger healthuc.CachePinger
	if cacheStore != nil {
		cache = respcache.New(cacheStore, cacheTTL, metrics.ResponseCacheTotal, logger)
		cachePinger = cacheStore
	}

	chunker := raguc.NewTextChunker(
		raguc.WithChunkSize(cfg.RAG.ChunkSize),
		raguc.WithChunkOverlap(cfg.RAG.ChunkOverlap),
	)
	ragSvc := raguc.New(chunker, embedder, vectorStore, router).
		WithDefaultTopK(cfg.RAG.DefaultTopK).
		WithRequireRetrieval(cfg.RAG.RequireRetrieval)
	chatSvc := chatuc.New(cache, router)

	// The relay streams straight from the providers, without the response cache.
	hub := ws.NewHub(router, ws.Config{
		PingInterval:    time.Duration(cfg.Relay.PingIntervalSec) * time.Second,
		IdleTimeout:     time.Duration(cfg.Relay.IdleTimeoutSec) * time.Second,
		SweepInterval:   time.Duration(cfg.Relay.SweepSec) * time.Second,
		MaxMessageBytes: cfg.Relay.MaxMessageBytes,
		AllowedOrigins:  cfg.Relay.AllowedOrigins,
	}, logger)
	go hub.Run(ctx)

	healthSvc := healthuc.New(cachePinger, vectorStore, hub, embeddingHealth)

	server := chiTransport.NewServer(ragSvc, chatSvc, cache, vectorStore, hub, healthSvc, logger)
	handler := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		Relay:     hub,
		RelayPath: cfg.Relay.Path,
		APIKeys:   cfg.Auth.APIKeys,
		Logger:    logger,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", addr),
			zap.String("relay_path", cfg.Relay.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	// Hijacked relay sockets are not tracked by srv.Shutdown, notify and close them first.
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// connectRedis returns nil when no address is configured or the server is unreachable.
func connectRedis(
	ctx context.Context, addrs []string, password string, dbIndex, readinessSec int, logger *zap.Logger,
) *dbRedis.Store {
	if len(addrs) == 0 {
		logger.Warn("Redis not configured, running without cache")
		return nil
	}
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    addrs,
		Password: password,
		DB:       dbIndex,
	})
	if err != nil {
		logger.Warn("Failed to create Redis client, running without it", zap.Error(err))
		return nil
	}
	if err := store.WaitForReady(ctx, time.Duration(readinessSec)*time.Second); err != nil {
		logger.Warn("Redis not ready, running without it", zap.Strings("addrs", addrs), zap.Error(err))
		store.Close()
		return nil
	}
	logger.Info("Connected to Redis", zap.Strings("addrs", addrs))
	return store
}

// buildVectorStore selects the configured backend. Any failure degrades to
// vectorstore.Unavailable, so chat and relay keep working without retrieval.
func buildVectorStore(
	ctx context.Context, cfg config.Config, cacheStore *dbRedis.Store, logger *zap.Logger,
) (domain.VectorStore, func()) {
	noop := func() {}
	log := logger.With(zap.String("driver", cfg.Vector.Driver))

	var (
		store   domain.VectorStore
		closeFn = noop
	)
	switch cfg.Vector.Driver {
	case "memory":
		store = vectorstore.NewMemory(cfg.Vector.Dimensions)

	case "redis":
		rs := cacheStore
		if rs == nil || !slices.Equal(cfg.Vector.Addrs, cfg.Cache.Addrs) {
			rs = connectRedis(ctx, cfg.Vector.Addrs, cfg.Vector.Password, 0, cfg.Cache.ReadinessTimeout, logger)
			if rs == nil {
				break
			}
			closeFn = rs.Close
		}
		store = redisvec.New(rs, redisvec.Options{
			IndexName:   cfg.Vector.IndexName,
			Dimensions:  cfg.Vector.Dimensions,
			TagFields:   cfg.Vector.TagFields,
			HNSWM:       cfg.Vector.HNSWM,
			EFConstruct: cfg.Vector.HNSWEFConstruct,
		})

	case "pgvector":
		if cfg.Vector.DSN == "" {
			log.Warn("vector.dsn is empty")
			break
		}
		pool, err := pgvec.Connect(ctx, cfg.Vector.DSN)
		if err != nil {
			log.Warn("Failed to connect to PostgreSQL", zap.Error(err))
			break
		}
		closeFn = pool.Close
		store = pgvec.New(pool, pgvec.Options{
			Table:       cfg.Vector.Table,
			Dimensions:  cfg.Vector.Dimensions,
			HNSWM:       cfg.Vector.HNSWM,
			EFConstruct: cfg.Vector.HNSWEFConstruct,
		})
	}

	if store == nil {
		log.Warn("Vector store not available, RAG retrieval disabled")
		closeFn()
		return vectorstore.Unavailable{}, noop
	}
	if err := store.Initialize(ctx); err != nil {
		log.Warn("Failed to initialize vector store, RAG retrieval disabled", zap.Error(err))
		closeFn()
		return vectorstore.Unavailable{}, noop
	}
	log.Info("Vector store initialized", zap.Int("dimensions", cfg.Vector.Dimensions))
	return store, closeFn
}

// buildEmbedder assembles the decorator chain: provider -> Cached -> Instrumented.
// The returned checker is nil for the offline hash embedder.
func buildEmbedder(
	cfg config.Config, cacheStore *dbRedis.Store, logger *zap.Logger,
) (domain.Embedder, healthuc.EmbeddingChecker) {
	ec := cfg.Embedding
	provider := ec.Provider
	if provider == "openai" && ec.APIKey == "" {
		logger.Warn("embedding.api_key is empty, falling back to hash embeddings")
		provider = "hash"
	}

	var (
		embedder domain.Embedder
		checker  healthuc.EmbeddingChecker
		model    = "hash"
	)
	switch provider {
	case "openai":
		base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   provider,
			Logger:     logger,
		})
		embedder, checker, model = base, base, ec.Model

		// Hash vectors are free to compute, only remote ones are cached.
		if cacheStore != nil && ec.CacheTTL > 0 {
			embedder = embcache.New(base, cacheStore, embcache.Options{
				Model:      model,
				Dimensions: ec.Dimensions,
				TTL:        time.Duration(ec.CacheTTL) * time.Second,
			}, metrics.EmbeddingCacheTotal, logger)
		}
	default:
		embedder = embeddinguc.NewHashEmbedder(ec.Dimensions)
	}

	logger.Info("Embedder created",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Int("dimensions", ec.Dimensions),
	)
	return embeddinguc.NewInstrumentedEmbedder(embedder, provider, model, ec.Dimensions, logger), checker
}

// buildGenerationRouter registers every known provider that has an API key.
// Configured base URLs and models override the built-in presets.
func buildGenerationRouter(cfg config.Config, logger *zap.Logger) *generation.Router {
	tokens, err := generation.NewTokenCounter()
	if err != nil {
		logger.Warn("Token counting disabled", zap.Error(err))
	}

	names := make([]string, 0, len(generation.Presets))
	for name := range generation.Presets {
		names = append(names, name)
	}
	slices.Sort(names)

	providers := make([]generation.ProviderConfig, 0, len(names))
	for _, name := range names {
		preset := generation.Presets[name]
		pc := cfg.Generation.Providers[name]
		if pc.APIKey == "" {
			logger.Debug("Provider has no API key, skipped", zap.String("provider", name))
			continue
		}
		baseURL := preset.BaseURL
		if pc.BaseURL != "" {
			baseURL = pc.BaseURL
		}
		model := preset.DefaultModel
		if pc.DefaultModel != "" {
			model = pc.DefaultModel
		}
		providers = append(providers, generation.ProviderConfig{
			Name:              name,
			Client:            openaiTransport.NewChatClient(pc.APIKey, baseURL),
			DefaultModel:      model,
			RequestsPerSecond: pc.RequestsPerSecond,
			Burst:             pc.Burst,
		})
	}
	for name := range cfg.Generation.Providers {
		if !generation.Known(name) {
			logger.Warn("Unknown generation provider in config, ignored", zap.String("provider", name))
		}
	}

	return generation.NewRouter(cfg.Generation.DefaultProvider, providers, tokens, logger)
}
