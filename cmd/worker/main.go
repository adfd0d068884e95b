package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/movelytics/biorag/internal/config"
	"github.com/movelytics/biorag/internal/corpus"
	"github.com/movelytics/biorag/internal/embedding"
	"github.com/movelytics/biorag/internal/llm"
	"github.com/movelytics/biorag/internal/llm/ollama"
	"github.com/movelytics/biorag/internal/llm/openai"
	"github.com/movelytics/biorag/internal/observability"
	"github.com/movelytics/biorag/internal/server"
	temporalmod "github.com/movelytics/biorag/internal/temporal"
	"github.com/movelytics/biorag/internal/vector"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx := context.Background()

	tracer, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "biorag-worker",
		Environment:  cfg.Tracing.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("creating LLM provider: %v", err)
	}

	var cache embedding.Cache = embedding.NopCache{}
	if cfg.Cache.Enabled {
		cache = embedding.NewRedisCache(cfg.Cache.Addr, cfg.Cache.Password)
	}

	embedder := embedding.NewEmbedder(provider, cache, cfg.Embedding.Model, cfg.Cache.TTL, logger)

	store, err := vector.NewQdrant(cfg.Vector.Host, cfg.Vector.Port, cfg.Embedding.Dimension, logger)
	if err != nil {
		log.Fatalf("vector store: %v", err)
	}

	if err := store.EnsureCollections(ctx); err != nil {
		log.Fatalf("ensuring collections: %v", err)
	}

	processor := corpus.NewProcessor(embedder, store, cfg.Embedding.Dimension, logger)
	temporalmod.SetDependencies(&temporalmod.Dependencies{Processor: processor})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue)

	// Health surface + graceful shutdown
	graceful := server.NewGracefulServer(&server.HealthConfig{Version: "0.1.0"}, nil)

	graceful.Health.RegisterCheck("vector-store", server.VectorStoreHealthChecker(store.HealthCheck))
	if pinger, ok := provider.(llm.Pinger); ok {
		graceful.Health.RegisterCheck("llm", server.LLMHealthChecker(provider.Name(), pinger.Ping))
	} else {
		graceful.Health.RegisterCheck("llm", server.LLMHealthChecker(provider.Name(), nil))
	}
	if rc, ok := cache.(*embedding.RedisCache); ok {
		graceful.Health.RegisterCheck("cache", server.CacheHealthChecker(rc.Ping))
	}
	graceful.Health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))

	graceful.RegisterHook("temporal-worker", 20, func(ctx context.Context) error {
		w.Stop()
		return nil
	})
	graceful.RegisterHook("temporal-client", 30, func(ctx context.Context) error {
		c.Close()
		return nil
	})
	graceful.RegisterHook("tracing", 80, tracer.Shutdown)
	graceful.RegisterHook("vector-store", 90, func(ctx context.Context) error {
		return store.Close()
	})
	graceful.RegisterHook("cache", 91, func(ctx context.Context) error {
		return cache.Close()
	})

	if err := graceful.Start(":8080"); err != nil {
		log.Fatalf("health server: %v", err)
	}

	graceful.Wait()
	fmt.Println("Worker stopped")
}

// buildProvider mirrors the CLI wiring: native Ollama client, everything
// else through the OpenAI-compatible client.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	factory := llm.NewFactory()
	factory.Register("ollama", func(c llm.ProviderConfig) (llm.Provider, error) {
		return ollama.New(c.Model, c.EmbedModel, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}

	return factory.Create(llm.ProviderConfig{
		Provider:     cfg.LLM.Provider,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		EmbedModel:   cfg.Embedding.Model,
		Timeout:      cfg.LLM.Timeout,
		MaxAttempts:  cfg.LLM.MaxAttempts,
		InitialDelay: cfg.LLM.RetryDelay,
	})
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
