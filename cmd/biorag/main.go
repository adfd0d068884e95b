package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/movelytics/biorag/internal/config"
	"github.com/movelytics/biorag/internal/corpus"
	"github.com/movelytics/biorag/internal/embedding"
	"github.com/movelytics/biorag/internal/llm"
	"github.com/movelytics/biorag/internal/llm/ollama"
	"github.com/movelytics/biorag/internal/llm/openai"
	"github.com/movelytics/biorag/internal/narrative"
	"github.com/movelytics/biorag/internal/observability"
	"github.com/movelytics/biorag/internal/retrieval"
	temporalmod "github.com/movelytics/biorag/internal/temporal"
	"github.com/movelytics/biorag/internal/vector"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "biorag",
		Short: "Scientific-context retrieval and narrative generation pipeline",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (optional)")

	var docsDir string
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed, and index a directory of scientific documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), configPath, docsDir)
		},
	}
	ingestCmd.Flags().StringVar(&docsDir, "docs", "", "Directory of *.json documents")
	_ = ingestCmd.MarkFlagRequired("docs")

	var reindexDocsDir string
	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the corpus index via the Temporal ingestion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd.Context(), configPath, reindexDocsDir)
		},
	}
	reindexCmd.Flags().StringVar(&reindexDocsDir, "docs", "", "Directory of *.json documents")
	_ = reindexCmd.MarkFlagRequired("docs")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), configPath)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check connectivity of the vector store, cache, and LLM provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), configPath)
		},
	}

	var (
		findingsPath string
		exerciseID   string
		jsonOutput   bool
	)
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run deep analysis on a findings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), configPath, findingsPath, exerciseID, jsonOutput)
		},
	}
	analyzeCmd.Flags().StringVar(&findingsPath, "findings", "", "JSON file with detected deviations")
	analyzeCmd.Flags().StringVar(&exerciseID, "exercise", "", "Exercise identifier (e.g. back-squat)")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the full report as JSON")
	_ = analyzeCmd.MarkFlagRequired("findings")
	_ = analyzeCmd.MarkFlagRequired("exercise")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-12s %s\n", name, url)
			}
			fmt.Println("  custom       (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in a config file or via environment:")
			fmt.Println("  BIORAG_LLM_PROVIDER=ollama")
			fmt.Println("  BIORAG_LLM_MODEL=llama3.1:8b")
			fmt.Println("  BIORAG_LLM_BASE_URL=http://localhost:11434")
		},
	}

	rootCmd.AddCommand(ingestCmd, reindexCmd, statsCmd, healthCmd, analyzeCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// stack holds the wired pipeline components for one CLI invocation.
type stack struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider llm.Provider
	cache    embedding.Cache
	embedder *embedding.Embedder
	store    *vector.QdrantStore
	tracer   *observability.TracerProvider
}

func (s *stack) close(ctx context.Context) {
	if s.tracer != nil {
		_ = s.tracer.Shutdown(ctx)
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
}

func buildStack(ctx context.Context, configPath string) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	tracer, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "biorag",
		Environment:  cfg.Tracing.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	var cache embedding.Cache = embedding.NopCache{}
	if cfg.Cache.Enabled {
		cache = embedding.NewRedisCache(cfg.Cache.Addr, cfg.Cache.Password)
	}

	embedder := embedding.NewEmbedder(provider, cache, cfg.Embedding.Model, cfg.Cache.TTL, logger)

	store, err := vector.NewQdrant(cfg.Vector.Host, cfg.Vector.Port, cfg.Embedding.Dimension, logger)
	if err != nil {
		return nil, err
	}

	return &stack{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		cache:    cache,
		embedder: embedder,
		store:    store,
		tracer:   tracer,
	}, nil
}

// buildProvider wires the LLM factory. Ollama uses the native client; the
// rest go through the OpenAI-compatible client with a preset base URL.
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

func runIngest(ctx context.Context, configPath, docsDir string) error {
	s, err := buildStack(ctx, configPath)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if err := s.store.EnsureCollections(ctx); err != nil {
		return err
	}

	processor := corpus.NewProcessor(s.embedder, s.store, s.cfg.Embedding.Dimension, s.logger)
	result, err := processor.ProcessDirectory(ctx, docsDir)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %d documents (%d chunks) in %v\n", result.Processed, result.TotalChunks, result.Elapsed.Round(time.Millisecond))
	if result.Failed > 0 {
		fmt.Printf("Failed: %d\n", result.Failed)
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

func runReindex(ctx context.Context, configPath, docsDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        fmt.Sprintf("reindex-%d", time.Now().Unix()),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, temporalmod.ReindexWorkflow, temporalmod.ReindexInput{DocsDir: docsDir})
	if err != nil {
		return fmt.Errorf("starting reindex workflow: %w", err)
	}

	fmt.Printf("Reindex workflow started: %s\n", run.GetID())

	var output temporalmod.ReindexOutput
	if err := run.Get(ctx, &output); err != nil {
		return fmt.Errorf("reindex workflow: %w", err)
	}

	fmt.Printf("Reindexed %d documents (%d chunks)\n", output.Processed, output.TotalChunks)
	if output.Failed > 0 {
		fmt.Printf("Failed: %d\n", output.Failed)
		for _, e := range output.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

func runStats(ctx context.Context, configPath string) error {
	s, err := buildStack(ctx, configPath)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	processor := corpus.NewProcessor(s.embedder, s.store, s.cfg.Embedding.Dimension, s.logger)
	stats := processor.CorpusStats(ctx)

	fmt.Printf("Total chunks:        %d\n", stats.TotalChunks)
	fmt.Printf("Documents (est.):    %d\n", stats.TotalDocuments)
	fmt.Printf("Avg chunks per doc:  %.1f\n", stats.AvgChunksPerDoc)

	for _, name := range []string{vector.KnowledgeCollection, vector.ExerciseCollection} {
		info, err := s.store.CollectionInfo(ctx, name)
		if err != nil {
			fmt.Printf("%-24s unavailable (%v)\n", name, err)
			continue
		}
		fmt.Printf("%-24s %d points, status %s\n", info.Name, info.PointsCount, info.Status)
	}
	return nil
}

func runHealth(ctx context.Context, configPath string) error {
	s, err := buildStack(ctx, configPath)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	healthy := true

	if err := s.store.HealthCheck(ctx); err != nil {
		fmt.Printf("vector store:  UNHEALTHY (%v)\n", err)
		healthy = false
	} else {
		fmt.Println("vector store:  OK")
	}

	if pinger, ok := s.provider.(llm.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			fmt.Printf("llm provider:  DEGRADED (%v)\n", err)
		} else {
			fmt.Println("llm provider:  OK")
		}
	} else {
		fmt.Printf("llm provider:  configured (%s)\n", s.provider.Name())
	}

	if rc, ok := s.cache.(*embedding.RedisCache); ok {
		if err := rc.Ping(ctx); err != nil {
			fmt.Printf("cache:         DEGRADED (%v)\n", err)
		} else {
			fmt.Println("cache:         OK")
		}
	} else {
		fmt.Println("cache:         disabled")
	}

	if !healthy {
		return fmt.Errorf("pipeline unhealthy")
	}
	return nil
}

func runAnalyze(ctx context.Context, configPath, findingsPath, exerciseID string, jsonOutput bool) error {
	s, err := buildStack(ctx, configPath)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	data, err := os.ReadFile(findingsPath)
	if err != nil {
		return fmt.Errorf("reading findings: %w", err)
	}
	var findings []narrative.Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return fmt.Errorf("parsing findings: %w", err)
	}

	retriever := retrieval.NewRetriever(s.embedder, s.store, retrieval.Options{
		TopKPerDeviation: s.cfg.Retrieval.TopKPerDeviation,
		ScoreThreshold:   s.cfg.Retrieval.ScoreThreshold,
		MinYear:          s.cfg.Retrieval.MinYear,
		Dimension:        s.cfg.Embedding.Dimension,
	}, s.logger)

	analyzer := narrative.NewAnalyzer(retriever, s.provider, narrative.Options{
		Temperature:      s.cfg.Narrative.Temperature,
		TopP:             s.cfg.Narrative.TopP,
		MaxTokens:        s.cfg.Narrative.MaxTokens,
		TopKPerDeviation: s.cfg.Retrieval.TopKPerDeviation,
	}, s.logger)

	report, err := analyzer.Analyze(ctx, findings, exerciseID)
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Println("No critical findings: nothing to analyze.")
		return nil
	}

	if jsonOutput {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(report.Narrative)
	fmt.Println()
	fmt.Printf("Sources (%d):\n", len(report.Sources))
	for _, src := range report.Sources {
		fmt.Printf("  - %s (%s, %d) [%s] relevance %.2f\n", src.Title, src.Authors, src.Year, src.EvidenceLevel, src.Relevance)
	}
	fmt.Printf("\nAnalyzed %s deviations across %d chunks in %v\n",
		strings.Join(report.DeviationsAnalyzed, ", "), report.TotalChunks, report.ProcessingTime.Round(time.Millisecond))
	return nil
}
