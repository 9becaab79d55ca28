package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/database"
	"github.com/cloo-solutions/docqa/internal/embedding"
	"github.com/cloo-solutions/docqa/internal/extract"
	"github.com/cloo-solutions/docqa/internal/jobs"
	"github.com/cloo-solutions/docqa/internal/ollama"
	"github.com/cloo-solutions/docqa/internal/openai"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/retry"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/telemetry"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

// app holds the process-wide clients. Commands build one, use it and Close it.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	pool      *pgxpool.Pool
	index     vectorindex.Index
	closers   []func()
	docs      *repository.DocumentRepository
	embedder  *embedding.Embedder
	ingestion *service.IngestionService
	retrieval *service.RetrievalService
}

type appOptions struct {
	migrate bool
	// ensureCollection creates the configured collection if absent.
	ensureCollection bool
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	logger := newLogger(cfg.Debug)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	if err := a.init(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts appOptions) error {
	cfg := a.cfg
	logger := a.logger

	if cfg.HasDatabase() {
		if opts.migrate {
			if err := runMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		log.Println("connected to database")
	}

	if err := a.openIndex(); err != nil {
		return err
	}
	if opts.ensureCollection {
		if err := a.index.EnsureCollection(ctx, cfg.Collection, cfg.EmbeddingDimensions); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", cfg.Collection, err)
		}
	}

	var chat *openai.ChatClient
	if cfg.HasOpenAI() {
		chat = openai.NewChatClient(openai.ChatConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.ChatModel,
			Temperature: cfg.GenerationTemperature,
			MaxTokens:   cfg.GenerationMaxTokens,
			TopP:        cfg.GenerationTopP,
			Stop:        cfg.GenerationStop,
		})
	}

	tiers, err := buildTiers(cfg, chat)
	if err != nil {
		return err
	}

	a.embedder = embedding.New(tiers, embedding.Config{
		Dimension:  cfg.EmbeddingDimensions,
		BatchSize:  cfg.EmbeddingBatchSize,
		BatchDelay: cfg.EmbeddingBatchDelay,
		Retry: retry.Policy{
			MaxAttempts:     cfg.EmbeddingMaxAttempts,
			InitialInterval: cfg.EmbeddingBackoff,
			Multiplier:      2,
			Logger:          logger,
			Operation:       "embed",
		},
	}, logger)
	logger.Info("embedder ready", "tiers", a.embedder.TierNames(), "dimension", a.embedder.Dimension())

	ingestOpts := []service.IngestionOption{
		service.WithChunkConfig(service.ChunkConfig{MaxChars: cfg.ChunkMaxChars, Overlap: cfg.ChunkOverlap}),
		service.WithIngestionLogger(logger),
	}
	if a.pool != nil {
		a.docs = repository.NewDocumentRepository(a.pool)
		ingestOpts = append(ingestOpts, service.WithDocumentRepository(a.docs))
	}
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		ingestOpts = append(ingestOpts, service.WithSourceStore(s3Client))
	}
	a.ingestion = service.NewIngestionService(a.embedder, a.index, extract.NewRegistry(), ingestOpts...)

	// a nil *ChatClient must not become a non-nil Generator
	var generator service.Generator
	if chat != nil {
		generator = chat
	}
	a.retrieval = service.NewRetrievalServiceWithConfig(a.embedder, a.index, generator, service.RetrievalConfig{
		TopK:              cfg.TopK,
		ScanFallbackLimit: cfg.ScanFallbackLimit,
		GenerationTimeout: cfg.GenerationTimeout,
		Retry: retry.Policy{
			MaxAttempts:     cfg.EmbeddingMaxAttempts,
			InitialInterval: cfg.EmbeddingBackoff,
			Multiplier:      2,
			Logger:          logger,
			Operation:       "generate answer",
		},
	}, logger)

	return nil
}

func (a *app) openIndex() error {
	cfg := a.cfg
	switch cfg.VectorBackend {
	case vectorindex.BackendPgVector:
		if a.pool == nil {
			return fmt.Errorf("pgvector backend requires DATABASE_URL")
		}
		idx, err := vectorindex.NewPgVectorIndex(a.pool, vectorindex.PgVectorConfig{
			Collection: cfg.Collection,
			Lists:      cfg.IndexLists,
			Probes:     cfg.IndexProbes,
		}, a.logger)
		if err != nil {
			return err
		}
		a.index = idx
	case vectorindex.BackendQdrant:
		idx, err := vectorindex.NewQdrantIndex(cfg.QdrantAddr, cfg.Collection, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		a.index = idx
		a.closers = append(a.closers, func() { _ = idx.Close() })
	case vectorindex.BackendMemory:
		a.index = vectorindex.NewMemoryIndex(cfg.Collection)
	default:
		return fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
	log.Printf("vector index: %s (collection %s)", cfg.VectorBackend, cfg.Collection)
	return nil
}

// buildTiers orders the cascade: dedicated model, generative fallback, local fallback.
func buildTiers(cfg *config.Config, chat *openai.ChatClient) ([]embedding.Tier, error) {
	var tiers []embedding.Tier

	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		if !cfg.HasOpenAI() {
			log.Println("OPENAI_API_KEY not set, skipping dedicated embedding tier")
			break
		}
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
		})
		tiers = append(tiers, embedding.NewDedicatedTier(client, cfg.EmbeddingDimensions, cfg.EmbeddingTimeout, cfg.EmbeddingRPS))
	case config.ProviderOllama:
		client := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbeddingModel)
		tiers = append(tiers, embedding.NewDedicatedTier(client, cfg.EmbeddingDimensions, cfg.EmbeddingTimeout, cfg.EmbeddingRPS))
	}

	if cfg.EmbeddingGenerativeFallback {
		if chat == nil {
			log.Println("generative embedding fallback needs OPENAI_API_KEY, skipping")
		} else {
			tiers = append(tiers, embedding.NewGenerativeTier(chat.WithTemperature(0), cfg.EmbeddingDimensions,
				embedding.DefaultGenerativeWidth, cfg.GenerationTimeout))
		}
	}

	if cfg.EmbeddingLocalFallback {
		tiers = append(tiers, embedding.NewLocalTier(cfg.EmbeddingDimensions))
	}

	if len(tiers) == 0 {
		return nil, fmt.Errorf("no embedding tier available: configure EMBEDDING_PROVIDER or enable EMBEDDING_LOCAL_FALLBACK")
	}
	return tiers, nil
}

// reembedWorker returns nil when there is nothing to fall back from or no
// stored source to re-read.
func (a *app) reembedWorker() *jobs.ReembedWorker {
	tiers := a.embedder.TierNames()
	if len(tiers) < 2 || a.docs == nil || !a.ingestion.CanReprocess() {
		return nil
	}
	return jobs.NewReembedWorker(a.docs, a.ingestion, jobs.ReembedConfig{
		PrimaryTier: tiers[0],
		BatchSize:   a.cfg.ReembedBatchSize,
		MaxFailures: a.cfg.ReembedMaxFailures,
	}, a.logger)
}

// Close releases clients in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// initTelemetry starts Sentry when a DSN is configured and returns its flush func.
func initTelemetry(cfg *config.Config) func() {
	if !cfg.HasSentry() {
		return func() {}
	}

	// Default to 10% sampling in production, 100% in development
	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return func() {}
	}
	return shutdown
}

// traced runs fn inside a Sentry transaction named after the command.
func traced(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartTransaction(ctx, name, "cli.command")
	defer span.End()

	if err := fn(ctx); err != nil {
		span.SetError(err)
		return err
	}
	span.SetStatus(sentry.SpanStatusOK)
	return nil
}

// loadApp loads config, starts telemetry and builds the app for a one-shot command.
func loadApp(cmd *cobra.Command, opts appOptions) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	shutdownTelemetry := initTelemetry(cfg)

	opts.migrate = opts.migrate && !noMigrate(cmd)
	a, err := newApp(cmd.Context(), cfg, opts)
	if err != nil {
		shutdownTelemetry()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		shutdownTelemetry()
	}, nil
}

func printJSON(v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
