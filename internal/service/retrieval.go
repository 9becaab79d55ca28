package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/retry"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

const (
	DefaultTopK              = 5
	DefaultScanFallbackLimit = 5
	DefaultGenerationTimeout = 90 * time.Second

	// InsufficientContextAnswer is returned without calling the generator when nothing was retrieved.
	InsufficientContextAnswer = "I don't have enough information in the provided documents to answer that question."

	contextSeparator = "\n\n"
)

const answerSystemPrompt = `You answer questions about a set of documents.
Use only the information in the provided context.
If the context does not contain the answer, say that you don't know.
Do not make up facts.`

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) (domain.Embedding, error)
}

// SearchIndex is the read side of the vector index.
type SearchIndex interface {
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error)
	ScanAll(ctx context.Context, limit int) []domain.IndexedRecord
	Collection() string
}

// Generator produces answer text from a prompt.
type Generator interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Healthy(ctx context.Context) bool
}

// RetrievalConfig holds tunables for RetrievalService
type RetrievalConfig struct {
	TopK              int
	ScanFallbackLimit int
	GenerationTimeout time.Duration
	Retry             retry.Policy
}

// DefaultRetrievalConfig returns the default retrieval settings
func DefaultRetrievalConfig() RetrievalConfig {
	p := retry.DefaultPolicy()
	p.Operation = "generate answer"
	return RetrievalConfig{
		TopK:              DefaultTopK,
		ScanFallbackLimit: DefaultScanFallbackLimit,
		GenerationTimeout: DefaultGenerationTimeout,
		Retry:             p,
	}
}

// RetrievalService assembles context for a question and optionally answers it.
type RetrievalService struct {
	embedder  QueryEmbedder
	index     SearchIndex
	generator Generator
	cfg       RetrievalConfig
	logger    *slog.Logger
}

// NewRetrievalService creates a new RetrievalService with default settings.
// generator may be nil, in which case Answer only reports the retrieved context.
func NewRetrievalService(embedder QueryEmbedder, index SearchIndex, generator Generator, logger *slog.Logger) *RetrievalService {
	return NewRetrievalServiceWithConfig(embedder, index, generator, DefaultRetrievalConfig(), logger)
}

func NewRetrievalServiceWithConfig(embedder QueryEmbedder, index SearchIndex, generator Generator, cfg RetrievalConfig, logger *slog.Logger) *RetrievalService {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultRetrievalConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.ScanFallbackLimit <= 0 {
		cfg.ScanFallbackLimit = defaults.ScanFallbackLimit
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaults.GenerationTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = defaults.Retry
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	return &RetrievalService{
		embedder:  embedder,
		index:     index,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Retrieve embeds the question, searches the index and assembles the context.
// topK <= 0 uses the configured default.
func (s *RetrievalService) Retrieve(ctx context.Context, question string, topK int) (result *domain.RetrievalResult, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		Collection: s.index.Collection(),
		Operation:  "retrieve",
		TopK:       topK,
	})
	defer span.End()
	defer func() {
		if err != nil {
			span.SetError(err)
		}
	}()

	emb, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := s.index.Search(ctx, emb.Vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	result = &domain.RetrievalResult{
		Hits:          hits,
		EmbeddingTier: emb.Tier,
	}

	if len(hits) == 0 {
		records := s.index.ScanAll(ctx, s.cfg.ScanFallbackLimit)
		if len(records) > 0 {
			result.Degraded = true
			s.logger.Warn("similarity search returned nothing, using scanned records",
				"collection", s.index.Collection(), "records", len(records))
			telemetry.AddBreadcrumb(ctx, "retrieval", "degraded fallback to full scan")
		}
		for _, r := range records {
			result.Sources = append(result.Sources, r.Text)
		}
	} else {
		var sum float64
		for _, h := range hits {
			result.Sources = append(result.Sources, h.Text)
			sum += float64(h.Score)
		}
		result.Confidence = clampUnit(sum / float64(len(hits)))
	}

	result.AnswerContext = strings.Join(result.Sources, contextSeparator)

	s.logger.Debug("retrieved context",
		"hits", len(hits),
		"sources", len(result.Sources),
		"confidence", result.Confidence,
		"degraded", result.Degraded,
		"tier", emb.Tier,
	)
	return result, nil
}

// Answer retrieves context and asks the generator to answer from it.
// A generation failure is reported on the returned Answer, not as an error.
func (s *RetrievalService) Answer(ctx context.Context, question string, topK int) (*domain.Answer, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Answer", telemetry.SpanAttributes{
		Collection: s.index.Collection(),
		Operation:  "answer",
		TopK:       topK,
	})
	defer span.End()

	retrieval, err := s.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	answer := &domain.Answer{Retrieval: retrieval}
	if !retrieval.HasContext() {
		answer.Text = InsufficientContextAnswer
		return answer, nil
	}

	if s.generator == nil {
		answer.GenerationError = domain.GenerationUnavailable(fmt.Errorf("no generator configured")).Error()
		return answer, nil
	}

	prompt := buildAnswerPrompt(retrieval.AnswerContext, strings.TrimSpace(question))
	text, err := retry.DoValue(ctx, s.cfg.Retry, func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
		defer cancel()
		return s.generator.Complete(ctx, answerSystemPrompt, prompt)
	})
	if err != nil {
		genErr := domain.GenerationUnavailable(err)
		s.logger.Error("answer generation failed", "error", err)
		span.SetError(genErr)
		answer.GenerationError = genErr.Error()
		return answer, nil
	}

	answer.Text = strings.TrimSpace(text)
	answer.Generated = true
	return answer, nil
}

// GenerationHealthy reports whether the generation capability is reachable.
func (s *RetrievalService) GenerationHealthy(ctx context.Context) bool {
	if s.generator == nil {
		return false
	}
	return s.generator.Healthy(ctx)
}

func buildAnswerPrompt(context, question string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer using only the context above. If it is not enough, say you don't know.")
	return b.String()
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
