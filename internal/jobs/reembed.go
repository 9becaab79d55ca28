package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/service"
)

const (
	// DefaultReembedBatch is how many documents one round picks up.
	DefaultReembedBatch = 10
	// DefaultMaxReembedFailures stops retrying a document after this many failed rounds.
	DefaultMaxReembedFailures = 3
)

// ReembedRepository finds documents embedded by a fallback tier.
type ReembedRepository interface {
	ListForReembed(ctx context.Context, primaryTier string, maxFailures, limit int) ([]*domain.Document, error)
	IncrementReembedFailures(ctx context.Context, id string) error
}

// Reprocessor re-ingests a stored document under its existing id.
type Reprocessor interface {
	Reprocess(ctx context.Context, sourceID string) (*service.IngestResult, error)
}

// ReembedConfig controls one ReembedWorker.
type ReembedConfig struct {
	// PrimaryTier is the tier every document should end up embedded by.
	PrimaryTier string
	BatchSize   int
	MaxFailures int
}

// ReembedStats summarizes one round.
type ReembedStats struct {
	Candidates int `json:"candidates"`
	Reembedded int `json:"reembedded"`
	Failed     int `json:"failed"`
	// Deferred is set when the round ended early because the primary tier
	// still did not serve.
	Deferred bool `json:"deferred"`
}

// ReembedWorker re-embeds documents whose chunks came from a fallback tier,
// so that the whole index lives in the primary tier's vector space.
type ReembedWorker struct {
	repo   ReembedRepository
	svc    Reprocessor
	cfg    ReembedConfig
	logger *slog.Logger
}

// NewReembedWorker creates a ReembedWorker; zero config fields take defaults.
func NewReembedWorker(repo ReembedRepository, svc Reprocessor, cfg ReembedConfig, logger *slog.Logger) *ReembedWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultReembedBatch
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxReembedFailures
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReembedWorker{repo: repo, svc: svc, cfg: cfg, logger: logger}
}

// Process implements Processor.
func (w *ReembedWorker) Process(ctx context.Context) error {
	_, err := w.RunRound(ctx)
	return err
}

// RunRound re-embeds up to BatchSize stale documents.
func (w *ReembedWorker) RunRound(ctx context.Context) (ReembedStats, error) {
	var stats ReembedStats

	docs, err := w.repo.ListForReembed(ctx, w.cfg.PrimaryTier, w.cfg.MaxFailures, w.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to list documents for re-embedding: %w", err)
	}
	stats.Candidates = len(docs)
	if len(docs) == 0 {
		return stats, nil
	}

	w.logger.Info("re-embedding documents", "count", len(docs), "primary_tier", w.cfg.PrimaryTier)

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		result, err := w.svc.Reprocess(ctx, doc.ID)
		if err != nil {
			switch domain.CodeOf(err) {
			case domain.ErrCodeEmbeddingUnavailable, domain.ErrCodeIndexUnavailable:
				// an outage is not the document's fault
				stats.Deferred = true
				w.logger.Warn("re-embed round deferred", "source_id", doc.ID, "error", err)
				return stats, nil
			}
			stats.Failed++
			w.handleFailure(ctx, doc, err)
			continue
		}

		if result.EmbeddingTier != w.cfg.PrimaryTier {
			stats.Deferred = true
			w.logger.Info("primary tier still not serving, ending round",
				"source_id", doc.ID, "tier", result.EmbeddingTier)
			return stats, nil
		}

		stats.Reembedded++
		w.logger.Info("document re-embedded", "source_id", doc.ID, "chunks", result.ChunkCount)
	}

	return stats, nil
}

func (w *ReembedWorker) handleFailure(ctx context.Context, doc *domain.Document, reembedErr error) {
	attempt := doc.ReembedFailures + 1
	if err := w.repo.IncrementReembedFailures(ctx, doc.ID); err != nil {
		w.logger.Error("failed to record re-embed failure", "source_id", doc.ID, "error", err)
		return
	}
	if attempt >= w.cfg.MaxFailures {
		w.logger.Error("giving up on re-embedding document",
			"source_id", doc.ID, "attempts", attempt, "error", reembedErr)
		return
	}
	w.logger.Warn("re-embed failed, will retry",
		"source_id", doc.ID, "attempt", attempt, "max", w.cfg.MaxFailures, "error", reembedErr)
}
