package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/retry"
)

const (
	DefaultDimension  = 1536
	DefaultBatchSize  = 5
	DefaultBatchDelay = time.Second
)

// ErrNoTiers is returned by an Embedder built without any tier.
var ErrNoTiers = errors.New("no embedding tiers configured")

// Config controls the cascade's retry and batching behaviour.
type Config struct {
	Dimension  int
	BatchSize  int
	BatchDelay time.Duration
	Retry      retry.Policy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Dimension:  DefaultDimension,
		BatchSize:  DefaultBatchSize,
		BatchDelay: DefaultBatchDelay,
		Retry:      retry.DefaultPolicy(),
	}
}

// Embedder tries each tier in order and retries the whole cascade when a
// tier failed transiently.
type Embedder struct {
	tiers  []Tier
	cfg    Config
	logger *slog.Logger
}

// New creates an Embedder over tiers, tried in the given order.
func New(tiers []Tier, cfg Config, logger *slog.Logger) *Embedder {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{tiers: tiers, cfg: cfg, logger: logger}
}

// Dimension is the width of every vector this Embedder returns.
func (e *Embedder) Dimension() int {
	return e.cfg.Dimension
}

// TierNames lists the configured tiers in cascade order.
func (e *Embedder) TierNames() []string {
	names := make([]string, len(e.tiers))
	for i, t := range e.tiers {
		names[i] = t.Name()
	}
	return names
}

// Embed returns a unit vector of Dimension values for text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Embedding{}, domain.ErrEmptyText
	}
	if len(e.tiers) == 0 {
		return domain.Embedding{}, domain.EmbeddingUnavailable(ErrNoTiers)
	}

	policy := e.cfg.Retry
	policy.Logger = e.logger
	policy.Operation = "embed"

	result, err := retry.DoValue(ctx, policy, func(ctx context.Context) (domain.Embedding, error) {
		return e.cascade(ctx, text)
	})
	if err != nil {
		return domain.Embedding{}, domain.EmbeddingUnavailable(err)
	}
	return result, nil
}

// cascade returns the first tier result, or all tier errors joined.
func (e *Embedder) cascade(ctx context.Context, text string) (domain.Embedding, error) {
	var errs []error
	for _, tier := range e.tiers {
		vec, err := tier.Embed(ctx, text)
		if err == nil && len(vec) != e.cfg.Dimension {
			err = fmt.Errorf("%w: got %d, expected %d", domain.ErrDimensionMismatch, len(vec), e.cfg.Dimension)
		}
		if err != nil {
			e.logger.Warn("embedding tier failed", "tier", tier.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s tier: %w", tier.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		e.logger.Debug("embedding tier served", "tier", tier.Name())
		return domain.Embedding{Vector: vec, Tier: tier.Name()}, nil
	}
	return domain.Embedding{}, errors.Join(errs...)
}

// EmbedBatch embeds texts in groups of BatchSize. Items within a group run
// concurrently; groups run one after another with BatchDelay between them.
// The first failure fails the call. Output order matches input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	out := make([]domain.Embedding, len(texts))

	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		if start > 0 && e.cfg.BatchDelay > 0 {
			timer := time.NewTimer(e.cfg.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		end := min(start+e.cfg.BatchSize, len(texts))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.BatchSize)

		for i := start; i < end; i++ {
			g.Go(func() error {
				emb, err := e.Embed(gctx, texts[i])
				if err != nil {
					return fmt.Errorf("embed item %d: %w", i, err)
				}
				out[i] = emb
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return out, nil
}
