// Package embedding turns text into fixed-width unit vectors through an
// ordered cascade of tiers, with retry on transient failures.
package embedding

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Tier names reported in domain.Embedding.Tier.
const (
	TierDedicated  = "dedicated"
	TierGenerative = "generative"
	TierLocal      = "local"
)

// DefaultDedicatedTimeout bounds one call to the embedding model.
const DefaultDedicatedTimeout = 30 * time.Second

// ErrZeroVector is returned when a tier produces a vector with no magnitude.
var ErrZeroVector = errors.New("embedding has zero magnitude")

// Tier is one way of producing an embedding.
type Tier interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider is a dedicated embedding model client.
type Provider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// DedicatedTier calls an embedding model and reconciles its output width.
type DedicatedTier struct {
	provider  Provider
	dimension int
	timeout   time.Duration
	limiter   *rate.Limiter
}

// NewDedicatedTier wraps provider. rps > 0 limits calls per second.
func NewDedicatedTier(provider Provider, dimension int, timeout time.Duration, rps float64) *DedicatedTier {
	if timeout <= 0 {
		timeout = DefaultDedicatedTimeout
	}
	t := &DedicatedTier{
		provider:  provider,
		dimension: dimension,
		timeout:   timeout,
	}
	if rps > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(math.Ceil(rps))))
	}
	return t
}

func (t *DedicatedTier) Name() string { return TierDedicated }

func (t *DedicatedTier) Embed(ctx context.Context, text string) ([]float32, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	vec, err := t.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	out := Fit(vec, t.dimension)
	if !Normalize(out) {
		return nil, ErrZeroVector
	}
	return out, nil
}

// Fit returns a copy of vec truncated or zero-padded to dimension.
func Fit(vec []float32, dimension int) []float32 {
	out := make([]float32, dimension)
	copy(out, vec)
	return out
}

// Normalize scales vec to unit L2 norm in place. It reports false for a zero vector.
func Normalize(vec []float32) bool {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return false
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return true
}
