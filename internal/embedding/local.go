package embedding

import (
	"context"
	"unicode/utf16"
)

const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// LocalTier derives a deterministic pseudo-random unit vector from a hash of
// the text. It never fails and carries no semantic signal.
type LocalTier struct {
	dimension int
}

func NewLocalTier(dimension int) *LocalTier {
	return &LocalTier{dimension: dimension}
}

func (t *LocalTier) Name() string { return TierLocal }

func (t *LocalTier) Embed(_ context.Context, text string) ([]float32, error) {
	return LocalVector(text, t.dimension), nil
}

// LocalVector seeds a linear congruential generator with the text hash and
// draws dimension values in [-1,1), then normalises.
func LocalVector(text string, dimension int) []float32 {
	seed := hashText(text)
	vec := make([]float32, dimension)
	for i := range vec {
		seed = (seed*lcgMultiplier + lcgIncrement) % lcgModulus
		vec[i] = float32(float64(seed)/lcgModulus*2 - 1)
	}
	Normalize(vec)
	return vec
}

// hashText is the 31-multiplier rolling hash over UTF-16 code units with
// 32-bit wraparound, made non-negative.
func hashText(text string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(text)) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}
