package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

const (
	DefaultGenerativeWidth   = 64
	DefaultGenerativeTimeout = 90 * time.Second
)

const generativeSystemPrompt = "You convert text into numeric feature vectors. Reply with numbers only."

const generativePrompt = `Produce exactly %d numbers between -1 and 1, separated by commas, that capture the meaning of the text below. Output nothing except the numbers.

Text:
%s`

var numberPattern = regexp.MustCompile(`[-+]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?`)

// ErrTooFewNumbers is returned when a completion does not contain enough values.
var ErrTooFewNumbers = errors.New("completion contained too few numbers")

// Completer produces a text completion.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// GenerativeTier asks a chat model for a short numeric vector and expands it
// to the target dimension.
type GenerativeTier struct {
	completer Completer
	dimension int
	width     int
	timeout   time.Duration
}

func NewGenerativeTier(completer Completer, dimension, width int, timeout time.Duration) *GenerativeTier {
	if width <= 0 {
		width = DefaultGenerativeWidth
	}
	if timeout <= 0 {
		timeout = DefaultGenerativeTimeout
	}
	return &GenerativeTier{
		completer: completer,
		dimension: dimension,
		width:     width,
		timeout:   timeout,
	}
}

func (t *GenerativeTier) Name() string { return TierGenerative }

func (t *GenerativeTier) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.completer.Complete(ctx, generativeSystemPrompt, fmt.Sprintf(generativePrompt, t.width, text))
	if err != nil {
		return nil, err
	}

	values := parseNumbers(out, t.width)
	if need := max(1, t.width/2); len(values) < need {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrTooFewNumbers, len(values), need)
	}

	vec := expand(values, t.dimension)
	if !Normalize(vec) {
		return nil, ErrZeroVector
	}
	return vec, nil
}

// parseNumbers extracts up to limit numeric literals from s, clamped to [-1,1].
func parseNumbers(s string, limit int) []float64 {
	matches := numberPattern.FindAllString(s, -1)
	values := make([]float64, 0, min(len(matches), limit))
	for _, m := range matches {
		if len(values) == limit {
			break
		}
		v, err := strconv.ParseFloat(m, 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		values = append(values, math.Max(-1, math.Min(1, v)))
	}
	return values
}

// expand repeats values cyclically to dimension, adding a small positional
// drift so repeated cycles are not identical.
func expand(values []float64, dimension int) []float32 {
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = float32(values[i%len(values)] + 0.01*math.Sin(float64(i)))
	}
	return vec
}
