package domain

// ConfidenceScaleUnit marks confidence values reported in [0,1].
const ConfidenceScaleUnit = "unit"

// RetrievalResult is the assembled context for one question.
type RetrievalResult struct {
	AnswerContext string
	Sources       []string
	Confidence    float64
	Hits          []SearchHit
	// Degraded is set when the context came from a full scan rather than similarity search.
	Degraded bool
	// EmbeddingTier names the tier that embedded the question.
	EmbeddingTier string
}

// HasContext reports whether any source text was found.
func (r *RetrievalResult) HasContext() bool {
	return r != nil && len(r.Sources) > 0
}

// Answer is a generated response plus the retrieval work behind it.
type Answer struct {
	Text            string
	Generated       bool
	GenerationError string
	Retrieval       *RetrievalResult
}
