package domain

import (
	"fmt"
	"strings"
)

// Chunk is a bounded, trimmed span of a source document prepared for embedding.
type Chunk struct {
	ID       string
	SourceID string
	Index    int // ordinal position within the source document
	Text     string
}

// Embedding is a fixed-length vector together with the tier that produced it.
type Embedding struct {
	Vector []float32
	Tier   string
}

// IndexedRecord is the unit persisted in the vector index.
type IndexedRecord struct {
	ID        string
	SourceID  string
	Text      string
	Embedding []float32
}

// SearchHit is a single nearest-neighbour match. Score is the inner product.
type SearchHit struct {
	ID       string
	SourceID string
	Text     string
	Score    float32
}

// NewIndexedRecord zips a chunk with its embedding.
func NewIndexedRecord(c Chunk, vector []float32) IndexedRecord {
	return IndexedRecord{
		ID:        c.ID,
		SourceID:  c.SourceID,
		Text:      c.Text,
		Embedding: vector,
	}
}

// ValidateIndexedRecord checks a record before it is written to an index of the given dimension.
func ValidateIndexedRecord(r IndexedRecord, dimension int) error {
	if r.ID == "" {
		return fmt.Errorf("indexed record ID is required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("indexed record %s has empty text", r.ID)
	}
	if dimension > 0 && len(r.Embedding) != dimension {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrDimensionMismatch.Message,
			fmt.Errorf("record %s has %d values, expected %d", r.ID, len(r.Embedding), dimension))
	}
	return nil
}
