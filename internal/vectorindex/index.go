// Package vectorindex stores chunk embeddings and answers inner-product
// nearest-neighbour queries. PostgreSQL with pgvector is the default backend;
// Qdrant and an in-process store are also available.
package vectorindex

import (
	"context"
	"fmt"
	"regexp"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const (
	BackendPgVector = "pgvector"
	BackendQdrant   = "qdrant"
	BackendMemory   = "memory"
)

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "docqa_chunks"

var collectionNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Index is implemented by every backend. Insert, Search, ScanAll,
// DeleteBySource and Count act on the collection the index was opened with.
type Index interface {
	// EnsureCollection creates the collection if absent and makes it queryable.
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Insert(ctx context.Context, records []domain.IndexedRecord) error
	// Search returns up to topK hits by descending inner product.
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error)
	// ScanAll returns up to limit records without embeddings. Failures yield nil.
	ScanAll(ctx context.Context, limit int) []domain.IndexedRecord
	DeleteBySource(ctx context.Context, sourceID string) error
	// ReplaceSource swaps every record of sourceID for records. A failure
	// leaves the previous records searchable.
	ReplaceSource(ctx context.Context, sourceID string, records []domain.IndexedRecord) error
	DropCollection(ctx context.Context, name string) error
	Count(ctx context.Context) (int, error)
	Collection() string
}

// ValidateCollectionName rejects names that are not plain lower-case identifiers.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrInvalidCollectionName.Message,
			fmt.Errorf("collection %q", name))
	}
	return nil
}

func validateRecords(records []domain.IndexedRecord, dimension int) error {
	for _, r := range records {
		if err := domain.ValidateIndexedRecord(r, dimension); err != nil {
			return err
		}
	}
	return nil
}
