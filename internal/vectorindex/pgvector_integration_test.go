//go:build integration

package vectorindex

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/embedding"
	"github.com/cloo-solutions/docqa/internal/testutil"
)

const testDimension = 384

func TestPgVectorIndex_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	idx, err := NewPgVectorIndex(pool, PgVectorConfig{Collection: "test_chunks", Lists: 4, Probes: 4}, nil)
	require.NoError(t, err)

	// search before the collection exists
	hits, err := idx.Search(ctx, embedding.LocalVector("q", testDimension), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.EnsureCollection(ctx, "test_chunks", testDimension))
	require.NoError(t, idx.EnsureCollection(ctx, "test_chunks", testDimension))

	err = idx.EnsureCollection(ctx, "test_chunks", 1024)
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))

	hits, err = idx.Search(ctx, embedding.LocalVector("q", testDimension), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	records := make([]domain.IndexedRecord, 0, 6)
	for i := 0; i < 6; i++ {
		text := fmt.Sprintf("chunk number %d.", i)
		source := "doc-a"
		if i%2 == 1 {
			source = "doc-b"
		}
		records = append(records, domain.IndexedRecord{
			ID:        fmt.Sprintf("id-%d", i),
			SourceID:  source,
			Text:      text,
			Embedding: embedding.LocalVector(text, testDimension),
		})
	}
	require.NoError(t, idx.Insert(ctx, records))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	// ivfflat is approximate, so rebuild planner stats before relying on it
	require.NoError(t, idx.EnsureCollection(ctx, "test_chunks", testDimension))

	hits, err = idx.Search(ctx, embedding.LocalVector("chunk number 3.", testDimension), 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "id-3", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	hits, err = idx.Search(ctx, embedding.LocalVector("x", testDimension), 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	scanned := idx.ScanAll(ctx, 4)
	assert.Len(t, scanned, 4)

	require.NoError(t, idx.DeleteBySource(ctx, "doc-a"))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	replacement := domain.IndexedRecord{
		ID:        "id-new",
		SourceID:  "doc-b",
		Text:      "replacement chunk.",
		Embedding: embedding.LocalVector("replacement chunk.", testDimension),
	}
	require.NoError(t, idx.ReplaceSource(ctx, "doc-b", []domain.IndexedRecord{replacement}))
	scanned = idx.ScanAll(ctx, 10)
	require.Len(t, scanned, 1)
	assert.Equal(t, "id-new", scanned[0].ID)

	// wrong width is rejected before anything is deleted
	err = idx.ReplaceSource(ctx, "doc-b", []domain.IndexedRecord{{ID: "x", SourceID: "doc-b", Text: "t", Embedding: []float32{1}}})
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, idx.DropCollection(ctx, "test_chunks"))
	assert.Nil(t, idx.ScanAll(ctx, 4))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPgVectorIndex_InsertWrongDimension(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	idx, err := NewPgVectorIndex(pool, PgVectorConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, idx.EnsureCollection(ctx, idx.Collection(), testDimension))

	err = idx.Insert(ctx, []domain.IndexedRecord{{ID: "a", SourceID: "s", Text: "t", Embedding: []float32{1, 0}}})
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))
}
