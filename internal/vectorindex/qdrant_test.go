package vectorindex

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
)

func TestPointID_StableUUID(t *testing.T) {
	a := PointID("chunk-1")

	assert.Equal(t, a, PointID("chunk-1"))
	assert.NotEqual(t, a, PointID("chunk-2"))
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-5[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`, a)
}

func TestNewPoint_RoundTripsPayload(t *testing.T) {
	rec := domain.IndexedRecord{ID: "chunk-1", SourceID: "doc-1", Text: "Alice is an engineer.", Embedding: []float32{0.6, 0.8}}

	p := newPoint(rec)

	assert.Equal(t, PointID("chunk-1"), p.GetId().GetUuid())
	assert.Equal(t, []float32{0.6, 0.8}, p.GetVectors().GetVector().GetData())

	got := recordFromPayload(p.GetPayload())
	assert.Equal(t, domain.IndexedRecord{ID: "chunk-1", SourceID: "doc-1", Text: "Alice is an engineer."}, got)
}

func TestRecordFromPayload_MissingFields(t *testing.T) {
	got := recordFromPayload(map[string]*pb.Value{payloadText: stringValue("orphan")})

	assert.Equal(t, domain.IndexedRecord{Text: "orphan"}, got)
}

func TestSourceFilter(t *testing.T) {
	t.Run("whole source", func(t *testing.T) {
		f := sourceFilter("doc-1")

		require.Len(t, f.GetMust(), 1)
		field := f.GetMust()[0].GetField()
		assert.Equal(t, payloadSourceID, field.GetKey())
		assert.Equal(t, "doc-1", field.GetMatch().GetKeyword())
		assert.Empty(t, f.GetMustNot())
	})

	t.Run("except new records", func(t *testing.T) {
		f := sourceFilter("doc-1", "c1", "c2")

		require.Len(t, f.GetMust(), 1)
		require.Len(t, f.GetMustNot(), 1)
		ids := f.GetMustNot()[0].GetHasId().GetHasId()
		require.Len(t, ids, 2)
		assert.Equal(t, PointID("c1"), ids[0].GetUuid())
		assert.Equal(t, PointID("c2"), ids[1].GetUuid())
	})
}

func TestCollectionSize(t *testing.T) {
	info := &pb.CollectionInfo{
		Config: &pb.CollectionConfig{
			Params: &pb.CollectionParams{
				VectorsConfig: &pb.VectorsConfig{
					Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{Size: 384, Distance: pb.Distance_Dot}},
				},
			},
		},
	}

	assert.Equal(t, uint64(384), collectionSize(info))
	assert.Zero(t, collectionSize(nil))
}

func TestNewQdrantIndex_RejectsBadCollection(t *testing.T) {
	_, err := NewQdrantIndex("localhost:6334", "Bad-Name", nil)

	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))
}
