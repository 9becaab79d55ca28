package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const (
	payloadRecordID = "record_id"
	payloadSourceID = "source_id"
	payloadText     = "text"
)

// pointNamespace derives stable point ids from record ids, since Qdrant only
// accepts integers and UUIDs as ids.
var pointNamespace = uuid.MustParse("6f1c8a3e-4d2b-5e7f-9a10-b2c3d4e5f607")

// QdrantIndex stores records as points in a Qdrant collection over gRPC.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   atomic.Int64
	logger      *slog.Logger
}

// NewQdrantIndex connects to Qdrant's gRPC endpoint at addr.
func NewQdrantIndex(addr, collection string, logger *slog.Logger) (*QdrantIndex, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		logger:      logger,
	}, nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

func (q *QdrantIndex) Collection() string { return q.collection }

// PointID maps a record id onto the UUID used as the Qdrant point id.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

func (q *QdrantIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}

	info, err := q.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	switch {
	case err == nil:
		if size := collectionSize(info.GetResult()); int(size) != dimension {
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrDimensionMismatch.Message,
				fmt.Errorf("collection %s has dimension %d, requested %d", name, size, dimension))
		}
	case status.Code(err) == codes.NotFound:
		if err := q.create(ctx, name, dimension); err != nil {
			return err
		}
	default:
		return domain.IndexUnavailable("ensure collection", err)
	}

	if name == q.collection {
		q.dimension.Store(int64(dimension))
	}
	return nil
}

func (q *QdrantIndex) create(ctx context.Context, name string, dimension int) error {
	_, err := q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Dot,
				},
			},
		},
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return domain.IndexUnavailable("ensure collection", err)
	}

	wait := true
	_, err = q.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: name,
		Wait:           &wait,
		FieldName:      payloadSourceID,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return domain.IndexUnavailable("ensure collection", err)
	}

	q.logger.Info("created vector collection", "collection", name, "dimension", dimension)
	return nil
}

func (q *QdrantIndex) Insert(ctx context.Context, records []domain.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, int(q.dimension.Load())); err != nil {
		return err
	}

	if err := q.upsert(ctx, records); err != nil {
		return domain.IndexUnavailable("insert", err)
	}
	return nil
}

// ReplaceSource upserts the new points first and then deletes the source's
// other points, so a failed upsert keeps the previous records.
func (q *QdrantIndex) ReplaceSource(ctx context.Context, sourceID string, records []domain.IndexedRecord) error {
	if err := validateRecords(records, int(q.dimension.Load())); err != nil {
		return err
	}
	if len(records) > 0 {
		if err := q.upsert(ctx, records); err != nil {
			return domain.IndexUnavailable("replace", err)
		}
	}

	keep := make([]string, len(records))
	for i, r := range records {
		keep[i] = r.ID
	}
	if err := q.deleteWhere(ctx, sourceFilter(sourceID, keep...)); err != nil {
		return domain.IndexUnavailable("replace", err)
	}
	return nil
}

func (q *QdrantIndex) upsert(ctx context.Context, records []domain.IndexedRecord) error {
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = newPoint(r)
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(records), err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		return []domain.SearchHit{}, nil
	}

	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			q.logger.Warn("search on missing collection", "collection", q.collection)
			return []domain.SearchHit{}, nil
		}
		return nil, domain.IndexUnavailable("search", err)
	}

	hits := make([]domain.SearchHit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		rec := recordFromPayload(r.GetPayload())
		hits = append(hits, domain.SearchHit{
			ID:       rec.ID,
			SourceID: rec.SourceID,
			Text:     rec.Text,
			Score:    r.GetScore(),
		})
	}
	return hits, nil
}

func (q *QdrantIndex) ScanAll(ctx context.Context, limit int) []domain.IndexedRecord {
	if limit <= 0 {
		return nil
	}

	n := uint32(limit)
	resp, err := q.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: q.collection,
		Limit:          &n,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		q.logger.Warn("scan failed", "collection", q.collection, "err", err)
		return nil
	}

	records := make([]domain.IndexedRecord, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		records = append(records, recordFromPayload(p.GetPayload()))
	}
	return records
}

func (q *QdrantIndex) DeleteBySource(ctx context.Context, sourceID string) error {
	if err := q.deleteWhere(ctx, sourceFilter(sourceID)); err != nil {
		return domain.IndexUnavailable("delete", err)
	}
	return nil
}

// deleteWhere removes every point matching filter. A missing collection has
// nothing to delete.
func (q *QdrantIndex) deleteWhere(ctx context.Context, filter *pb.Filter) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

func (q *QdrantIndex) DropCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	_, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil {
		return domain.IndexUnavailable("drop collection", err)
	}
	if name == q.collection {
		q.dimension.Store(0)
	}
	return nil
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil
		}
		return 0, domain.IndexUnavailable("count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func collectionSize(info *pb.CollectionInfo) uint64 {
	return info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
}

func newPoint(r domain.IndexedRecord) *pb.PointStruct {
	return &pb.PointStruct{
		Id: pointID(r.ID),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: r.Embedding},
			},
		},
		Payload: map[string]*pb.Value{
			payloadRecordID: stringValue(r.ID),
			payloadSourceID: stringValue(r.SourceID),
			payloadText:     stringValue(r.Text),
		},
	}
}

func pointID(recordID string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(recordID)}}
}

func recordFromPayload(payload map[string]*pb.Value) domain.IndexedRecord {
	return domain.IndexedRecord{
		ID:       payload[payloadRecordID].GetStringValue(),
		SourceID: payload[payloadSourceID].GetStringValue(),
		Text:     payload[payloadText].GetStringValue(),
	}
}

// sourceFilter matches the points of sourceID, except those of the listed records.
func sourceFilter(sourceID string, exceptRecordIDs ...string) *pb.Filter {
	filter := &pb.Filter{
		Must: []*pb.Condition{fieldMatch(payloadSourceID, sourceID)},
	}
	if len(exceptRecordIDs) > 0 {
		ids := make([]*pb.PointId, len(exceptRecordIDs))
		for i, id := range exceptRecordIDs {
			ids[i] = pointID(id)
		}
		filter.MustNot = []*pb.Condition{{
			ConditionOneOf: &pb.Condition_HasId{HasId: &pb.HasIdCondition{HasId: ids}},
		}}
	}
	return filter
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
