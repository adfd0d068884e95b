package vector

import (
	"context"
	"fmt"
	"log/slog"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// QdrantStore implements Store against a Qdrant instance over gRPC.
type QdrantStore struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	qdrant      pb.QdrantClient
	dimension   uint64
	logger      *slog.Logger
}

// payloadIndices are the secondary indices required for filtered search.
var payloadIndices = []struct {
	field string
	kind  pb.FieldType
}{
	{"metadata.deviation_type", pb.FieldType_FieldTypeKeyword},
	{"metadata.exercise_category", pb.FieldType_FieldTypeKeyword},
	{"metadata.evidence_level", pb.FieldType_FieldTypeKeyword},
	{"metadata.year", pb.FieldType_FieldTypeInteger},
	{"metadata.doi", pb.FieldType_FieldTypeKeyword},
}

// NewQdrant creates a Qdrant-backed store.
func NewQdrant(host string, port int, dimension int, logger *slog.Logger) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantStore{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		qdrant:      pb.NewQdrantClient(conn),
		dimension:   uint64(dimension),
		logger:      logger,
	}, nil
}

// EnsureCollections verifies the required collections exist, creating any
// that are missing along with their payload indices. Failure here is fatal:
// the pipeline cannot operate without its backing collections.
func (s *QdrantStore) EnsureCollections(ctx context.Context) error {
	existing, err := s.listCollections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	for _, name := range []string{KnowledgeCollection, ExerciseCollection} {
		if existing[name] {
			s.logger.Debug("collection exists", "collection", name)
			continue
		}
		if err := s.createCollection(ctx, name); err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
		s.logger.Info("created collection", "collection", name, "dimension", s.dimension)
	}
	return nil
}

func (s *QdrantStore) listCollections(ctx context.Context) (map[string]bool, error) {
	resp, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(resp.Collections))
	for _, c := range resp.Collections {
		names[c.Name] = true
	}
	return names, nil
}

func (s *QdrantStore) createCollection(ctx context.Context, name string) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     s.dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil && !alreadyExists(err) {
		return err
	}
	return s.createPayloadIndices(ctx, name)
}

func (s *QdrantStore) createPayloadIndices(ctx context.Context, collection string) error {
	wait := true
	for _, idx := range payloadIndices {
		fieldType := idx.kind
		_, err := s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      idx.field,
			FieldType:      &fieldType,
			Wait:           &wait,
		})
		if err != nil && !alreadyExists(err) {
			return fmt.Errorf("index %s: %w", idx.field, err)
		}
	}
	return nil
}

// Search runs a filtered top-k cosine similarity query.
func (s *QdrantStore) Search(ctx context.Context, params SearchParams) ([]ScoredPoint, error) {
	req := &pb.SearchPoints{
		CollectionName: params.Collection,
		Vector:         params.Vector,
		Limit:          uint64(params.Limit),
		Filter:         params.Filter.toQdrant(),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if params.ScoreThreshold > 0 {
		threshold := params.ScoreThreshold
		req.ScoreThreshold = &threshold
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]ScoredPoint, len(resp.Result))
	for i, pt := range resp.Result {
		results[i] = ScoredPoint{
			ID:       pointIDString(pt.Id),
			Score:    pt.Score,
			Text:     pt.Payload["text"].GetStringValue(),
			Metadata: metadataFromPayload(pt.Payload["metadata"].GetStructValue()),
		}
	}
	return results, nil
}

// Upsert writes points and waits for durability, so an immediately
// following read observes them.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	wait := true
	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: map[string]*pb.Value{
				"text":     stringValue(p.Text),
				"metadata": metadataValue(p.Metadata),
			},
		}
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         pbPoints,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// DeletePoints removes points by id and waits for durability. The
// reprocess sequence relies on delete completing before re-insert starts.
func (s *QdrantStore) DeletePoints(ctx context.Context, collection string, ids []string) error {
	wait := true
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}

	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

// CollectionInfo reports point count and status for one collection.
func (s *QdrantStore) CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	resp, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		return nil, fmt.Errorf("qdrant collection info: %w", err)
	}

	info := &CollectionInfo{
		Name:   collection,
		Status: resp.Result.Status.String(),
	}
	if resp.Result.PointsCount != nil {
		info.PointsCount = *resp.Result.PointsCount
	}
	return info, nil
}

// HealthCheck verifies the engine answers.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	if _, err := s.qdrant.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

func (s *QdrantStore) Close() error { return s.conn.Close() }

func alreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

func pointIDString(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	return id.GetUuid()
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(i int) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(i)}}
}

func metadataValue(m ChunkMetadata) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{
		Fields: map[string]*pb.Value{
			"title":             stringValue(m.Title),
			"authors":           stringValue(m.Authors),
			"year":              intValue(m.Year),
			"journal":           stringValue(m.Journal),
			"doi":               stringValue(m.DOI),
			"evidence_level":    stringValue(m.EvidenceLevel),
			"deviation_type":    stringValue(m.DeviationType),
			"exercise_category": stringValue(m.ExerciseCategory),
			"chunk_index":       intValue(m.ChunkIndex),
		},
	}}}
}

func metadataFromPayload(st *pb.Struct) ChunkMetadata {
	if st == nil {
		return ChunkMetadata{}
	}
	f := st.Fields
	return ChunkMetadata{
		Title:            f["title"].GetStringValue(),
		Authors:          f["authors"].GetStringValue(),
		Year:             int(f["year"].GetIntegerValue()),
		Journal:          f["journal"].GetStringValue(),
		DOI:              f["doi"].GetStringValue(),
		EvidenceLevel:    f["evidence_level"].GetStringValue(),
		DeviationType:    f["deviation_type"].GetStringValue(),
		ExerciseCategory: f["exercise_category"].GetStringValue(),
		ChunkIndex:       int(f["chunk_index"].GetIntegerValue()),
	}
}

var _ Store = (*QdrantStore)(nil)
