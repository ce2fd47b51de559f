package vectordb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"
)

// pointNamespace scopes the name-based UUIDs of document points.
var pointNamespace = uuid.MustParse("6f1c7a52-2d0e-4b7a-9a55-3f8e4c1d2b90")

// PointID returns the deterministic point id of a document in a corpus.
func PointID(corpusID, documentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(corpusID+":"+documentID)).String()
}

// qdrantAPI is the subset of *qd.Client used here.
type qdrantAPI interface {
	Upsert(ctx context.Context, request *qd.UpsertPoints) (*qd.UpdateResult, error)
	Query(ctx context.Context, request *qd.QueryPoints) ([]*qd.ScoredPoint, error)
	Delete(ctx context.Context, request *qd.DeletePoints) (*qd.UpdateResult, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qd.CreateCollection) error
	HealthCheck(ctx context.Context) (*qd.HealthCheckReply, error)
	Close() error
}

// QdrantClient implements the Provider interface over Qdrant's gRPC API.
type QdrantClient struct {
	client         qdrantAPI
	collectionName string
	timeout        time.Duration
}

// NewQdrantClient creates a new Qdrant client.
func NewQdrantClient(cfg Config) (*QdrantClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qd.NewClient(&qd.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return newQdrantClient(client, cfg), nil
}

func newQdrantClient(client qdrantAPI, cfg Config) *QdrantClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &QdrantClient{
		client:         client,
		collectionName: cfg.CollectionName,
		timeout:        timeout,
	}
}

func (q *QdrantClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.timeout)
}

// Upsert inserts or updates points.
func (q *QdrantClient) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qd.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qd.PointStruct{
			Id:      qd.NewIDUUID(p.ID),
			Vectors: qd.NewVectors(p.Vector...),
			Payload: toQdrantPayload(p.Payload),
		}
	}

	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	wait := true
	if _, err := q.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         qpoints,
		Wait:           &wait,
	}); err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search performs a cosine similarity search.
func (q *QdrantClient) Search(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	if len(query.Vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	limit := uint64(query.TopK)
	req := &qd.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qd.NewQuery(query.Vector...),
		WithPayload:    qd.NewWithPayload(true),
		Limit:          &limit,
		Filter:         buildFilter(query.Filter),
	}
	if query.ScoreThreshold > 0 {
		threshold := query.ScoreThreshold
		req.ScoreThreshold = &threshold
	}

	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, SearchResult{
			ID:      p.GetId().GetUuid(),
			Score:   p.GetScore(),
			Payload: fromQdrantPayload(p.GetPayload()),
		})
	}
	return results, nil
}

// Delete removes points by their IDs.
func (q *QdrantClient) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qd.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qd.NewIDUUID(id)
	}

	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	wait := true
	if _, err := q.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: q.collectionName,
		Points:         qd.NewPointsSelector(pointIDs...),
		Wait:           &wait,
	}); err != nil {
		return fmt.Errorf("failed to delete %d points: %w", len(ids), err)
	}
	return nil
}

// DeleteByFilter removes points matching a filter. An empty filter is
// rejected rather than wiping the collection.
func (q *QdrantClient) DeleteByFilter(ctx context.Context, filter Filter) error {
	f := buildFilter(filter)
	if f == nil {
		return fmt.Errorf("refusing to delete with an empty filter")
	}

	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	wait := true
	if _, err := q.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: q.collectionName,
		Points:         qd.NewPointsSelectorFilter(f),
		Wait:           &wait,
	}); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance if missing.
func (q *QdrantClient) EnsureCollection(ctx context.Context, dimensions int) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	if err := q.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(dimensions),
			Distance: qd.Distance_Cosine,
		}),
	}); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collectionName, err)
	}
	return nil
}

// Health checks if Qdrant is reachable.
func (q *QdrantClient) Health(ctx context.Context) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantClient) Close() error {
	return q.client.Close()
}

func toQdrantPayload(p Payload) map[string]*qd.Value {
	return map[string]*qd.Value{
		"corpus_id":    qd.NewValueString(p.CorpusID),
		"document_id":  qd.NewValueString(p.DocumentID),
		"title":        qd.NewValueString(p.Title),
		"language":     qd.NewValueString(p.Language),
		"segments":     qd.NewValueInt(int64(p.Segments)),
		"token_count":  qd.NewValueInt(int64(p.TokenCount)),
		"truncated":    qd.NewValueBool(p.Truncated),
		"content_hash": qd.NewValueString(p.ContentHash),
		"indexed_at":   qd.NewValueString(p.IndexedAt),
	}
}

func fromQdrantPayload(m map[string]*qd.Value) Payload {
	return Payload{
		CorpusID:    m["corpus_id"].GetStringValue(),
		DocumentID:  m["document_id"].GetStringValue(),
		Title:       m["title"].GetStringValue(),
		Language:    m["language"].GetStringValue(),
		Segments:    int(m["segments"].GetIntegerValue()),
		TokenCount:  int(m["token_count"].GetIntegerValue()),
		Truncated:   m["truncated"].GetBoolValue(),
		ContentHash: m["content_hash"].GetStringValue(),
		IndexedAt:   m["indexed_at"].GetStringValue(),
	}
}

func buildFilter(f Filter) *qd.Filter {
	var must []*qd.Condition
	if f.CorpusID != "" {
		must = append(must, qd.NewMatch("corpus_id", f.CorpusID))
	}
	if f.Language != "" {
		must = append(must, qd.NewMatch("language", f.Language))
	}
	if len(must) == 0 {
		return nil
	}
	return &qd.Filter{Must: must}
}
