package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
)

// CVIndex is a vector index over the CV library used to shortlist candidates.
type CVIndex interface {
	InitCollection(ctx context.Context, vectorSize uint64) error
	Upsert(ctx context.Context, docID, filename string, embedding []float32) error
	Search(ctx context.Context, queryEmbedding []float32, limit int) ([]IndexHit, error)
	Delete(ctx context.Context, docID string) error
}

type IndexHit struct {
	DocumentID string
	Filename   string
	Score      float32
}

type qdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	log            *zap.Logger
}

func NewQdrantIndex(urlStr, apiKey, collectionName string, log *zap.Logger) (CVIndex, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// gRPC port
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &qdrantIndex{
		client:         client,
		collectionName: collectionName,
		log:            logger.OrNop(log),
	}, nil
}

// PointID derives a stable Qdrant point ID from a document content hash.
func PointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
}

// InitCollection implements CVIndex.
func (q *qdrantIndex) InitCollection(ctx context.Context, vectorSize uint64) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		q.log.Info("✅ Collection already exists", zap.String("collection", q.collectionName))
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	q.log.Info("✅ Qdrant collection created", zap.String("collection", q.collectionName), zap.Uint64("size", vectorSize))
	return nil
}

// Upsert implements CVIndex. Re-ingesting the same content overwrites its point.
func (q *qdrantIndex) Upsert(ctx context.Context, docID, filename string, embedding []float32) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(PointID(docID)),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"doc_id":   docID,
			"filename": filename,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	return nil
}

// Search implements CVIndex.
func (q *qdrantIndex) Search(ctx context.Context, queryEmbedding []float32, limit int) ([]IndexHit, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]IndexHit, 0, len(points))
	for _, point := range points {
		hit := IndexHit{Score: point.Score}
		if v, ok := point.Payload["doc_id"]; ok {
			hit.DocumentID = v.GetStringValue()
		}
		if v, ok := point.Payload["filename"]; ok {
			hit.Filename = v.GetStringValue()
		}
		if hit.DocumentID != "" {
			hits = append(hits, hit)
		}
	}

	return hits, nil
}

// Delete implements CVIndex.
func (q *qdrantIndex) Delete(ctx context.Context, docID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewID(PointID(docID))},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	return nil
}
