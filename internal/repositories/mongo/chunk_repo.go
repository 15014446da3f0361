package mongo

import (
	"context"
	"time"

	"github.com/medinote/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ChunkRepository interface {
	Insert(ctx context.Context, c *models.ChunkRecord) error
	ListBySession(ctx context.Context, clinicSessionID string, limit int64) ([]models.ChunkRecord, error)
}

type chunkRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

func NewChunkRepo(db *mongo.Database, ttl time.Duration) ChunkRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &chunkRepo{col: db.Collection("realtime_chunks"), ttl: ttl}
}

func (r *chunkRepo) Insert(ctx context.Context, c *models.ChunkRecord) error {
	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = time.Now().UTC()
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = c.ReceivedAt.Add(r.ttl)
	}
	_, err := r.col.InsertOne(ctx, c)
	return err
}

func (r *chunkRepo) ListBySession(ctx context.Context, clinicSessionID string, limit int64) ([]models.ChunkRecord, error) {
	if limit <= 0 {
		limit = 500
	}

	cur, err := r.col.Find(ctx,
		bson.M{"session_id": clinicSessionID},
		options.Find().
			SetSort(bson.D{{Key: "received_at", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ChunkRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
