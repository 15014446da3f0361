package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}
	db := MongoDatabase()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chunks := db.Collection("realtime_chunks")
	_, err := chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// TTL index: mongo reaps audit entries past expires_at
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		// no duplicate seq per connection
		{
			Keys: bson.D{
				{Key: "connection_id", Value: 1},
				{Key: "seq", Value: 1},
			},
			Options: options.Index().
				SetName("uniq_conn_seq").
				SetUnique(true),
		},
		// query helper for per-session audits
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "received_at", Value: -1}},
			Options: options.Index().SetName("by_session_received"),
		},
	})
	return err
}
